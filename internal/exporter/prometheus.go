// Package exporter mirrors published snapshots into Prometheus metrics.
package exporter

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"healthmon/internal/domain"
)

// Exporter is a snapshot sink and tick observer backed by its own registry.
//
// Status gauges carry the numeric level: 0 OK, 1 DEGRADED, 2 CRITICAL, 3 FAILED.
type Exporter struct {
	registry *prometheus.Registry

	// mu keeps scrapes from seeing a snapshot half applied.
	mu sync.RWMutex

	readings         *prometheus.GaugeVec
	collectorStatus  *prometheus.GaugeVec
	collectorSeconds *prometheus.GaugeVec
	overallStatus    prometheus.Gauge
	generation       prometheus.Gauge
	failures         *prometheus.CounterVec
	skippedTicks     prometheus.Counter
	tickDuration     prometheus.Histogram
}

// New registers the metrics under namespace. A nil registry gets a fresh one.
func New(namespace string, registry *prometheus.Registry) *Exporter {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "healthmon"
	}

	e := &Exporter{
		registry: registry,

		readings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reading",
				Help:      "Latest value of each collected reading",
			},
			[]string{"collector", "metric", "path"},
		),
		collectorStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "collector_status",
				Help:      "Status level of each collector in the latest snapshot",
			},
			[]string{"collector"},
		),
		collectorSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "collector_duration_seconds",
				Help:      "Time each collector took in the latest snapshot",
			},
			[]string{"collector"},
		),
		overallStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overall_status",
			Help:      "Overall status level of the latest snapshot",
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_generation",
			Help:      "Generation of the latest published snapshot",
		}),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collector_failures_total",
				Help:      "Collector failures by error kind",
			},
			[]string{"collector", "kind"},
		),
		skippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_ticks_total",
			Help:      "Interval boundaries skipped because a tick overran",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of each collection tick",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	registry.MustRegister(
		e.readings,
		e.collectorStatus,
		e.collectorSeconds,
		e.overallStatus,
		e.generation,
		e.failures,
		e.skippedTicks,
		e.tickDuration,
	)
	return e
}

func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Gather implements prometheus.Gatherer. It never observes a partially
// applied snapshot.
func (e *Exporter) Gather() ([]*dto.MetricFamily, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.Gather()
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e, promhttp.HandlerOpts{})
}

// StoreSnapshot replaces the gauges with the snapshot's values. Readings and
// collectors missing from the snapshot disappear from the exposition.
func (e *Exporter) StoreSnapshot(_ context.Context, snapshot domain.HealthSnapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.readings.Reset()
	e.collectorStatus.Reset()
	e.collectorSeconds.Reset()

	for name, result := range snapshot.Components {
		e.collectorStatus.WithLabelValues(name).Set(float64(result.Status))
		e.collectorSeconds.WithLabelValues(name).Set(result.Duration.Seconds())
		if result.Error != domain.ErrorNone {
			e.failures.WithLabelValues(name, string(result.Error)).Inc()
		}
		for _, r := range result.Readings {
			e.readings.WithLabelValues(name, r.Name, r.Labels["path"]).Set(r.Value)
		}
	}

	e.overallStatus.Set(float64(snapshot.OverallStatus))
	e.generation.Set(float64(snapshot.Generation))
	return nil
}

func (e *Exporter) ObserveTick(_ domain.HealthSnapshot, elapsed time.Duration) {
	e.tickDuration.Observe(elapsed.Seconds())
}

func (e *Exporter) ObserveSkippedTicks(count int) {
	if count > 0 {
		e.skippedTicks.Add(float64(count))
	}
}
