// Package collector samples one system dimension per collector and classifies
// the readings against configured thresholds.
//
// Every collector reports through base.run, which turns a sampling error into
// a FAILED result so that Collect never returns an error to the scheduler.
package collector

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"time"

	"healthmon/internal/config"
	"healthmon/internal/domain"
)

const (
	UnitPercent = "percent"
	UnitBytes   = "bytes"
	UnitCount   = "count"
	UnitLoad    = "load"
)

// ErrSourceUnavailable marks failures where the OS resource cannot be read.
var ErrSourceUnavailable = errors.New("metric source unavailable")

// ClassifyError maps a sampling error onto the collection error taxonomy.
func ClassifyError(err error) domain.ErrorKind {
	switch {
	case err == nil:
		return domain.ErrorNone
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.ErrorTimeout
	case errors.Is(err, ErrSourceUnavailable),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, fs.ErrNotExist),
		strings.Contains(err.Error(), "not implemented"):
		return domain.ErrorSourceUnavailable
	default:
		return domain.ErrorUnexpected
	}
}

type sampleFunc func(ctx context.Context, now time.Time) ([]domain.MetricReading, string, error)

type base struct {
	name       string
	thresholds domain.Thresholds
	now        func() time.Time
}

func newBase(name string, thresholds domain.Thresholds) base {
	return base{name: name, thresholds: thresholds, now: time.Now}
}

func (b base) Name() string {
	return b.name
}

func (b base) run(ctx context.Context, sample sampleFunc) domain.CollectorResult {
	started := b.now()
	if err := ctx.Err(); err != nil {
		result := domain.FailedResult(b.name, ClassifyError(err), err.Error())
		result.Duration = time.Since(started)
		return result
	}

	readings, message, err := sample(ctx, started)
	if err != nil {
		result := domain.FailedResult(b.name, ClassifyError(err), err.Error())
		result.Duration = time.Since(started)
		return result
	}

	return domain.CollectorResult{
		CollectorName: b.name,
		Readings:      readings,
		Status:        b.thresholds.Evaluate(readings),
		Message:       message,
		Duration:      time.Since(started),
	}
}

func reading(name string, value float64, unit string, at time.Time) domain.MetricReading {
	return domain.MetricReading{Name: name, Value: value, Unit: unit, Timestamp: at}
}

// Build constructs the enabled collectors in a fixed order. The returned slice
// is owned by the caller and is not retained.
func Build(cfg config.CollectorsConfig, thresholds domain.Thresholds) []domain.Collector {
	collectors := make([]domain.Collector, 0, 6)
	if cfg.CPU.Enabled {
		collectors = append(collectors, NewCPUCollector(thresholds))
	}
	if cfg.Memory.Enabled {
		collectors = append(collectors, NewMemoryCollector(thresholds))
	}
	if cfg.Disk.Enabled {
		collectors = append(collectors, NewDiskCollector(cfg.Disk.Paths, thresholds))
	}
	if cfg.Network.Enabled {
		collectors = append(collectors, NewNetworkCollector(cfg.Network.Interfaces, thresholds))
	}
	if cfg.Process.Enabled {
		collectors = append(collectors, NewProcessCollector(ProcessLimits{
			CPUPercent:    cfg.Process.CPUPercentLimit,
			MemoryPercent: cfg.Process.MemoryPercentLimit,
			MaxFlagged:    cfg.Process.MaxFlagged,
			TopN:          cfg.Process.TopN,
		}, thresholds))
	}
	if cfg.Load.Enabled {
		collectors = append(collectors, NewLoadCollector(thresholds))
	}
	return collectors
}
