package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"healthmon/internal/domain"
)

// CPUCollector reports utilisation over the window since its previous sample.
// The first sample covers the window since boot.
type CPUCollector struct {
	base
	times func(ctx context.Context) (cpu.TimesStat, error)

	mu          sync.Mutex
	prev        cpu.TimesStat
	hasPrev     bool
	lastPercent float64
}

func NewCPUCollector(thresholds domain.Thresholds) *CPUCollector {
	return &CPUCollector{
		base:  newBase("cpu", thresholds),
		times: aggregateCPUTimes,
	}
}

func aggregateCPUTimes(ctx context.Context) (cpu.TimesStat, error) {
	stats, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return cpu.TimesStat{}, err
	}
	if len(stats) == 0 {
		return cpu.TimesStat{}, fmt.Errorf("%w: no cpu time counters", ErrSourceUnavailable)
	}
	return stats[0], nil
}

func (c *CPUCollector) Collect(ctx context.Context) domain.CollectorResult {
	return c.run(ctx, func(ctx context.Context, now time.Time) ([]domain.MetricReading, string, error) {
		current, err := c.times(ctx)
		if err != nil {
			return nil, "", err
		}

		percent := c.advance(current)
		return []domain.MetricReading{
			reading("cpu_percent", percent, UnitPercent, now),
		}, "", nil
	})
}

func (c *CPUCollector) advance(current cpu.TimesStat) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var prev cpu.TimesStat
	if c.hasPrev {
		prev = c.prev
	}
	c.prev = current
	c.hasPrev = true

	total := cpuTotal(current) - cpuTotal(prev)
	if total <= 0 {
		return c.lastPercent
	}
	busy := cpuBusy(current) - cpuBusy(prev)
	percent := busy / total * 100
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	c.lastPercent = percent
	return percent
}

// Guest time is already accounted in User on Linux.
func cpuTotal(t cpu.TimesStat) float64 {
	return t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal
}

func cpuBusy(t cpu.TimesStat) float64 {
	return cpuTotal(t) - t.Idle - t.Iowait
}
