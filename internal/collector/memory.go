package collector

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"healthmon/internal/domain"
)

type MemoryCollector struct {
	base
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

func NewMemoryCollector(thresholds domain.Thresholds) *MemoryCollector {
	return &MemoryCollector{
		base:          newBase("memory", thresholds),
		virtualMemory: mem.VirtualMemoryWithContext,
	}
}

func (c *MemoryCollector) Collect(ctx context.Context) domain.CollectorResult {
	return c.run(ctx, func(ctx context.Context, now time.Time) ([]domain.MetricReading, string, error) {
		stat, err := c.virtualMemory(ctx)
		if err != nil {
			return nil, "", err
		}

		return []domain.MetricReading{
			reading("memory_used_bytes", float64(stat.Used), UnitBytes, now),
			reading("memory_total_bytes", float64(stat.Total), UnitBytes, now),
			reading("memory_used_percent", stat.UsedPercent, UnitPercent, now),
		}, "", nil
	})
}
