package collector

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"

	"healthmon/internal/domain"
)

type LoadCollector struct {
	base
	average func(ctx context.Context) (*load.AvgStat, error)
	cores   func(ctx context.Context) (int, error)
}

func NewLoadCollector(thresholds domain.Thresholds) *LoadCollector {
	return &LoadCollector{
		base:    newBase("load", thresholds),
		average: load.AvgWithContext,
		cores: func(ctx context.Context) (int, error) {
			return cpu.CountsWithContext(ctx, true)
		},
	}
}

func (c *LoadCollector) Collect(ctx context.Context) domain.CollectorResult {
	return c.run(ctx, func(ctx context.Context, now time.Time) ([]domain.MetricReading, string, error) {
		avg, err := c.average(ctx)
		if err != nil {
			return nil, "", err
		}
		cores, err := c.cores(ctx)
		if err != nil || cores <= 0 {
			cores = 1
		}

		return []domain.MetricReading{
			reading("load1", avg.Load1, UnitLoad, now),
			reading("load5", avg.Load5, UnitLoad, now),
			reading("load15", avg.Load15, UnitLoad, now),
			reading("load1_per_core", avg.Load1/float64(cores), UnitLoad, now),
		}, "", nil
	})
}
