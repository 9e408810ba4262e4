package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"healthmon/internal/domain"
)

// DiskCollector reports usage for each configured mount path. One unreadable
// path fails the whole collector so that a vanished volume is never reported
// as healthy.
type DiskCollector struct {
	base
	paths []string
	usage func(ctx context.Context, path string) (*disk.UsageStat, error)
}

func NewDiskCollector(paths []string, thresholds domain.Thresholds) *DiskCollector {
	owned := make([]string, len(paths))
	copy(owned, paths)
	return &DiskCollector{
		base:  newBase("disk", thresholds),
		paths: owned,
		usage: disk.UsageWithContext,
	}
}

func (c *DiskCollector) Collect(ctx context.Context) domain.CollectorResult {
	return c.run(ctx, func(ctx context.Context, now time.Time) ([]domain.MetricReading, string, error) {
		if len(c.paths) == 0 {
			return nil, "", fmt.Errorf("%w: no mount paths configured", ErrSourceUnavailable)
		}

		readings := make([]domain.MetricReading, 0, len(c.paths)*3)
		for _, path := range c.paths {
			if err := ctx.Err(); err != nil {
				return nil, "", err
			}
			stat, err := c.usage(ctx, path)
			if err != nil {
				return nil, "", fmt.Errorf("disk usage for %q: %w", path, err)
			}
			if stat.Total == 0 {
				return nil, "", fmt.Errorf("%w: %q reports zero capacity", ErrSourceUnavailable, path)
			}

			labels := map[string]string{"path": path}
			for _, r := range []domain.MetricReading{
				reading("disk_used_bytes", float64(stat.Used), UnitBytes, now),
				reading("disk_total_bytes", float64(stat.Total), UnitBytes, now),
				reading("disk_used_percent", stat.UsedPercent, UnitPercent, now),
			} {
				r.Labels = labels
				readings = append(readings, r)
			}
		}
		return readings, "", nil
	})
}
