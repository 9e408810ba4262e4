package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"healthmon/internal/domain"
)

type ProcessLimits struct {
	CPUPercent    float64
	MemoryPercent float64
	MaxFlagged    int
	// TopN is how many of the busiest processes the message names. Zero
	// leaves them out.
	TopN int
}

func (l ProcessLimits) enabled() bool {
	return l.CPUPercent > 0 || l.MemoryPercent > 0
}

func (l ProcessLimits) exceeded(p processSample) bool {
	return (l.CPUPercent > 0 && p.CPUPercent > l.CPUPercent) ||
		(l.MemoryPercent > 0 && p.MemoryPercent > l.MemoryPercent)
}

type processSample struct {
	PID           int32
	Name          string
	CPUPercent    float64
	MemoryPercent float64
}

// ProcessCollector counts running processes. With TopN or limits configured
// it also inspects each process, names the busiest ones and flags those
// above the CPU or memory limit.
type ProcessCollector struct {
	base
	limits ProcessLimits
	count  func(ctx context.Context) (int, error)
	// list returns the inspectable processes and the number enumerated.
	list func(ctx context.Context) ([]processSample, int, error)
}

func NewProcessCollector(limits ProcessLimits, thresholds domain.Thresholds) *ProcessCollector {
	if limits.MaxFlagged <= 0 {
		limits.MaxFlagged = 5
	}
	return &ProcessCollector{
		base:   newBase("process", thresholds),
		limits: limits,
		count:  countProcesses,
		list:   listProcesses,
	}
}

func countProcesses(ctx context.Context) (int, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return len(pids), nil
}

// Processes that exit or deny access between listing and inspection are
// skipped but still counted.
func listProcesses(ctx context.Context) ([]processSample, int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	samples := make([]processSample, 0, len(procs))
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		cpuPercent, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			continue
		}
		memPercent, err := p.MemoryPercentWithContext(ctx)
		if err != nil {
			continue
		}
		name, _ := p.NameWithContext(ctx)
		samples = append(samples, processSample{
			PID:           p.Pid,
			Name:          name,
			CPUPercent:    cpuPercent,
			MemoryPercent: float64(memPercent),
		})
	}
	return samples, len(procs), nil
}

func (c *ProcessCollector) Collect(ctx context.Context) domain.CollectorResult {
	return c.run(ctx, func(ctx context.Context, now time.Time) ([]domain.MetricReading, string, error) {
		if !c.limits.enabled() && c.limits.TopN <= 0 {
			count, err := c.count(ctx)
			if err != nil {
				return nil, "", err
			}
			return []domain.MetricReading{
				reading("process_count", float64(count), UnitCount, now),
			}, "", nil
		}

		samples, total, err := c.list(ctx)
		if err != nil {
			return nil, "", err
		}
		sort.SliceStable(samples, func(i, j int) bool {
			if samples[i].CPUPercent != samples[j].CPUPercent {
				return samples[i].CPUPercent > samples[j].CPUPercent
			}
			return samples[i].MemoryPercent > samples[j].MemoryPercent
		})

		readings := []domain.MetricReading{
			reading("process_count", float64(total), UnitCount, now),
		}
		var parts []string
		if c.limits.TopN > 0 && len(samples) > 0 {
			top := samples
			if len(top) > c.limits.TopN {
				top = top[:c.limits.TopN]
			}
			parts = append(parts, "top cpu: "+describeProcesses(top))
		}
		if c.limits.enabled() {
			var flagged []processSample
			for _, p := range samples {
				if c.limits.exceeded(p) {
					flagged = append(flagged, p)
				}
			}
			readings = append(readings, reading("process_flagged_count", float64(len(flagged)), UnitCount, now))
			if msg := describeFlagged(flagged, c.limits.MaxFlagged); msg != "" {
				parts = append(parts, msg)
			}
		}
		return readings, strings.Join(parts, "; "), nil
	})
}

func describeProcesses(procs []processSample) string {
	parts := make([]string, 0, len(procs))
	for _, p := range procs {
		parts = append(parts, fmt.Sprintf("%s(%d) cpu=%.1f%% mem=%.1f%%", p.Name, p.PID, p.CPUPercent, p.MemoryPercent))
	}
	return strings.Join(parts, ", ")
}

func describeFlagged(flagged []processSample, limit int) string {
	if len(flagged) == 0 {
		return ""
	}
	shown := flagged
	if len(shown) > limit {
		shown = shown[:limit]
	}
	msg := fmt.Sprintf("%d over limit: %s", len(flagged), describeProcesses(shown))
	if len(flagged) > len(shown) {
		msg += fmt.Sprintf(" (+%d more)", len(flagged)-len(shown))
	}
	return msg
}
