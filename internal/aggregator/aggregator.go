// Package aggregator reduces the collector results of one tick into a single
// health verdict.
package aggregator

import (
	"sort"

	"healthmon/internal/domain"
)

type Verdict struct {
	Status     domain.StatusLevel
	Components map[string]domain.CollectorResult
	Absent     []string
}

// Reduce applies worst-of semantics over results. An empty result set is
// FAILED. Every name in expected without a result is added as an absent
// component at DEGRADED, which never masks a worse reported status.
func Reduce(results []domain.CollectorResult, expected []string) Verdict {
	verdict := Verdict{
		Status:     domain.StatusFailed,
		Components: make(map[string]domain.CollectorResult, len(expected)),
	}
	if len(results) == 0 {
		return verdict
	}

	status := domain.StatusOK
	for _, result := range results {
		result = result.Normalized(result.CollectorName)
		verdict.Components[result.CollectorName] = result
		status = domain.Worst(status, result.Status)
	}

	for _, name := range expected {
		if _, ok := verdict.Components[name]; ok {
			continue
		}
		absent := domain.AbsentResult(name)
		verdict.Components[name] = absent
		verdict.Absent = append(verdict.Absent, name)
		status = domain.Worst(status, absent.Status)
	}
	sort.Strings(verdict.Absent)

	verdict.Status = status
	return verdict
}

// Overall is the status-only form of Reduce.
func Overall(results []domain.CollectorResult) domain.StatusLevel {
	return Reduce(results, nil).Status
}
