package domain

import "fmt"

type ThresholdRule struct {
	MetricName string  `json:"metric_name" yaml:"-"`
	WarnAt     float64 `json:"warn_at" yaml:"warn_at"`
	CriticalAt float64 `json:"critical_at" yaml:"critical_at"`
}

func (t ThresholdRule) Validate() error {
	if t.WarnAt > t.CriticalAt {
		return fmt.Errorf("threshold %q: warn_at %.2f is above critical_at %.2f", t.MetricName, t.WarnAt, t.CriticalAt)
	}
	return nil
}

func (t ThresholdRule) Classify(value float64) StatusLevel {
	switch {
	case value >= t.CriticalAt:
		return StatusCritical
	case value >= t.WarnAt:
		return StatusDegraded
	default:
		return StatusOK
	}
}

// Thresholds indexes rules by the reading name they apply to.
type Thresholds map[string]ThresholdRule

func NewThresholds(rules ...ThresholdRule) Thresholds {
	t := make(Thresholds, len(rules))
	for _, rule := range rules {
		t[rule.MetricName] = rule
	}
	return t
}

// Classify returns the level for a reading and whether any rule applied.
func (t Thresholds) Classify(reading MetricReading) (StatusLevel, bool) {
	rule, ok := t[reading.Name]
	if !ok {
		return StatusOK, false
	}
	return rule.Classify(reading.Value), true
}

// Evaluate folds the classification of every reading into one level.
func (t Thresholds) Evaluate(readings []MetricReading) StatusLevel {
	status := StatusOK
	for _, reading := range readings {
		if level, ok := t.Classify(reading); ok {
			status = Worst(status, level)
		}
	}
	return status
}
