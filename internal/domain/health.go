package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type StatusLevel int

const (
	StatusOK StatusLevel = iota
	StatusDegraded
	StatusCritical
	StatusFailed
)

var statusNames = [...]string{"OK", "DEGRADED", "CRITICAL", "FAILED"}

func (s StatusLevel) String() string {
	if s < StatusOK || s > StatusFailed {
		return "UNKNOWN"
	}
	return statusNames[s]
}

func (s StatusLevel) MarshalText() ([]byte, error) {
	if s < StatusOK || s > StatusFailed {
		return nil, fmt.Errorf("invalid status level %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *StatusLevel) UnmarshalText(text []byte) error {
	level, err := ParseStatusLevel(string(text))
	if err != nil {
		return err
	}
	*s = level
	return nil
}

func ParseStatusLevel(name string) (StatusLevel, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, name) {
			return StatusLevel(i), nil
		}
	}
	return StatusFailed, fmt.Errorf("unknown status level %q", name)
}

// Healthy reports whether an orchestrator probe should treat the level as passing.
func (s StatusLevel) Healthy() bool {
	return s == StatusOK || s == StatusDegraded
}

// Worst returns the most severe of the given levels.
func Worst(a, b StatusLevel) StatusLevel {
	if b > a {
		return b
	}
	return a
}

type ErrorKind string

const (
	ErrorNone              ErrorKind = ""
	ErrorTimeout           ErrorKind = "Timeout"
	ErrorSourceUnavailable ErrorKind = "SourceUnavailable"
	ErrorUnexpected        ErrorKind = "UnexpectedFailure"
)

type MetricReading struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit"`
	Timestamp time.Time         `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
}

type CollectorResult struct {
	CollectorName string          `json:"collector_name"`
	Readings      []MetricReading `json:"readings"`
	Status        StatusLevel     `json:"status"`
	Error         ErrorKind       `json:"error,omitempty"`
	Message       string          `json:"message,omitempty"`
	Absent        bool            `json:"absent,omitempty"`
	Duration      time.Duration   `json:"duration"`
}

// FailedResult builds the FAILED result a collector reports in place of readings.
func FailedResult(collector string, kind ErrorKind, message string) CollectorResult {
	if kind == ErrorNone {
		kind = ErrorUnexpected
	}
	return CollectorResult{
		CollectorName: collector,
		Readings:      []MetricReading{},
		Status:        StatusFailed,
		Error:         kind,
		Message:       message,
	}
}

// AbsentResult marks a registered collector that produced nothing for a tick.
func AbsentResult(collector string) CollectorResult {
	return CollectorResult{
		CollectorName: collector,
		Readings:      []MetricReading{},
		Status:        StatusDegraded,
		Message:       "no result reported",
		Absent:        true,
	}
}

// Normalized enforces that an errored result is FAILED and that the result
// carries the name it was registered under.
func (r CollectorResult) Normalized(collector string) CollectorResult {
	r.CollectorName = collector
	if r.Error != ErrorNone {
		r.Status = StatusFailed
	}
	if r.Readings == nil {
		r.Readings = []MetricReading{}
	}
	return r
}

type HealthSnapshot struct {
	Generation    uint64                     `json:"generation"`
	Timestamp     time.Time                  `json:"timestamp"`
	OverallStatus StatusLevel                `json:"overall_status"`
	Components    map[string]CollectorResult `json:"components"`
}

// NewSnapshot copies the components so the snapshot owns them outright.
func NewSnapshot(generation uint64, timestamp time.Time, overall StatusLevel, components map[string]CollectorResult) HealthSnapshot {
	owned := make(map[string]CollectorResult, len(components))
	for name, result := range components {
		readings := make([]MetricReading, len(result.Readings))
		copy(readings, result.Readings)
		result.Readings = readings
		owned[name] = result
	}
	return HealthSnapshot{
		Generation:    generation,
		Timestamp:     timestamp,
		OverallStatus: overall,
		Components:    owned,
	}
}

type Collector interface {
	Name() string
	Collect(ctx context.Context) CollectorResult
}

type SnapshotSink interface {
	StoreSnapshot(ctx context.Context, snapshot HealthSnapshot) error
}

type SnapshotArchive interface {
	SnapshotSink
	Init() error
	GetSnapshots(ctx context.Context, startTime, endTime int64, limit, offset int) ([]HealthSnapshot, error)
	Close() error
}
