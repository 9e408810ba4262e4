package domain

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdRule_Classify(t *testing.T) {
	rule := ThresholdRule{MetricName: "cpu_percent", WarnAt: 75, CriticalAt: 90}

	assert.Equal(t, StatusOK, rule.Classify(0))
	assert.Equal(t, StatusOK, rule.Classify(74.99))
	assert.Equal(t, StatusDegraded, rule.Classify(75))
	assert.Equal(t, StatusDegraded, rule.Classify(89.99))
	assert.Equal(t, StatusCritical, rule.Classify(90))
	assert.Equal(t, StatusCritical, rule.Classify(95))

	// warn_at == critical_at skips straight to CRITICAL
	equal := ThresholdRule{MetricName: "x", WarnAt: 50, CriticalAt: 50}
	assert.Equal(t, StatusOK, equal.Classify(49))
	assert.Equal(t, StatusCritical, equal.Classify(50))
}

func TestThresholdRule_ClassifyRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		warn := rng.Float64() * 100
		critical := warn + rng.Float64()*50
		value := rng.Float64() * 200
		rule := ThresholdRule{MetricName: "m", WarnAt: warn, CriticalAt: critical}

		got := rule.Classify(value)
		switch {
		case value >= critical:
			assert.Equal(t, StatusCritical, got)
		case value >= warn:
			assert.Equal(t, StatusDegraded, got)
		default:
			assert.Equal(t, StatusOK, got)
		}
		assert.Equal(t, got, rule.Classify(value), "classification must be deterministic")
	}
}

func TestThresholdRule_Validate(t *testing.T) {
	assert.NoError(t, ThresholdRule{MetricName: "a", WarnAt: 1, CriticalAt: 2}.Validate())
	assert.NoError(t, ThresholdRule{MetricName: "a", WarnAt: 2, CriticalAt: 2}.Validate())
	assert.Error(t, ThresholdRule{MetricName: "a", WarnAt: 3, CriticalAt: 2}.Validate())
}

func TestThresholds_Evaluate(t *testing.T) {
	thresholds := NewThresholds(
		ThresholdRule{MetricName: "disk_used_percent", WarnAt: 90, CriticalAt: 95},
	)
	now := time.Now()
	readings := []MetricReading{
		{Name: "disk_used_percent", Value: 50, Timestamp: now, Labels: map[string]string{"path": "/"}},
		{Name: "disk_used_percent", Value: 92, Timestamp: now, Labels: map[string]string{"path": "/data"}},
		{Name: "disk_total_bytes", Value: 1e12, Timestamp: now},
	}

	assert.Equal(t, StatusDegraded, thresholds.Evaluate(readings))
	assert.Equal(t, StatusOK, thresholds.Evaluate(nil))

	_, ok := thresholds.Classify(readings[2])
	assert.False(t, ok, "readings without a rule are informational")
}

func TestStatusLevel_OrderingAndText(t *testing.T) {
	assert.True(t, StatusOK < StatusDegraded)
	assert.True(t, StatusDegraded < StatusCritical)
	assert.True(t, StatusCritical < StatusFailed)

	assert.True(t, StatusOK.Healthy())
	assert.True(t, StatusDegraded.Healthy())
	assert.False(t, StatusCritical.Healthy())
	assert.False(t, StatusFailed.Healthy())

	level, err := ParseStatusLevel("critical")
	require.NoError(t, err)
	assert.Equal(t, StatusCritical, level)

	_, err = ParseStatusLevel("sideways")
	assert.Error(t, err)

	_, err = StatusLevel(17).MarshalText()
	assert.Error(t, err)
}

func TestCollectorResult_Normalized(t *testing.T) {
	result := CollectorResult{CollectorName: "wrong", Status: StatusOK, Error: ErrorTimeout}
	normalized := result.Normalized("cpu")

	assert.Equal(t, "cpu", normalized.CollectorName)
	assert.Equal(t, StatusFailed, normalized.Status, "an errored result is always FAILED")
	assert.NotNil(t, normalized.Readings)

	failed := FailedResult("disk", ErrorNone, "boom")
	assert.Equal(t, ErrorUnexpected, failed.Error)
	assert.Equal(t, StatusFailed, failed.Status)

	absent := AbsentResult("load")
	assert.True(t, absent.Absent)
	assert.Equal(t, StatusDegraded, absent.Status)
	assert.Equal(t, ErrorNone, absent.Error)
}

func TestNewSnapshot_OwnsComponents(t *testing.T) {
	readings := []MetricReading{{Name: "cpu_percent", Value: 10}}
	components := map[string]CollectorResult{
		"cpu": {CollectorName: "cpu", Readings: readings, Status: StatusOK},
	}

	snapshot := NewSnapshot(1, time.Now(), StatusOK, components)

	readings[0].Value = 99
	components["memory"] = CollectorResult{CollectorName: "memory"}

	assert.Len(t, snapshot.Components, 1)
	assert.Equal(t, 10.0, snapshot.Components["cpu"].Readings[0].Value)

	body, err := json.Marshal(snapshot)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"overall_status":"OK"`)

	var decoded HealthSnapshot
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, snapshot.Generation, decoded.Generation)
	assert.Equal(t, StatusOK, decoded.Components["cpu"].Status)
}
