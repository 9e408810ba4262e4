package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthmon/internal/domain"
	"healthmon/internal/store"
	"healthmon/internal/util"
)

type MockSnapshotArchive struct {
	Snapshots []domain.HealthSnapshot
	Err       error
}

func (m *MockSnapshotArchive) StoreSnapshot(ctx context.Context, s domain.HealthSnapshot) error {
	if m.Err != nil {
		return m.Err
	}
	m.Snapshots = append(m.Snapshots, s)
	return nil
}

func (m *MockSnapshotArchive) GetSnapshots(ctx context.Context, startTime, endTime int64, limit, offset int) ([]domain.HealthSnapshot, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	var filtered []domain.HealthSnapshot
	for _, s := range m.Snapshots {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if ts := s.Timestamp.Unix(); ts >= startTime && ts <= endTime {
			filtered = append(filtered, s)
		}
	}

	if offset >= len(filtered) {
		return []domain.HealthSnapshot{}, nil
	}
	if offset > 0 {
		filtered = filtered[offset:]
	}
	if limit > 0 && limit < len(filtered) {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func snapshot(gen uint64, at time.Time, overall domain.StatusLevel) domain.HealthSnapshot {
	return domain.NewSnapshot(gen, at, overall, map[string]domain.CollectorResult{
		"cpu": {
			CollectorName: "cpu",
			Status:        overall,
			Readings:      []domain.MetricReading{{Name: "cpu_percent", Value: 42, Unit: "percent", Timestamp: at}},
			Duration:      1500 * time.Microsecond,
		},
		"disk": {
			CollectorName: "disk",
			Status:        domain.StatusOK,
			Readings: []domain.MetricReading{
				{Name: "disk_used_percent", Value: 10, Unit: "percent", Labels: map[string]string{"path": "/"}, Timestamp: at},
			},
		},
		"load": domain.AbsentResult("load"),
	})
}

func decodeEnvelope(t *testing.T, body []byte, value interface{}) APIResponse {
	t.Helper()
	var apiResponse APIResponse
	require.NoError(t, json.Unmarshal(body, &apiResponse))
	if value != nil {
		valueBytes, _ := json.Marshal(apiResponse.Value)
		require.NoError(t, json.Unmarshal(valueBytes, value))
	}
	return apiResponse
}

func TestGetHealthHandler(t *testing.T) {
	st := store.NewHealthStore(10)
	healthHandler := &Health{}
	healthHandler.Init(st, &util.AgentLogger{})

	// case 1: placeholder before the first tick is DEGRADED and therefore passing
	rr := httptest.NewRecorder()
	healthHandler.GetHealthHandler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var view HealthView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, domain.StatusDegraded, view.Status)
	assert.Equal(t, uint64(0), view.Generation)
	assert.Empty(t, view.Components)

	// case 2: published snapshot is served as-is
	now := time.Now()
	require.NoError(t, st.Publish(snapshot(1, now, domain.StatusDegraded)))
	rr = httptest.NewRecorder()
	healthHandler.GetHealthHandler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	assert.Equal(t, "DEGRADED", raw["status"])
	components := raw["components"].(map[string]interface{})
	cpu := components["cpu"].(map[string]interface{})
	assert.Equal(t, 1.5, cpu["duration_ms"])
	assert.NotContains(t, cpu, "error")
	load := components["load"].(map[string]interface{})
	assert.Equal(t, true, load["absent"])
	assert.Equal(t, "DEGRADED", load["status"])

	// case 3: CRITICAL and FAILED fail the probe
	require.NoError(t, st.Publish(snapshot(2, now.Add(time.Second), domain.StatusCritical)))
	rr = httptest.NewRecorder()
	healthHandler.GetHealthHandler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	require.NoError(t, st.Publish(snapshot(3, now.Add(2*time.Second), domain.StatusFailed)))
	rr = httptest.NewRecorder()
	healthHandler.GetHealthHandler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	// case 4: HEAD carries the status without a body
	rr = httptest.NewRecorder()
	healthHandler.GetHealthHandler(rr, httptest.NewRequest(http.MethodHead, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Empty(t, rr.Body.Bytes())

	// case 5: other methods are rejected
	rr = httptest.NewRecorder()
	healthHandler.GetHealthHandler(rr, httptest.NewRequest(http.MethodPost, "/api/v1/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	apiResponse := decodeEnvelope(t, rr.Body.Bytes(), nil)
	assert.Equal(t, API_FAILURE, apiResponse.ErrorCode)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusCode(domain.StatusOK))
	assert.Equal(t, http.StatusOK, StatusCode(domain.StatusDegraded))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(domain.StatusCritical))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(domain.StatusFailed))
}

func TestGetHistoryHandler(t *testing.T) {
	st := store.NewHealthStore(100)
	now := time.Now()
	for gen := uint64(1); gen <= 60; gen++ {
		require.NoError(t, st.Publish(snapshot(gen, now.Add(time.Duration(gen)*time.Second), domain.StatusOK)))
	}
	healthHandler := &Health{}
	healthHandler.Init(st, &util.AgentLogger{})

	// case 1: default limit
	rr := httptest.NewRecorder()
	healthHandler.GetHistoryHandler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health/history", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	var views []HealthView
	apiResponse := decodeEnvelope(t, rr.Body.Bytes(), &views)
	assert.True(t, apiResponse.Status)
	require.Len(t, views, DefaultHistoryLimit)
	assert.Equal(t, uint64(59), views[0].Generation, "most recent prior snapshot first")

	// case 2: explicit limit
	rr = httptest.NewRecorder()
	healthHandler.GetHistoryHandler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health/history?limit=3", nil))
	views = nil
	decodeEnvelope(t, rr.Body.Bytes(), &views)
	require.Len(t, views, 3)
	assert.Equal(t, uint64(57), views[2].Generation)

	// case 3: invalid limit
	rr = httptest.NewRecorder()
	healthHandler.GetHistoryHandler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health/history?limit=many", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	apiResponse = decodeEnvelope(t, rr.Body.Bytes(), nil)
	assert.Equal(t, INVALID_PARAMETERS, apiResponse.ErrorCode)
}

func TestGetLivenessHandler(t *testing.T) {
	healthHandler := &Health{}
	healthHandler.Init(store.NewHealthStore(1), nil)

	rr := httptest.NewRecorder()
	healthHandler.GetLivenessHandler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGetLatestMetricsHandler(t *testing.T) {
	st := store.NewHealthStore(10)
	metricsHandler := &Metrics{}
	metricsHandler.Init(st, nil, &util.AgentLogger{})

	// case 1: nothing published yet
	rr := httptest.NewRecorder()
	metricsHandler.GetLatestMetricsHandler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	apiResponse := decodeEnvelope(t, rr.Body.Bytes(), nil)
	assert.Equal(t, METRICS_NOT_AVAILABLE, apiResponse.ErrorCode)

	// case 2: flattened readings ordered by collector
	require.NoError(t, st.Publish(snapshot(4, time.Now(), domain.StatusOK)))
	rr = httptest.NewRecorder()
	metricsHandler.GetLatestMetricsHandler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var latest LatestMetrics
	apiResponse = decodeEnvelope(t, rr.Body.Bytes(), &latest)
	assert.True(t, apiResponse.Status)
	assert.Equal(t, API_SUCCESS, apiResponse.ErrorCode)
	assert.Equal(t, uint64(4), latest.Generation)
	require.Len(t, latest.Readings, 2)
	assert.Equal(t, "cpu", latest.Readings[0].Collector)
	assert.Equal(t, "disk", latest.Readings[1].Collector)
	assert.Equal(t, "/", latest.Readings[1].Labels["path"])
}

func historyRequest(t *testing.T, limit, offset, query string, body []byte) *http.Request {
	t.Helper()
	target := "/api/v1/metrics/history/" + limit + "/" + offset + query
	var reader io.Reader
	if body != nil {
		reader = bytes.NewBuffer(body)
	}
	req, err := http.NewRequest("GET", target, reader)
	require.NoError(t, err)
	return mux.SetURLVars(req, map[string]string{"limit": limit, "offset": offset})
}

func TestGetMetricsHistoryHandler(t *testing.T) {
	mockArchive := &MockSnapshotArchive{}
	now := time.Now()
	for i := 0; i < 10; i++ {
		mockArchive.StoreSnapshot(context.Background(), snapshot(uint64(i+1), now.Add(-time.Duration(9-i)*10*time.Second), domain.StatusOK))
	}
	start := now.Add(-100 * time.Second).Unix()
	end := now.Add(10 * time.Second).Unix()
	window := "?start=" + itoa(start) + "&end=" + itoa(end)

	metricsHandler := &Metrics{}
	metricsHandler.Init(store.NewHealthStore(1), mockArchive, &util.AgentLogger{})

	// case 1: everything in range
	rr := httptest.NewRecorder()
	metricsHandler.GetMetricsHistoryHandler(rr, historyRequest(t, "100", "0", window, nil))
	assert.Equal(t, http.StatusOK, rr.Code, "Expected status OK")
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var views []HealthView
	apiResponse := decodeEnvelope(t, rr.Body.Bytes(), &views)
	assert.True(t, apiResponse.Status)
	assert.Equal(t, API_SUCCESS, apiResponse.ErrorCode)
	assert.Len(t, views, 10)

	// case 2: range in a JSON body is still honoured
	jsonBody, _ := json.Marshal(MetricsRequest{Start: now.Add(-25 * time.Second).Unix(), End: end})
	rr = httptest.NewRecorder()
	metricsHandler.GetMetricsHistoryHandler(rr, historyRequest(t, "100", "0", "", jsonBody))
	assert.Equal(t, http.StatusOK, rr.Code)
	views = nil
	decodeEnvelope(t, rr.Body.Bytes(), &views)
	assert.Len(t, views, 3)

	// case 3: invalid JSON body
	rr = httptest.NewRecorder()
	metricsHandler.GetMetricsHistoryHandler(rr, historyRequest(t, "100", "0", "", []byte("invalid json")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	apiResponse = decodeEnvelope(t, rr.Body.Bytes(), nil)
	assert.Equal(t, INVALID_REQUEST_BODY, apiResponse.ErrorCode)
	assert.Contains(t, apiResponse.Error, ErrInvalidRequestBody.Error())

	// case 4: start after end
	rr = httptest.NewRecorder()
	metricsHandler.GetMetricsHistoryHandler(rr, historyRequest(t, "100", "0", "?start="+itoa(end)+"&end="+itoa(start), nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	apiResponse = decodeEnvelope(t, rr.Body.Bytes(), nil)
	assert.Equal(t, INVALID_TIME_RANGE, apiResponse.ErrorCode)

	// case 5: non-integer start
	rr = httptest.NewRecorder()
	metricsHandler.GetMetricsHistoryHandler(rr, historyRequest(t, "100", "0", "?start=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	apiResponse = decodeEnvelope(t, rr.Body.Bytes(), nil)
	assert.Equal(t, INVALID_PARAMETERS, apiResponse.ErrorCode)

	// case 6: invalid limit and offset
	for _, lo := range [][2]string{{"abc", "0"}, {"10", "xyz"}} {
		rr = httptest.NewRecorder()
		metricsHandler.GetMetricsHistoryHandler(rr, historyRequest(t, lo[0], lo[1], window, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		apiResponse = decodeEnvelope(t, rr.Body.Bytes(), nil)
		assert.Equal(t, INVALID_PARAMETERS, apiResponse.ErrorCode)
	}

	// case 7: paging
	rr = httptest.NewRecorder()
	metricsHandler.GetMetricsHistoryHandler(rr, historyRequest(t, "5", "8", window, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	views = nil
	decodeEnvelope(t, rr.Body.Bytes(), &views)
	require.Len(t, views, 2)
	assert.Equal(t, uint64(9), views[0].Generation)

	// case 8: negative offset treated as 0, limit 0 defaults to 100
	rr = httptest.NewRecorder()
	metricsHandler.GetMetricsHistoryHandler(rr, historyRequest(t, "0", "-5", window, nil))
	views = nil
	decodeEnvelope(t, rr.Body.Bytes(), &views)
	require.Len(t, views, 10)
	assert.Equal(t, uint64(1), views[0].Generation)

	// case 9: offset beyond data
	rr = httptest.NewRecorder()
	metricsHandler.GetMetricsHistoryHandler(rr, historyRequest(t, "5", "100", window, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	apiResponse = decodeEnvelope(t, rr.Body.Bytes(), nil)
	assert.Equal(t, METRICS_NOT_AVAILABLE, apiResponse.ErrorCode)

	// case 10: wrong method
	req := historyRequest(t, "10", "0", window, nil)
	req.Method = http.MethodPost
	rr = httptest.NewRecorder()
	metricsHandler.GetMetricsHistoryHandler(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	// case 11: cancellation
	cancelled := &Metrics{}
	cancelled.Init(store.NewHealthStore(1), &MockSnapshotArchive{Err: context.Canceled}, &util.AgentLogger{})
	req = historyRequest(t, "10", "0", window, nil)
	ctx, cancel := context.WithCancel(req.Context())
	cancel()
	rr = httptest.NewRecorder()
	cancelled.GetMetricsHistoryHandler(rr, req.WithContext(ctx))
	assert.Equal(t, http.StatusRequestTimeout, rr.Code)
	apiResponse = decodeEnvelope(t, rr.Body.Bytes(), nil)
	assert.Equal(t, REQUEST_CANCELLED, apiResponse.ErrorCode)

	// case 12: archive failure
	failing := &Metrics{}
	failing.Init(store.NewHealthStore(1), &MockSnapshotArchive{Err: errors.New("database is locked")}, nil)
	rr = httptest.NewRecorder()
	failing.GetMetricsHistoryHandler(rr, historyRequest(t, "10", "0", window, nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	apiResponse = decodeEnvelope(t, rr.Body.Bytes(), nil)
	assert.Equal(t, API_FAILURE, apiResponse.ErrorCode)

	// case 13: archive disabled
	disabled := &Metrics{}
	disabled.Init(store.NewHealthStore(1), nil, nil)
	rr = httptest.NewRecorder()
	disabled.GetMetricsHistoryHandler(rr, historyRequest(t, "10", "0", window, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSystemHandlers(t *testing.T) {
	systemHandler := &System{}
	started := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	systemHandler.Init(ServiceInfo{Service: "healthmon", Version: "1.0.0", InstanceID: "abc", StartedAt: started}, nil)
	systemHandler.hostInfo = func(ctx context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{Hostname: "node-7", Platform: "ubuntu", KernelVersion: "6.1.0", BootTime: 1700000000, Uptime: 3600}, nil
	}
	systemHandler.cpuCount = func(ctx context.Context) (int, error) { return 8, nil }
	systemHandler.memoryTotal = func(ctx context.Context) (uint64, error) { return 0, errors.New("no meminfo") }

	rr := httptest.NewRecorder()
	systemHandler.GetServiceInfoHandler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/", nil))
	var service ServiceInfo
	decodeEnvelope(t, rr.Body.Bytes(), &service)
	assert.Equal(t, "abc", service.InstanceID)
	assert.True(t, started.Equal(service.StartedAt))

	rr = httptest.NewRecorder()
	systemHandler.GetSystemInfoHandler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/system/info", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	var info SystemInfo
	decodeEnvelope(t, rr.Body.Bytes(), &info)
	assert.Equal(t, "node-7", info.Hostname)
	assert.Equal(t, "ubuntu", info.Platform)
	assert.Equal(t, 8, info.CPUCount)
	assert.Zero(t, info.MemoryTotalBytes, "a failing probe leaves its field empty")
	assert.Equal(t, int64(1700000000), info.BootTime.Unix())
	assert.NotEmpty(t, info.GoVersion)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
