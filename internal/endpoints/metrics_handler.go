package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"healthmon/internal/domain"
	"healthmon/internal/util"
)

// MetricsRequest is the optional JSON body of the history endpoint. Query
// parameters take precedence over it.
type MetricsRequest struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// SnapshotQuerier is the read side of the snapshot archive.
type SnapshotQuerier interface {
	GetSnapshots(ctx context.Context, startTime, endTime int64, limit, offset int) ([]domain.HealthSnapshot, error)
}

type FlatReading struct {
	Collector string            `json:"collector"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit"`
	Timestamp time.Time         `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
}

type LatestMetrics struct {
	Generation uint64        `json:"generation"`
	Timestamp  time.Time     `json:"timestamp"`
	Readings   []FlatReading `json:"readings"`
}

// Flatten lists every reading of the snapshot ordered by collector name.
func Flatten(s domain.HealthSnapshot) []FlatReading {
	flat := make([]FlatReading, 0)
	for _, name := range componentNames(s) {
		for _, r := range s.Components[name].Readings {
			flat = append(flat, FlatReading{
				Collector: name,
				Name:      r.Name,
				Value:     r.Value,
				Unit:      r.Unit,
				Timestamp: r.Timestamp,
				Labels:    r.Labels,
			})
		}
	}
	return flat
}

type Metrics struct {
	Response APIResponse
	logger   *util.AgentLogger
	reader   SnapshotReader
	archive  SnapshotQuerier
}

// Init wires the handler. A nil archive disables the history endpoint.
func (m *Metrics) Init(reader SnapshotReader, archive SnapshotQuerier, logger *util.AgentLogger) {
	m.reader = reader
	m.archive = archive
	m.logger = logger
}

func (m *Metrics) GetLatestMetricsHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := m.reader.Latest()
	if snapshot.Generation == 0 {
		m.logger.Warn("no snapshot published yet")
		m.Response.WriteErrorResponseWithStatusCode(w, ErrNoMetricsAvailable, http.StatusNotFound)
		return
	}

	m.Response.WriteResultResponse(w, LatestMetrics{
		Generation: snapshot.Generation,
		Timestamp:  snapshot.Timestamp,
		Readings:   Flatten(snapshot),
	})
}

func (m *Metrics) GetMetricsHistoryHandler(w http.ResponseWriter, r *http.Request) {

	if r.Method != http.MethodGet {
		m.logger.Error("Method Not Allowed. Only GET requests are supported", zap.Int("status", http.StatusMethodNotAllowed))
		m.Response.WriteErrorResponseWithStatusCode(w, errors.New("method Not Allowed. Only GET requests are supported"), http.StatusMethodNotAllowed)
		return
	}

	routeParamValue := mux.Vars(r)

	limit, err := strconv.Atoi(routeParamValue["limit"])
	if err != nil {
		m.logger.Error("while getting limit from URL", zap.Error(err))
		m.Response.WriteErrorResponseWithStatusCode(w, ErrInvalidParameters, http.StatusBadRequest)
		return
	}

	offset, err := strconv.Atoi(routeParamValue["offset"])
	if err != nil {
		m.logger.Error("while getting offset from URL", zap.Error(err))
		m.Response.WriteErrorResponseWithStatusCode(w, ErrInvalidParameters, http.StatusBadRequest)
		return
	}

	var reqBody MetricsRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil && !errors.Is(err, io.EOF) {
			m.logger.Error("while unmarshalling JSON body", zap.Error(err))
			m.Response.WriteErrorResponseWithStatusCode(w, ErrInvalidRequestBody, http.StatusBadRequest)
			return
		}
	}

	startTime, endTime := reqBody.Start, reqBody.End
	query := r.URL.Query()
	if raw := query.Get("start"); raw != "" {
		if startTime, err = strconv.ParseInt(raw, 10, 64); err != nil {
			m.logger.Error("while parsing start", zap.String("start", raw), zap.Error(err))
			m.Response.WriteErrorResponseWithStatusCode(w, ErrInvalidParameters, http.StatusBadRequest)
			return
		}
	}
	if raw := query.Get("end"); raw != "" {
		if endTime, err = strconv.ParseInt(raw, 10, 64); err != nil {
			m.logger.Error("while parsing end", zap.String("end", raw), zap.Error(err))
			m.Response.WriteErrorResponseWithStatusCode(w, ErrInvalidParameters, http.StatusBadRequest)
			return
		}
	}

	if startTime == 0 {
		startTime = time.Now().Add(-24 * time.Hour).Unix()
	}
	if endTime == 0 {
		endTime = time.Now().Unix()
	}

	if startTime > endTime {
		m.logger.Error("given start is after end", zap.Int64("start", startTime), zap.Int64("end", endTime))
		m.Response.WriteErrorResponseWithStatusCode(w, ErrInvalidTimeRange, http.StatusBadRequest)
		return
	}

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	if m.archive == nil {
		m.logger.Warn("snapshot archive is disabled")
		m.Response.WriteErrorResponseWithStatusCode(w, ErrNoMetricsAvailable, http.StatusNotFound)
		return
	}

	fetched, err := m.archive.GetSnapshots(r.Context(), startTime, endTime, limit, offset)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Warn("context cancelled")
			m.Response.WriteErrorResponseWithStatusCode(w, ErrRequestCancelled, http.StatusRequestTimeout)
			return
		}
		m.logger.Error("while GetSnapshots()", zap.Error(err))
		m.Response.WriteErrorResponseWithStatusCode(w, err, http.StatusInternalServerError)
		return
	}

	if len(fetched) == 0 {
		m.logger.Warn("insufficient snapshot data")
		m.Response.WriteErrorResponseWithStatusCode(w, ErrNoMetricsAvailable, http.StatusNotFound)
		return
	}

	views := make([]HealthView, 0, len(fetched))
	for _, s := range fetched {
		views = append(views, NewHealthView(s))
	}
	m.Response.WriteResultResponse(w, views)
}
