package endpoints

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"healthmon/internal/domain"
	"healthmon/internal/util"
)

const DefaultHistoryLimit = 50

// SnapshotReader is the read side of the health store.
type SnapshotReader interface {
	Latest() domain.HealthSnapshot
	History(limit int) []domain.HealthSnapshot
}

type ComponentView struct {
	Status     domain.StatusLevel     `json:"status"`
	Readings   []domain.MetricReading `json:"readings"`
	Error      domain.ErrorKind       `json:"error,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Absent     bool                   `json:"absent,omitempty"`
	DurationMS float64                `json:"duration_ms"`
}

type HealthView struct {
	Status     domain.StatusLevel       `json:"status"`
	Generation uint64                   `json:"generation"`
	Timestamp  time.Time                `json:"timestamp"`
	Components map[string]ComponentView `json:"components"`
}

func NewHealthView(s domain.HealthSnapshot) HealthView {
	components := make(map[string]ComponentView, len(s.Components))
	for name, r := range s.Components {
		readings := r.Readings
		if readings == nil {
			readings = []domain.MetricReading{}
		}
		components[name] = ComponentView{
			Status:     r.Status,
			Readings:   readings,
			Error:      r.Error,
			Message:    r.Message,
			Absent:     r.Absent,
			DurationMS: float64(r.Duration) / float64(time.Millisecond),
		}
	}
	return HealthView{
		Status:     s.OverallStatus,
		Generation: s.Generation,
		Timestamp:  s.Timestamp,
		Components: components,
	}
}

// StatusCode maps an overall status onto the probe response code.
func StatusCode(level domain.StatusLevel) int {
	if level.Healthy() {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

type Health struct {
	Response APIResponse
	logger   *util.AgentLogger
	reader   SnapshotReader
}

func (h *Health) Init(reader SnapshotReader, logger *util.AgentLogger) {
	h.reader = reader
	h.logger = logger
}

// GetHealthHandler serves the latest snapshot. The body is not enveloped so
// that probes can read the status directly.
func (h *Health) GetHealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.logger.Error("method not allowed on health endpoint", zap.String("method", r.Method))
		h.Response.WriteErrorResponseWithStatusCode(w, errors.New("method Not Allowed. Only GET and HEAD requests are supported"), http.StatusMethodNotAllowed)
		return
	}

	snapshot := h.reader.Latest()
	code := StatusCode(snapshot.OverallStatus)
	if code != http.StatusOK {
		h.logger.Debug("reporting unhealthy",
			zap.Stringer("status", snapshot.OverallStatus),
			zap.Uint64("generation", snapshot.Generation))
	}
	writeJSON(w, r, code, NewHealthView(snapshot))
}

// GetLivenessHandler answers as long as the process serves requests.
func (h *Health) GetLivenessHandler(w http.ResponseWriter, r *http.Request) {
	h.Response.WriteResultResponse(w, map[string]string{"status": "alive"})
}

func (h *Health) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.logger.Error("invalid history limit", zap.String("limit", raw))
			h.Response.WriteErrorResponseWithStatusCode(w, ErrInvalidParameters, http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}

	history := h.reader.History(limit)
	views := make([]HealthView, 0, len(history))
	for _, s := range history {
		views = append(views, NewHealthView(s))
	}
	h.Response.WriteResultResponse(w, views)
}

// componentNames lists the components of a snapshot in a stable order.
func componentNames(s domain.HealthSnapshot) []string {
	names := make([]string, 0, len(s.Components))
	for name := range s.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
