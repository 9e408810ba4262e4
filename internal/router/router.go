package router

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"healthmon/internal/endpoints"
	"healthmon/internal/util"
)

// Dependencies are the read-only views the HTTP surface serves from.
type Dependencies struct {
	Snapshots endpoints.SnapshotReader
	// Archive may be nil when the archive is disabled.
	Archive endpoints.SnapshotQuerier
	// Exposition may be nil when Prometheus export is disabled.
	Exposition http.Handler
	Service    endpoints.ServiceInfo
	Logger     *util.AgentLogger
}

func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()

	addRoutes(r, deps)

	r.Use(loggingMiddleware(deps.Logger))

	return r
}

func addRoutes(r *mux.Router, deps Dependencies) {
	healthHandler := &endpoints.Health{}
	healthHandler.Init(deps.Snapshots, deps.Logger)

	metricsHandler := &endpoints.Metrics{}
	metricsHandler.Init(deps.Snapshots, deps.Archive, deps.Logger)

	systemHandler := &endpoints.System{}
	systemHandler.Init(deps.Service, deps.Logger)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/", systemHandler.GetServiceInfoHandler).Methods("GET")
	// The handler answers 405 itself; a method matcher here turns it into 404.
	api.HandleFunc("/health", healthHandler.GetHealthHandler)
	api.HandleFunc("/health/live", healthHandler.GetLivenessHandler).Methods("GET", "HEAD")
	api.HandleFunc("/health/history", healthHandler.GetHistoryHandler).Methods("GET")
	api.HandleFunc("/metrics", metricsHandler.GetLatestMetricsHandler).Methods("GET")
	api.HandleFunc("/metrics/history/{limit}/{offset}", metricsHandler.GetMetricsHistoryHandler).Methods("GET")
	api.HandleFunc("/system/info", systemHandler.GetSystemInfoHandler).Methods("GET")

	if deps.Exposition != nil {
		r.Handle("/metrics", deps.Exposition).Methods("GET")
	}
}

type ServerTimeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

func NewServer(addr string, handler http.Handler, timeouts ServerTimeouts) *http.Server {
	if timeouts.Read <= 0 {
		timeouts.Read = 5 * time.Second
	}
	if timeouts.Write <= 0 {
		timeouts.Write = 10 * time.Second
	}
	if timeouts.Idle <= 0 {
		timeouts.Idle = 120 * time.Second
	}
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  timeouts.Read,
		WriteTimeout: timeouts.Write,
		IdleTimeout:  timeouts.Idle,
	}
}

// Run serves on listener until ctx is cancelled, then shuts the server down
// within shutdownTimeout.
func Run(ctx context.Context, server *http.Server, listener net.Listener, shutdownTimeout time.Duration, logger *util.AgentLogger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("address", listener.Addr().String()))
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	if err := gracefulShutdown(server, shutdownTimeout); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}

func gracefulShutdown(server *http.Server, maximumTime time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), maximumTime)
	defer cancel()

	return server.Shutdown(ctx)
}

func loggingMiddleware(logger *util.AgentLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("uri", r.RequestURI),
				zap.Duration("elapsed", time.Since(started)))
		})
	}
}
