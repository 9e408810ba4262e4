package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"healthmon/internal/collector"
	"healthmon/internal/config"
	"healthmon/internal/domain"
	"healthmon/internal/endpoints"
	"healthmon/internal/exporter"
	"healthmon/internal/repository"
	"healthmon/internal/router"
	"healthmon/internal/scheduler"
	"healthmon/internal/store"
	"healthmon/internal/util"
)

// agent holds the wired components of one process.
type agent struct {
	cfg        *config.Config
	logger     *util.AgentLogger
	instanceID string
	startedAt  time.Time

	store     *store.HealthStore
	scheduler *scheduler.Scheduler
	archive   *repository.SQLiteStore
	exporter  *exporter.Exporter
}

type agentOptions struct {
	withArchive  bool
	withExporter bool
}

func newAgent(cfg *config.Config, logger *util.AgentLogger, opts agentOptions) (*agent, error) {
	a := &agent{
		cfg:        cfg,
		logger:     logger,
		instanceID: uuid.NewString(),
		startedAt:  time.Now(),
		store:      store.NewHealthStore(cfg.Agent.HistorySize),
	}

	var sinks []domain.SnapshotSink
	var observer scheduler.TickObserver

	if opts.withArchive && cfg.Archive.Enabled {
		a.archive = repository.NewSQLiteStore(cfg.Archive.Capacity, logger.Named("archive"))
		if err := a.archive.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize snapshot archive: %w", err)
		}
		sinks = append(sinks, a.archive)
	}
	if opts.withExporter && cfg.Metrics.Enabled {
		a.exporter = exporter.New(cfg.Metrics.Namespace, nil)
		sinks = append(sinks, a.exporter)
		observer = a.exporter
	}

	collectors := collector.Build(cfg.Collectors, cfg.ThresholdSet())
	sched, err := scheduler.New(collectors, a.store, scheduler.Options{
		Interval:            cfg.Agent.Interval(),
		PerCollectorTimeout: cfg.Agent.PerCollectorTimeout(),
		ShutdownGrace:       cfg.Agent.ShutdownGrace(),
		Sinks:               sinks,
		Observer:            observer,
		Logger:              logger.Named("scheduler"),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}
	a.scheduler = sched

	logger.Info("agent assembled",
		zap.String("instance_id", a.instanceID),
		zap.Int("collectors", len(collectors)),
		zap.Bool("archive", a.archive != nil),
		zap.Bool("prometheus", a.exporter != nil))
	return a, nil
}

func (a *agent) handler() http.Handler {
	deps := router.Dependencies{
		Snapshots: a.store,
		Service: endpoints.ServiceInfo{
			Service:    a.cfg.Service.Name,
			Version:    a.cfg.Service.Version,
			InstanceID: a.instanceID,
			StartedAt:  a.startedAt,
		},
		Logger: a.logger.Named("http"),
	}
	// Interface fields stay nil rather than holding a nil pointer.
	if a.archive != nil {
		deps.Archive = a.archive
	}
	if a.exporter != nil {
		deps.Exposition = a.exporter.Handler()
	}
	return router.NewRouter(deps)
}

func (a *agent) Close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("failed to close snapshot archive", zap.Error(err))
		}
	}
}

// initLogger starts the file and console logger described by cfg.
func initLogger(cfg config.LoggingConfig, console bool) (*util.AgentLogger, error) {
	level, err := util.ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	logger := &util.AgentLogger{}
	if err := logger.Init(util.LogOptions{
		Folder:  cfg.Folder,
		File:    cfg.File,
		Level:   level,
		Console: console,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		return nil, err
	}
	return logger, nil
}
