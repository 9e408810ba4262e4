package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"healthmon/internal/config"
	"healthmon/internal/router"
)

var runFlags struct {
	listenAddress string
	logLevel      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler and the HTTP server",
	Long: `Start the collection scheduler and serve the latest health snapshot.

The agent stops on SIGINT or SIGTERM. A tick in flight gets the configured
shutdown grace to finish and its snapshot is still published.

Examples:
  # Start with defaults
  agent run

  # Start with a configuration file and a different port
  agent run --config /etc/healthmon/config.yaml --listen :9100`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// loadConfig loads cfgFile and applies command line overrides.
func loadConfig(listen, logLevel string) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if listen == "" && logLevel == "" {
		return cfg, nil
	}
	if listen != "" {
		cfg.API.ListenAddress = listen
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runFlags.listenAddress, runFlags.logLevel)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.Logging, cfg.Logging.Console)
	if err != nil {
		return err
	}
	defer logger.DeInit()

	logger.Info("service started", zap.String("service", cfg.Service.Name), zap.String("version", Version))
	fmt.Fprintf(os.Stderr, "\n%s: healthmon agent started \n", time.Now().Format(time.RFC3339))

	a, err := newAgent(cfg, logger, agentOptions{withArchive: true, withExporter: true})
	if err != nil {
		logger.Error("failed to assemble agent", zap.Error(err))
		return err
	}
	defer a.Close()

	listener, err := net.Listen("tcp", cfg.API.ListenAddress)
	if err != nil {
		logger.Error("failed to listen", zap.String("address", cfg.API.ListenAddress), zap.Error(err))
		return fmt.Errorf("failed to listen on %s: %w", cfg.API.ListenAddress, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := router.NewServer(cfg.API.ListenAddress, a.handler(), router.ServerTimeouts{
		Read:  cfg.API.ReadTimeout(),
		Write: cfg.API.WriteTimeout(),
		Idle:  cfg.API.IdleTimeout(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return router.Run(gctx, server, listener, serverShutdownTimeout(cfg), logger.Named("http"))
	})

	if err := stopError(g.Wait()); err != nil {
		logger.Error("agent stopped with error", zap.Error(err))
		return err
	}
	logger.Info("agent stopped")
	return nil
}

// stopError drops the cancellation that ends a normal shutdown.
func stopError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serverShutdownTimeout bounds in-flight requests on shutdown and is never
// shorter than the scheduler's grace.
func serverShutdownTimeout(cfg *config.Config) time.Duration {
	timeout := cfg.Agent.ShutdownGrace() + 5*time.Second
	if timeout < 10*time.Second {
		timeout = 10 * time.Second
	}
	return timeout
}
