package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"healthmon/internal/config"
	"healthmon/internal/endpoints"
)

var probeFlags struct {
	compact bool
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Collect once and print the snapshot",
	Long: `Run a single collection round, print the snapshot as JSON and exit 1
when the overall status is CRITICAL or FAILED. Suitable as an exec health
probe. Logging goes to stderr only.

Examples:
  agent probe --config config.yaml`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().BoolVar(&probeFlags.compact, "compact", false, "print the snapshot on one line")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	// No log file for a one-shot probe.
	probeLogging := cfg.Logging
	probeLogging.File = ""
	logger, err := initLogger(probeLogging, true)
	if err != nil {
		return err
	}
	defer logger.DeInit()

	a, err := newAgent(cfg, logger, agentOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshot := a.scheduler.Tick(ctx)
	if err := writeSnapshot(cmd.OutOrStdout(), endpoints.NewHealthView(snapshot), probeFlags.compact); err != nil {
		return err
	}

	if !snapshot.OverallStatus.Healthy() {
		logger.Warn(fmt.Sprintf("probe reports %s", snapshot.OverallStatus))
		return errUnhealthy
	}
	return nil
}

func writeSnapshot(w io.Writer, view endpoints.HealthView, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(view); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}
