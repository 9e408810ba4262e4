package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"healthmon/internal/config"
)

var cfgFile string

// errUnhealthy is returned by probe when the snapshot fails the health check.
var errUnhealthy = errors.New("host is unhealthy")

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "healthmon - host health monitoring agent",
	Long: `healthmon periodically samples CPU, memory, disk, process and load
metrics, classifies them against configured thresholds and publishes an
aggregate health snapshot over HTTP and Prometheus.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errUnhealthy) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, config.ErrInvalidConfiguration):
		return 2
	default:
		return 1
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults only when empty)")
}
