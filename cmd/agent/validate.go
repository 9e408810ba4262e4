package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"healthmon/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration file, apply HEALTHMON_* environment overrides
and report every validation error. Exits non-zero when the configuration is
invalid.

Examples:
  agent validate --config config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func printSummary(w io.Writer, cfg *config.Config) {
	source := cfgFile
	if source == "" {
		source = "(defaults)"
	}
	fmt.Fprintf(w, "✓ Configuration valid: %s\n", source)
	fmt.Fprintf(w, "  interval:              %s\n", cfg.Agent.Interval())
	fmt.Fprintf(w, "  per-collector timeout: %s\n", cfg.Agent.PerCollectorTimeout())
	fmt.Fprintf(w, "  shutdown grace:        %s\n", cfg.Agent.ShutdownGrace())
	fmt.Fprintf(w, "  history size:          %d\n", cfg.Agent.HistorySize)
	fmt.Fprintf(w, "  listen address:        %s\n", cfg.API.ListenAddress)
	fmt.Fprintf(w, "  collectors:            %s\n", strings.Join(enabledCollectors(cfg.Collectors), ", "))

	names := make([]string, 0, len(cfg.Thresholds))
	for name := range cfg.Thresholds {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "  thresholds:\n")
	for _, name := range names {
		rule := cfg.Thresholds[name]
		fmt.Fprintf(w, "    %-22s warn_at=%g critical_at=%g\n", name, rule.WarnAt, rule.CriticalAt)
	}
}

func enabledCollectors(c config.CollectorsConfig) []string {
	var names []string
	if c.CPU.Enabled {
		names = append(names, "cpu")
	}
	if c.Memory.Enabled {
		names = append(names, "memory")
	}
	if c.Disk.Enabled {
		names = append(names, fmt.Sprintf("disk%v", c.Disk.Paths))
	}
	if c.Network.Enabled {
		names = append(names, "network")
	}
	if c.Process.Enabled {
		names = append(names, "process")
	}
	if c.Load.Enabled {
		names = append(names, "load")
	}
	return names
}
