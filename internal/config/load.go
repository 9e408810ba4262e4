package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "HEALTHMON_"

// Load reads the YAML file at path over the defaults, applies HEALTHMON_*
// environment overrides and validates the result. An empty path yields the
// defaults with overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []FieldError

	floatVar := func(name string, field string, dst *float64) {
		val, ok := lookup(EnvPrefix + name)
		if !ok || val == "" {
			return
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s%s=%q is not a number", EnvPrefix, name, val)})
			return
		}
		*dst = f
	}

	floatVar("INTERVAL_SECONDS", "agent.interval_seconds", &cfg.Agent.IntervalSeconds)
	floatVar("PER_COLLECTOR_TIMEOUT_SECONDS", "agent.per_collector_timeout_seconds", &cfg.Agent.PerCollectorTimeoutSeconds)
	floatVar("SHUTDOWN_GRACE_SECONDS", "agent.shutdown_grace_seconds", &cfg.Agent.ShutdownGraceSeconds)

	if val, ok := lookup(EnvPrefix + "HISTORY_SIZE"); ok && val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			errs = append(errs, FieldError{Field: "agent.history_size", Message: fmt.Sprintf("%sHISTORY_SIZE=%q is not an integer", EnvPrefix, val)})
		} else {
			cfg.Agent.HistorySize = n
		}
	}
	if val, ok := lookup(EnvPrefix + "LISTEN_ADDRESS"); ok && val != "" {
		cfg.API.ListenAddress = val
	}
	if val, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok && val != "" {
		cfg.Logging.Level = val
	}
	if val, ok := lookup(EnvPrefix + "LOG_FOLDER"); ok && val != "" {
		cfg.Logging.Folder = val
	}
	if val, ok := lookup(EnvPrefix + "DISK_PATHS"); ok && val != "" {
		var paths []string
		for _, p := range strings.Split(val, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		cfg.Collectors.Disk.Paths = paths
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
