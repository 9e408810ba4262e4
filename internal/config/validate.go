package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"healthmon/internal/util"
)

// ErrInvalidConfiguration is matched by every ValidationError. It is the only
// error class that stops the agent.
var ErrInvalidConfiguration = errors.New("invalid configuration")

type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

func (e ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateAgent(&cfg.Agent)...)
	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateCollectors(&cfg.Collectors)...)
	errs = append(errs, validateThresholds(cfg)...)

	if cfg.Archive.Enabled && cfg.Archive.Capacity <= 0 {
		errs = append(errs, FieldError{Field: "archive.capacity", Message: "must be positive when the archive is enabled"})
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Namespace == "" {
		errs = append(errs, FieldError{Field: "metrics.namespace", Message: "must not be empty"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateAgent(a *AgentConfig) []FieldError {
	var errs []FieldError
	if a.IntervalSeconds <= 0 {
		errs = append(errs, FieldError{Field: "agent.interval_seconds", Message: "must be positive"})
	}
	if a.PerCollectorTimeoutSeconds <= 0 {
		errs = append(errs, FieldError{Field: "agent.per_collector_timeout_seconds", Message: "must be positive"})
	} else if a.PerCollectorTimeoutSeconds >= a.IntervalSeconds {
		errs = append(errs, FieldError{
			Field:   "agent.per_collector_timeout_seconds",
			Message: fmt.Sprintf("%.3g must be less than interval_seconds %.3g", a.PerCollectorTimeoutSeconds, a.IntervalSeconds),
		})
	}
	if a.ShutdownGraceSeconds < 0 {
		errs = append(errs, FieldError{Field: "agent.shutdown_grace_seconds", Message: "must not be negative"})
	}
	if a.HistorySize < 0 {
		errs = append(errs, FieldError{Field: "agent.history_size", Message: "must not be negative"})
	}
	return errs
}

func validateAPI(a *APIConfig) []FieldError {
	var errs []FieldError
	if a.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "api.listen_address", Message: "must not be empty"})
	}
	if a.ReadTimeoutSeconds < 0 || a.WriteTimeoutSeconds < 0 || a.IdleTimeoutSeconds < 0 {
		errs = append(errs, FieldError{Field: "api", Message: "timeouts must not be negative"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) []FieldError {
	if _, err := util.ParseLogLevel(l.Level); err != nil {
		return []FieldError{{Field: "logging.level", Message: err.Error()}}
	}
	return nil
}

func validateCollectors(c *CollectorsConfig) []FieldError {
	var errs []FieldError
	if c.EnabledCount() == 0 {
		errs = append(errs, FieldError{Field: "collectors", Message: "at least one collector must be enabled"})
	}
	if c.Disk.Enabled && len(c.Disk.Paths) == 0 {
		errs = append(errs, FieldError{Field: "collectors.disk.paths", Message: "at least one mount path is required"})
	}
	for i, p := range c.Disk.Paths {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("collectors.disk.paths[%d]", i), Message: "must not be empty"})
		}
	}
	if c.Process.CPUPercentLimit < 0 || c.Process.MemoryPercentLimit < 0 {
		errs = append(errs, FieldError{Field: "collectors.process", Message: "resource limits must not be negative"})
	}
	if c.Process.MaxFlagged < 0 {
		errs = append(errs, FieldError{Field: "collectors.process.max_flagged", Message: "must not be negative"})
	}
	if c.Process.TopN < 0 {
		errs = append(errs, FieldError{Field: "collectors.process.top_n", Message: "must not be negative"})
	}
	for i, name := range c.Network.Interfaces {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("collectors.network.interfaces[%d]", i), Message: "must not be empty"})
		}
	}
	return errs
}

func validateThresholds(cfg *Config) []FieldError {
	names := make([]string, 0, len(cfg.Thresholds))
	for name := range cfg.Thresholds {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []FieldError
	for _, name := range names {
		rule := cfg.Thresholds[name]
		rule.MetricName = name
		if err := rule.Validate(); err != nil {
			errs = append(errs, FieldError{Field: "thresholds." + name, Message: err.Error()})
		}
	}
	return errs
}
