// Package config loads the agent configuration from YAML with environment
// overrides. Configuration is read once at startup and is read-only after.
package config

import (
	"sort"
	"time"

	"healthmon/internal/domain"
)

type Config struct {
	Service    ServiceConfig                   `yaml:"service"`
	Agent      AgentConfig                     `yaml:"agent"`
	API        APIConfig                       `yaml:"api"`
	Logging    LoggingConfig                   `yaml:"logging"`
	Collectors CollectorsConfig                `yaml:"collectors"`
	Thresholds map[string]domain.ThresholdRule `yaml:"thresholds"`
	Archive    ArchiveConfig                   `yaml:"archive"`
	Metrics    MetricsConfig                   `yaml:"metrics"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type AgentConfig struct {
	IntervalSeconds            float64 `yaml:"interval_seconds"`
	PerCollectorTimeoutSeconds float64 `yaml:"per_collector_timeout_seconds"`
	ShutdownGraceSeconds       float64 `yaml:"shutdown_grace_seconds"`
	HistorySize                int     `yaml:"history_size"`
}

func (a AgentConfig) Interval() time.Duration {
	return seconds(a.IntervalSeconds)
}

func (a AgentConfig) PerCollectorTimeout() time.Duration {
	return seconds(a.PerCollectorTimeoutSeconds)
}

func (a AgentConfig) ShutdownGrace() time.Duration {
	return seconds(a.ShutdownGraceSeconds)
}

type APIConfig struct {
	ListenAddress       string  `yaml:"listen_address"`
	ReadTimeoutSeconds  float64 `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds float64 `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds  float64 `yaml:"idle_timeout_seconds"`
}

func (a APIConfig) ReadTimeout() time.Duration  { return seconds(a.ReadTimeoutSeconds) }
func (a APIConfig) WriteTimeout() time.Duration { return seconds(a.WriteTimeoutSeconds) }
func (a APIConfig) IdleTimeout() time.Duration  { return seconds(a.IdleTimeoutSeconds) }

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Folder  string `yaml:"folder"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

type CollectorsConfig struct {
	CPU     ToggleConfig  `yaml:"cpu"`
	Memory  ToggleConfig  `yaml:"memory"`
	Disk    DiskConfig    `yaml:"disk"`
	Network NetworkConfig `yaml:"network"`
	Process ProcessConfig `yaml:"process"`
	Load    ToggleConfig  `yaml:"load"`
}

func (c CollectorsConfig) EnabledCount() int {
	n := 0
	for _, enabled := range []bool{c.CPU.Enabled, c.Memory.Enabled, c.Disk.Enabled, c.Network.Enabled, c.Process.Enabled, c.Load.Enabled} {
		if enabled {
			n++
		}
	}
	return n
}

type ToggleConfig struct {
	Enabled bool `yaml:"enabled"`
}

type DiskConfig struct {
	Enabled bool     `yaml:"enabled"`
	Paths   []string `yaml:"paths"`
}

// NetworkConfig sums counters over Interfaces, or over every interface when
// the list is empty.
type NetworkConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Interfaces []string `yaml:"interfaces"`
}

type ProcessConfig struct {
	Enabled            bool    `yaml:"enabled"`
	CPUPercentLimit    float64 `yaml:"cpu_percent_limit"`
	MemoryPercentLimit float64 `yaml:"memory_percent_limit"`
	MaxFlagged         int     `yaml:"max_flagged"`
	TopN               int     `yaml:"top_n"`
}

type ArchiveConfig struct {
	Enabled  bool `yaml:"enabled"`
	Capacity int  `yaml:"capacity"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// ThresholdSet returns the configured rules keyed by metric name, with each
// rule carrying its own name.
func (c *Config) ThresholdSet() domain.Thresholds {
	names := make([]string, 0, len(c.Thresholds))
	for name := range c.Thresholds {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]domain.ThresholdRule, 0, len(names))
	for _, name := range names {
		rule := c.Thresholds[name]
		rule.MetricName = name
		rules = append(rules, rule)
	}
	return domain.NewThresholds(rules...)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
