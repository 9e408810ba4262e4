package config

import "healthmon/internal/domain"

const (
	DefaultServiceName                = "healthmon"
	DefaultServiceVersion             = "1.0.0"
	DefaultIntervalSeconds            = 30
	DefaultPerCollectorTimeoutSeconds = 10
	DefaultShutdownGraceSeconds       = 15
	DefaultHistorySize                = 100
	DefaultListenAddress              = ":8000"
	DefaultReadTimeoutSeconds         = 5
	DefaultWriteTimeoutSeconds        = 10
	DefaultIdleTimeoutSeconds         = 120
	DefaultLogLevel                   = "info"
	DefaultLogFolder                  = "../log"
	DefaultLogFile                    = "agent.log"
	DefaultMaxFlagged                 = 5
	DefaultTopProcesses               = 10
	DefaultArchiveCapacity            = 1000
	DefaultMetricsNamespace           = "healthmon"
)

// DefaultThresholds are starting points only; every rule can be replaced in
// the configuration file.
func DefaultThresholds() map[string]domain.ThresholdRule {
	return map[string]domain.ThresholdRule{
		"cpu_percent":         {WarnAt: 75, CriticalAt: 90},
		"memory_used_percent": {WarnAt: 85, CriticalAt: 95},
		"disk_used_percent":   {WarnAt: 90, CriticalAt: 95},
		"load1_per_core":      {WarnAt: 2, CriticalAt: 4},
	}
}

func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:    DefaultServiceName,
			Version: DefaultServiceVersion,
		},
		Agent: AgentConfig{
			IntervalSeconds:            DefaultIntervalSeconds,
			PerCollectorTimeoutSeconds: DefaultPerCollectorTimeoutSeconds,
			ShutdownGraceSeconds:       DefaultShutdownGraceSeconds,
			HistorySize:                DefaultHistorySize,
		},
		API: APIConfig{
			ListenAddress:       DefaultListenAddress,
			ReadTimeoutSeconds:  DefaultReadTimeoutSeconds,
			WriteTimeoutSeconds: DefaultWriteTimeoutSeconds,
			IdleTimeoutSeconds:  DefaultIdleTimeoutSeconds,
		},
		Logging: LoggingConfig{
			Level:   DefaultLogLevel,
			Folder:  DefaultLogFolder,
			File:    DefaultLogFile,
			Console: true,
		},
		Collectors: CollectorsConfig{
			CPU:     ToggleConfig{Enabled: true},
			Memory:  ToggleConfig{Enabled: true},
			Disk:    DiskConfig{Enabled: true, Paths: []string{"/"}},
			Network: NetworkConfig{Enabled: true},
			Process: ProcessConfig{Enabled: true, MaxFlagged: DefaultMaxFlagged, TopN: DefaultTopProcesses},
			Load:    ToggleConfig{Enabled: true},
		},
		Thresholds: DefaultThresholds(),
		Archive: ArchiveConfig{
			Enabled:  true,
			Capacity: DefaultArchiveCapacity,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultMetricsNamespace,
		},
	}
}
