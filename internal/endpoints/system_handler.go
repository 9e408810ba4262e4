package endpoints

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"healthmon/internal/util"
)

type ServiceInfo struct {
	Service    string    `json:"service"`
	Version    string    `json:"version"`
	InstanceID string    `json:"instance_id"`
	StartedAt  time.Time `json:"started_at"`
}

type SystemInfo struct {
	Platform         string    `json:"platform"`
	PlatformVersion  string    `json:"platform_version,omitempty"`
	KernelVersion    string    `json:"kernel_version,omitempty"`
	Architecture     string    `json:"architecture"`
	Hostname         string    `json:"hostname,omitempty"`
	CPUCount         int       `json:"cpu_count"`
	MemoryTotalBytes uint64    `json:"memory_total_bytes,omitempty"`
	BootTime         time.Time `json:"boot_time,omitempty"`
	UptimeSeconds    uint64    `json:"uptime_seconds,omitempty"`
	GoVersion        string    `json:"go_version"`
}

type System struct {
	Response APIResponse
	logger   *util.AgentLogger
	service  ServiceInfo

	hostInfo    func(ctx context.Context) (*host.InfoStat, error)
	cpuCount    func(ctx context.Context) (int, error)
	memoryTotal func(ctx context.Context) (uint64, error)
}

func (s *System) Init(service ServiceInfo, logger *util.AgentLogger) {
	s.service = service
	s.logger = logger
	s.hostInfo = host.InfoWithContext
	s.cpuCount = func(ctx context.Context) (int, error) {
		return cpu.CountsWithContext(ctx, true)
	}
	s.memoryTotal = func(ctx context.Context) (uint64, error) {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return 0, err
		}
		return vm.Total, nil
	}
}

func (s *System) GetServiceInfoHandler(w http.ResponseWriter, r *http.Request) {
	s.Response.WriteResultResponse(w, s.service)
}

// GetSystemInfoHandler reports what it can; a failing probe only leaves its
// fields empty.
func (s *System) GetSystemInfoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info := SystemInfo{
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUCount:     runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}

	if hi, err := s.hostInfo(ctx); err != nil {
		s.logger.Warn("host info unavailable", zap.Error(err))
	} else {
		info.Hostname = hi.Hostname
		if hi.Platform != "" {
			info.Platform = hi.Platform
		}
		info.PlatformVersion = hi.PlatformVersion
		info.KernelVersion = hi.KernelVersion
		info.UptimeSeconds = hi.Uptime
		if hi.BootTime > 0 {
			info.BootTime = time.Unix(int64(hi.BootTime), 0).UTC()
		}
	}

	if n, err := s.cpuCount(ctx); err != nil {
		s.logger.Warn("cpu count unavailable", zap.Error(err))
	} else if n > 0 {
		info.CPUCount = n
	}

	if total, err := s.memoryTotal(ctx); err != nil {
		s.logger.Warn("memory total unavailable", zap.Error(err))
	} else {
		info.MemoryTotalBytes = total
	}

	s.Response.WriteResultResponse(w, info)
}
