package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/net"

	"healthmon/internal/domain"
)

// NetworkCollector reports cumulative I/O counters summed over all interfaces,
// or over the configured ones only. A configured interface that is missing
// fails the collector.
type NetworkCollector struct {
	base
	interfaces []string
	counters   func(ctx context.Context, pernic bool) ([]net.IOCountersStat, error)
}

func NewNetworkCollector(interfaces []string, thresholds domain.Thresholds) *NetworkCollector {
	owned := make([]string, len(interfaces))
	copy(owned, interfaces)
	return &NetworkCollector{
		base:       newBase("network", thresholds),
		interfaces: owned,
		counters:   net.IOCountersWithContext,
	}
}

func (c *NetworkCollector) Collect(ctx context.Context) domain.CollectorResult {
	return c.run(ctx, func(ctx context.Context, now time.Time) ([]domain.MetricReading, string, error) {
		pernic := len(c.interfaces) > 0
		stats, err := c.counters(ctx, pernic)
		if err != nil {
			return nil, "", err
		}

		total, err := c.sum(stats, pernic)
		if err != nil {
			return nil, "", err
		}

		return []domain.MetricReading{
			reading("network_bytes_sent", float64(total.BytesSent), UnitBytes, now),
			reading("network_bytes_recv", float64(total.BytesRecv), UnitBytes, now),
			reading("network_packets_sent", float64(total.PacketsSent), UnitCount, now),
			reading("network_packets_recv", float64(total.PacketsRecv), UnitCount, now),
			reading("network_errin", float64(total.Errin), UnitCount, now),
			reading("network_errout", float64(total.Errout), UnitCount, now),
			reading("network_dropin", float64(total.Dropin), UnitCount, now),
			reading("network_dropout", float64(total.Dropout), UnitCount, now),
		}, "", nil
	})
}

func (c *NetworkCollector) sum(stats []net.IOCountersStat, pernic bool) (net.IOCountersStat, error) {
	var total net.IOCountersStat
	if !pernic {
		if len(stats) == 0 {
			return total, fmt.Errorf("%w: no network counters", ErrSourceUnavailable)
		}
		return stats[0], nil
	}

	byName := make(map[string]net.IOCountersStat, len(stats))
	for _, s := range stats {
		byName[s.Name] = s
	}
	var missing []string
	for _, name := range c.interfaces {
		s, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		total.BytesSent += s.BytesSent
		total.BytesRecv += s.BytesRecv
		total.PacketsSent += s.PacketsSent
		total.PacketsRecv += s.PacketsRecv
		total.Errin += s.Errin
		total.Errout += s.Errout
		total.Dropin += s.Dropin
		total.Dropout += s.Dropout
	}
	if len(missing) > 0 {
		return total, fmt.Errorf("%w: interface %s not found", ErrSourceUnavailable, strings.Join(missing, ", "))
	}
	return total, nil
}
