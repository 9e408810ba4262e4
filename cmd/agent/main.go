// Agent samples host health on a fixed cadence and serves the latest
// aggregate over HTTP for orchestrator probes and dashboards.
//
// Usage:
//
//	# Run the scheduler and HTTP server
//	agent run --config /etc/healthmon/config.yaml
//
//	# Check a configuration file without starting anything
//	agent validate --config config.yaml
//
//	# Collect once and exit non-zero when unhealthy
//	agent probe
package main

func main() {
	Execute()
}
