package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"chat-relay/contract"
	"chat-relay/observability"

	"github.com/shirou/gopsutil/process"
)

const defaultMonitorInterval = 15 * time.Second

// ConnectionMonitor periodically samples the relay process and the registry
// and publishes the figures as gauges.
type ConnectionMonitor struct {
	log      *slog.Logger
	registry contract.IRegistry
	metrics  *observability.Metrics
	interval time.Duration
}

func NewConnectionMonitor(
	log *slog.Logger,
	registry contract.IRegistry,
	metrics *observability.Metrics,
	interval time.Duration,
) *ConnectionMonitor {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	return &ConnectionMonitor{log: log, registry: registry, metrics: metrics, interval: interval}
}

func (w *ConnectionMonitor) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping connection monitor")
			return nil
		case <-ticker.C:
			w.Sample(p)
		}
	}
}

// Sample records one snapshot. Process figures that cannot be read are
// skipped, the connection count is always published.
func (w *ConnectionMonitor) Sample(p *process.Process) {
	connections := w.registry.Len()
	w.metrics.ActiveConnections.Set(float64(connections))

	cpu, err := p.CPUPercent()
	if err != nil {
		w.log.Debug("Error while finding process cpu usage", "err", err)
	} else {
		w.metrics.ProcessCPU.Set(cpu)
	}
	ram, err := p.MemoryPercent()
	if err != nil {
		w.log.Debug("Error while finding process ram usage", "err", err)
	} else {
		w.metrics.ProcessMemory.Set(float64(ram))
	}
	w.log.Debug("Relay snapshot", "connections", connections, "cpu", cpu, "ram", ram)
}
