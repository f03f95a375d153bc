// Package observability samples the health of the running process.
package observability

import (
	"bourracho/runtime"
	"context"
	"log/slog"
	"os"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

type ProcessStats struct {
	PID        int32   `json:"pid"`
	Status     string  `json:"status"`
	CPUPercent float64 `json:"cpu_percent"`
	RAMPercent float32 `json:"ram_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// Stats is the payload of the monitoring endpoint.
type Stats struct {
	Process         ProcessStats          `json:"process"`
	AllocMemMb      uint64                `json:"alloc_mem_mb"`
	NumGC           uint32                `json:"num_gc"`
	Goroutines      int                   `json:"goroutines"`
	Registry        runtime.RegistryStats `json:"registry"`
	Queues          []runtime.QueueStat   `json:"queues"`
	DroppedDispatch uint64                `json:"dropped_dispatch"`
	Healthy         bool                  `json:"healthy"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

type registrySource interface {
	Stats() runtime.RegistryStats
}

type queueSource interface {
	QueueStats() []runtime.QueueStat
	Dropped() uint64
}

// Monitor periodically samples process, registry and dispatch queue metrics.
// Reading len/cap of the queues never blocks the dispatcher.
type Monitor struct {
	log                *slog.Logger
	registry           registrySource
	queues             queueSource
	interval           time.Duration
	lowCapacityPercent int

	mu     sync.RWMutex
	latest Stats
	proc   *process.Process
}

// NewMonitor builds a monitor flagging the process unhealthy when a dispatch
// queue is filled above lowCapacityPercent.
func NewMonitor(log *slog.Logger, registry registrySource, queues queueSource,
	interval time.Duration, lowCapacityPercent int) *Monitor {
	m := &Monitor{
		log:                log,
		registry:           registry,
		queues:             queues,
		interval:           interval,
		lowCapacityPercent: lowCapacityPercent,
		latest:             Stats{Healthy: true},
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process metrics unavailable", "error", err)
	}
	m.proc = proc
	return m
}

func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.Sample()
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("Context done, stopping monitor")
			return nil
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Sample refreshes the latest stats.
func (m *Monitor) Sample() Stats {
	var mem goruntime.MemStats
	goruntime.ReadMemStats(&mem)

	stats := Stats{
		Process:         m.processStats(),
		AllocMemMb:      mem.Alloc / 1024 / 1024,
		NumGC:           mem.NumGC,
		Goroutines:      goruntime.NumGoroutine(),
		Registry:        m.registry.Stats(),
		Queues:          m.queues.QueueStats(),
		DroppedDispatch: m.queues.Dropped(),
		Healthy:         true,
		UpdatedAt:       time.Now().UTC(),
	}
	for _, q := range stats.Queues {
		if q.Capacity > 0 && q.Length*100 >= q.Capacity*m.lowCapacityPercent {
			stats.Healthy = false
			m.log.Warn("Dispatch queue nearly full", "name", q.Name, "length", q.Length, "capacity", q.Capacity)
		}
	}

	m.mu.Lock()
	m.latest = stats
	m.mu.Unlock()

	m.log.Debug("Stats updated",
		"connections", stats.Registry.Connections,
		"dropped_events", stats.Registry.DroppedEvents,
		"mem_mb", stats.AllocMemMb,
	)
	return stats
}

func (m *Monitor) Latest() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

func (m *Monitor) Healthy() bool {
	return m.Latest().Healthy
}

// A metric that cannot be read is left at zero.
func (m *Monitor) processStats() ProcessStats {
	if m.proc == nil {
		return ProcessStats{}
	}
	stats := ProcessStats{PID: m.proc.Pid}
	if status, err := m.proc.Status(); err == nil {
		stats.Status = status
	}
	if cpu, err := m.proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if ram, err := m.proc.MemoryPercent(); err == nil {
		stats.RAMPercent = ram
	}
	if info, err := m.proc.MemoryInfo(); err == nil {
		stats.RSSBytes = info.RSS
	}
	return stats
}
