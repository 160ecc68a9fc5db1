package workers

import (
	"context"
	"log/slog"
	"meet-relay/contract"
	"meet-relay/runtime"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*PresenceReporter)(nil)

// StatsSource is anything able to describe its live connections.
type StatsSource interface {
	Stats() runtime.Stats
}

// PresenceReporter periodically logs rooms and connections per feature
// together with the memory and cpu of the relay process.
type PresenceReporter struct {
	log      *slog.Logger
	sources  []StatsSource
	interval time.Duration
	pid      int32
}

func NewPresenceReporter(log *slog.Logger, interval time.Duration, sources ...StatsSource) *PresenceReporter {
	return &PresenceReporter{log: log, sources: sources, interval: interval, pid: int32(os.Getpid())}
}

func (w *PresenceReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping presence reporter")
			return nil
		case <-ticker.C:
			w.Report()
		}
	}
}

// Report logs one snapshot.
func (w *PresenceReporter) Report() {
	attrs := make([]any, 0, 4*len(w.sources)+4)
	for _, source := range w.sources {
		stats := source.Stats()
		attrs = append(attrs,
			string(stats.Feature)+"_rooms", stats.Rooms,
			string(stats.Feature)+"_connections", stats.Connections,
		)
	}

	p, err := process.NewProcess(w.pid)
	if err != nil {
		w.log.Debug("Error while retrieving process", "pid", w.pid, "error", err)
		w.log.Info("Presence", attrs...)
		return
	}
	if cpu, err := p.CPUPercent(); err == nil {
		attrs = append(attrs, "cpu_percent", cpu)
	}
	if mem, err := p.MemoryInfo(); err == nil {
		attrs = append(attrs, "rss_mb", mem.RSS/1024/1024)
	}
	w.log.Info("Presence", attrs...)
}
