package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/bullscale/bullscale/pkg/config"
	"github.com/bullscale/bullscale/pkg/health"
	"github.com/bullscale/bullscale/pkg/queue"
)

// Source provides queue snapshots and detailed stats. *queue.Client
// implements it.
type Source interface {
	Counts(ctx context.Context, prefix, name string) (queue.Snapshot, error)
	DetailedStats(ctx context.Context, prefix, name string) (queue.Stats, error)
}

const missEscalation = 5

// Monitor observes the queue and logs snapshots plus derived statistics.
// It issues no scaling commands and shares nothing with the controller:
// the two are independent consumers of the same external source of truth.
type Monitor struct {
	cfg    config.MonitorConfig
	source Source
	rec    *health.Recorder
	logger *slog.Logger

	prev    queue.Snapshot
	hasPrev bool
	cycles  int
	misses  int
}

func New(cfg config.MonitorConfig, source Source, rec *health.Recorder, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg,
		source: source,
		rec:    rec,
		logger: logger.With("component", "monitor", "queue", cfg.QueueNamePrefix+":"+cfg.QueueName),
	}
}

// Run polls on a fixed-delay loop until ctx is canceled. Queue
// unavailability never terminates the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("queue monitor started", "poll_interval", m.cfg.PollInterval.String())

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("queue monitor stopping")
			return nil
		case <-timer.C:
			m.cycle(ctx)
			timer.Reset(m.cfg.PollInterval)
		}
	}
}

func (m *Monitor) cycle(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, m.cfg.OpTimeout())
	snap, err := m.source.Counts(opCtx, m.cfg.QueueNamePrefix, m.cfg.QueueName)
	cancel()
	if err != nil {
		m.misses++
		if m.misses >= missEscalation {
			m.logger.Error("queue unreachable", "consecutive_misses", m.misses, "error", err)
		} else {
			m.logger.Warn("queue unreachable", "consecutive_misses", m.misses, "error", err)
		}
		return
	}
	m.misses = 0
	if m.rec != nil {
		m.rec.RecordPoll()
	}

	attrs := []any{
		"waiting", snap.Waiting,
		"active", snap.Active,
		"completed", snap.Completed,
		"failed", snap.Failed,
	}
	if growth, throughput, ok := rates(m.prev, snap, m.hasPrev); ok {
		attrs = append(attrs, "waiting_per_sec", growth, "completed_per_sec", throughput)
	}
	m.logger.Info("queue metrics", attrs...)

	m.prev = snap
	m.hasPrev = true

	m.cycles++
	if m.cycles%m.cfg.DetailedEvery == 0 {
		m.detailedReport(ctx)
	}
}

// rates derives the change per second between two consecutive snapshots:
// growth of the waiting list and completion throughput.
func rates(prev, cur queue.Snapshot, hasPrev bool) (growth, throughput float64, ok bool) {
	if !hasPrev {
		return 0, 0, false
	}
	dt := cur.ObservedAt.Sub(prev.ObservedAt).Seconds()
	if dt <= 0 {
		return 0, 0, false
	}
	growth = float64(cur.Waiting-prev.Waiting) / dt
	throughput = float64(cur.Completed-prev.Completed) / dt
	return growth, throughput, true
}

func (m *Monitor) detailedReport(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, m.cfg.OpTimeout())
	stats, err := m.source.DetailedStats(opCtx, m.cfg.QueueNamePrefix, m.cfg.QueueName)
	cancel()
	if err != nil {
		m.logger.Warn("could not collect detailed stats", "error", err)
		return
	}

	attrs := make([]any, 0, 2*len(stats)+4)
	for state, count := range stats {
		attrs = append(attrs, state, count)
	}

	if percpu, err := cpu.Percent(0, false); err == nil && len(percpu) > 0 {
		attrs = append(attrs, "host_cpu_percent", percpu[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		attrs = append(attrs, "host_mem_used_percent", vm.UsedPercent)
	}

	m.logger.Info("detailed queue stats", attrs...)
}
