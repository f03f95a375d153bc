package workers

import (
	"bourracho/contract"
	"context"
	"log/slog"
	"time"
)

var _ contract.Worker = (*IdleReaper)(nil)

type idleDetacher interface {
	DetachIdle(before time.Time) int
}

// IdleReaper periodically force-detaches connections silent for longer than idleTimeout.
type IdleReaper struct {
	log         *slog.Logger
	registry    idleDetacher
	interval    time.Duration
	idleTimeout time.Duration
}

func NewIdleReaper(log *slog.Logger, registry idleDetacher, interval, idleTimeout time.Duration) *IdleReaper {
	return &IdleReaper{log: log, registry: registry, interval: interval, idleTimeout: idleTimeout}
}

func (w *IdleReaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping idle reaper")
			return nil
		case now := <-ticker.C:
			if n := w.registry.DetachIdle(now.Add(-w.idleTimeout)); n > 0 {
				w.log.Info("Idle connections reaped", "count", n)
			}
		}
	}
}
