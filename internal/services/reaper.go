package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper tears down runs nobody has touched for a while.
type Reaper struct {
	log      *zap.Logger
	registry *Registry
	interval time.Duration
	ttl      func() time.Duration
}

// NewReaper checks every interval. ttl is read on each check so it can follow config reloads.
func NewReaper(log *zap.Logger, registry *Registry, interval time.Duration, ttl func() time.Duration) *Reaper {
	return &Reaper{
		log:      log,
		registry: registry,
		interval: interval,
		ttl:      ttl,
	}
}

// Start runs the reaper in a goroutine until ctx is done.
func (r *Reaper) Start(ctx context.Context) {
	r.log.Info("Starting run reaper...", zap.Duration("interval", r.interval))
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.reap(now)
			}
		}
	}()
}

func (r *Reaper) reap(now time.Time) int {
	ttl := r.ttl()
	removed := r.registry.Sweep(now.Add(-ttl))
	if removed > 0 {
		r.log.Info("Reaped idle assessment runs", zap.Int("removed", removed), zap.Duration("ttl", ttl))
	} else {
		r.log.Debug("Running idle run check", zap.Int("active", r.registry.Len()))
	}
	return removed
}
