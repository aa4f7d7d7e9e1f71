package core

import (
	"context"
	"time"
)

const (
	// DefaultSweepInterval is how often RunSweeper scans for stale leases.
	DefaultSweepInterval = 10 * time.Minute
	// DefaultClaimInterval is how often RunClaimer looks for queued jobs.
	DefaultClaimInterval = 5 * time.Second
)

// RunSweeper calls Sweep every interval until ctx is done.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	o.every(ctx, interval, "lease sweeper", func(ctx context.Context) error {
		_, err := o.Sweep(ctx)
		return err
	})
}

// RunClaimer calls ClaimQueued every interval until ctx is done.
func (o *Orchestrator) RunClaimer(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultClaimInterval
	}
	o.every(ctx, interval, "job claimer", func(ctx context.Context) error {
		_, err := o.ClaimQueued(ctx)
		return err
	})
}

func (o *Orchestrator) every(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.logger.Info(name+" started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info(name + " stopped")
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				o.logger.Error(name+" pass failed", "err", err)
			}
		}
	}
}
