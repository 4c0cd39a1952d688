package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reaper periodically deactivates seats that saw no activity for
// InactiveAfter.
type Reaper struct {
	Manager       *Manager
	Interval      time.Duration
	InactiveAfter time.Duration
	Log           zerolog.Logger
}

// Run reaps once immediately and then on every tick until ctx is done.
// Failed passes are logged and retried on the next tick.
func (r *Reaper) Run(ctx context.Context) error {
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		r.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// RunOnce performs a single reap pass with the cutoff derived from now.
func (r *Reaper) RunOnce(ctx context.Context) ReapResult {
	idleSince := r.Manager.now().Add(-r.InactiveAfter)
	res, err := r.Manager.ReapStale(ctx, idleSince)
	if err != nil {
		r.Log.Error().Err(err).Int("reaped", res.Reaped).Msg("reap pass failed")
	}
	return res
}
