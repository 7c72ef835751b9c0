package sweeper

import (
	"context"
	"time"

	"authcore.dev/internal/authz"
	"authcore.dev/internal/obs"
)

const defaultInterval = time.Hour

// Sweeper periodically removes expired sessions and refresh tokens. It is
// owned by the process lifecycle: started on boot, stopped by cancelling
// the context passed to Run. A failed sweep is logged and retried on the
// next tick, never crashing the process.
type Sweeper struct {
	store    authz.Store
	interval time.Duration
	now      func() time.Time
}

// New builds a sweeper. A non-positive interval falls back to hourly.
func New(store authz.Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sweeper{store: store, interval: interval, now: time.Now}
}

// Run sweeps once immediately, then on every tick until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Sweep runs a single cleanup pass. Exposed so callers can trigger one
// outside the schedule.
func (s *Sweeper) Sweep(ctx context.Context) (authz.CleanupResult, error) {
	return s.store.CleanupExpired(ctx, s.now().UTC())
}

func (s *Sweeper) sweep(ctx context.Context) {
	res, err := s.Sweep(ctx)
	if err != nil {
		obs.Log(map[string]any{
			"level": "error",
			"msg":   "expiry sweep failed",
			"error": err.Error(),
		})
		return
	}
	obs.SweepDeletionsTotal.WithLabelValues("sessions").Add(float64(res.SessionsDeleted))
	obs.SweepDeletionsTotal.WithLabelValues("refresh_tokens").Add(float64(res.TokensDeleted))
	if res.SessionsDeleted > 0 || res.TokensDeleted > 0 {
		obs.Log(map[string]any{
			"level":            "info",
			"msg":              "expiry sweep completed",
			"sessions_deleted": res.SessionsDeleted,
			"tokens_deleted":   res.TokensDeleted,
		})
	}
}
