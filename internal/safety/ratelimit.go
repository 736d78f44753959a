package safety

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateGate spaces dispatches at least interval apart. Reservations are taken
// in arrival order. The dispatch timestamp is only recorded once a wait
// completes, and a caller that gives up hands its reservation back.
type RateGate struct {
	interval time.Duration
	limiter  *rate.Limiter

	mu      sync.Mutex
	last    time.Time
	observe func(time.Duration)
	now     func() time.Time
}

// NewRateGate returns a gate with the given minimum spacing. An interval of
// zero or less disables throttling.
func NewRateGate(interval time.Duration) *RateGate {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateGate{
		interval: interval,
		limiter:  rate.NewLimiter(limit, 1),
		now:      time.Now,
	}
}

func (g *RateGate) Interval() time.Duration {
	if g == nil {
		return 0
	}
	return g.interval
}

// Observe registers a callback that receives the time each successful
// Acquire spent waiting.
func (g *RateGate) Observe(fn func(time.Duration)) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.observe = fn
	g.mu.Unlock()
}

// Last is the most recent recorded dispatch, zero before the first.
func (g *RateGate) Last() time.Time {
	if g == nil {
		return time.Time{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Acquire blocks until the caller may dispatch or ctx is done.
func (g *RateGate) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g == nil {
		return nil
	}
	start := g.now()
	if g.interval > 0 {
		r := g.limiter.Reserve()
		if wait := r.Delay(); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				r.Cancel()
				return ctx.Err()
			}
		}
	}

	g.mu.Lock()
	now := g.now()
	g.last = now
	observe := g.observe
	g.mu.Unlock()
	if observe != nil && g.interval > 0 {
		observe(now.Sub(start))
	}
	return nil
}
