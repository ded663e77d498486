// Package pace enforces a fixed minimum interval between successive calls to
// a rate-limited external service. The clock and sleep strategy are
// injectable so pacing is testable without wall-clock waits.
package pace

import (
	"context"
	"sync"
	"time"
)

// Pacer blocks until the configured interval has passed since the previous
// call. The zero interval disables pacing. A single Pacer may be shared by
// the interval loop and the on-demand trigger, so call bookkeeping is
// mutex-guarded.
type Pacer struct {
	interval time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)

	mu   sync.Mutex
	last time.Time
}

// Option customises a Pacer.
type Option func(*Pacer)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pacer) { p.now = now }
}

// WithSleep replaces the sleep strategy, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(p *Pacer) { p.sleep = sleep }
}

// New creates a Pacer with the given inter-call interval.
func New(interval time.Duration, opts ...Option) *Pacer {
	p := &Pacer{
		interval: interval,
		now:      time.Now,
		sleep:    contextSleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait blocks until the interval since the previous Wait has elapsed, then
// records the call. The first call never blocks. Cancelling ctx ends the
// wait early.
func (p *Pacer) Wait(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interval > 0 && !p.last.IsZero() {
		if remaining := p.interval - p.now().Sub(p.last); remaining > 0 {
			p.sleep(ctx, remaining)
		}
	}
	p.last = p.now()
}

func contextSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
