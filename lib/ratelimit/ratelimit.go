package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/mazen160/go-random"
)

// Limiter spaces outbound requests by a randomized delay between Min and
// Max, plus up to Jitter of extra slack. The zero value performs no waiting.
//
// Wait and Penalise are safe for concurrent use: the next-allowed instant is
// guarded by a mutex so overlapping callers do not stack their delays on top
// of a stale deadline.
type Limiter struct {
	min    time.Duration
	max    time.Duration
	jitter time.Duration

	mu          sync.Mutex
	nextAllowed time.Time
}

type Options struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Jitter time.Duration `json:"jitter"`
}

func New(opts Options) *Limiter {
	min := opts.Min
	if min < 0 {
		min = 0
	}
	max := opts.Max
	if max < min {
		max = min
	}
	jitter := opts.Jitter
	if jitter < 0 {
		jitter = 0
	}
	return &Limiter{min: min, max: max, jitter: jitter}
}

func randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	n, err := random.IntRange(0, int(max-min)+1)
	if err != nil {
		return min
	}
	return min + time.Duration(n)
}

// Wait blocks until the previously programmed deadline has passed, then
// programs the next deadline as now + random(min, max) + random(0, jitter).
// It returns early with ctx.Err() if the context is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	sleep := l.nextAllowed.Sub(now)

	delay := randomDuration(l.min, l.max)
	delay += randomDuration(0, l.jitter)

	base := now
	if sleep > 0 {
		base = l.nextAllowed
	}
	l.nextAllowed = base.Add(delay)
	l.mu.Unlock()

	if sleep <= 0 {
		return nil
	}
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Penalise pushes the next-allowed instant out by at least extra. It is used
// after a 429 or transport failure so every call site sharing this limiter
// backs off, not just the one that got throttled.
func (l *Limiter) Penalise(extra time.Duration) {
	if l == nil || extra <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if l.nextAllowed.Before(now) {
		l.nextAllowed = now
	}
	l.nextAllowed = l.nextAllowed.Add(extra)
}

// NextAllowed reports the current deadline. Used by tests and the run
// summary, not by the hot path.
func (l *Limiter) NextAllowed() time.Time {
	if l == nil {
		return time.Time{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextAllowed
}
