// Package ratelimit governs per-provider throughput: a one-minute
// request window, a bounded number of concurrent in-flight requests,
// and a minimum delay between successive requests to the same vendor.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bcmmbaga/wealthfolio/internal/market"
)

// Limiter enforces one provider's RateLimit policy. Admission is a
// single atomic check-and-increment so concurrent callers can never
// over-admit. A limiter is shared by every request routed to its
// provider.
type Limiter struct {
	provider string
	rpm      int
	minDelay time.Duration
	sem      *semaphore.Weighted // nil when concurrency is unbounded

	mu          sync.Mutex
	windowStart time.Time
	inWindow    int
	next        time.Time // earliest instant the next request may start
}

// New builds a limiter for providerID from its declared policy.
// Non-positive fields disable the corresponding constraint.
func New(providerID string, policy market.RateLimit) *Limiter {
	l := &Limiter{
		provider: providerID,
		rpm:      policy.RequestsPerMinute,
		minDelay: policy.MinDelay,
	}
	if policy.MaxConcurrency > 0 {
		l.sem = semaphore.NewWeighted(int64(policy.MaxConcurrency))
	}
	return l
}

// TryAdmit admits the caller without blocking on quota: if the
// per-minute ceiling or all concurrency slots are exhausted it returns
// RateLimitedError immediately so the router can fall back to the next
// candidate. Only the residual min-delay is waited out, cooperatively
// and cancellable through ctx. On success the caller owns one
// concurrency slot and must Release it on every exit path.
func (l *Limiter) TryAdmit(ctx context.Context) error {
	if l.sem != nil && !l.sem.TryAcquire(1) {
		return &market.RateLimitedError{Provider: l.provider}
	}
	wait, err := l.reserve(time.Now())
	if err != nil {
		l.releaseSlot()
		return err
	}
	if wait > 0 {
		if err := sleep(ctx, wait); err != nil {
			l.releaseSlot()
			return err
		}
	}
	return nil
}

// Admit blocks cooperatively until all three constraints are satisfied
// or ctx is done.
func (l *Limiter) Admit(ctx context.Context) error {
	for {
		if l.sem != nil {
			if err := l.sem.Acquire(ctx, 1); err != nil {
				return err
			}
		}
		now := time.Now()
		wait, err := l.reserve(now)
		if err == nil {
			if wait > 0 {
				if serr := sleep(ctx, wait); serr != nil {
					l.releaseSlot()
					return serr
				}
			}
			return nil
		}

		// Window exhausted: give the slot back and wait for rollover.
		l.releaseSlot()
		l.mu.Lock()
		resume := l.windowStart.Add(time.Minute)
		l.mu.Unlock()
		d := time.Until(resume)
		if d <= 0 {
			d = time.Millisecond
		}
		if serr := sleep(ctx, d); serr != nil {
			return serr
		}
	}
}

// Release returns the concurrency slot taken by a successful
// admission. It must run on every exit path of the in-flight request,
// including timeout and cancellation, or the provider's quota starves.
func (l *Limiter) Release() {
	l.releaseSlot()
}

// reserve is the indivisible admission step: roll the window, check
// the ceiling, claim a window slot and reserve the min-delay gap.
// It returns how long the caller must wait before issuing the request.
func (l *Limiter) reserve(now time.Time) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= time.Minute {
		l.windowStart = now
		l.inWindow = 0
	}
	if l.rpm > 0 && l.inWindow >= l.rpm {
		return 0, &market.RateLimitedError{Provider: l.provider}
	}
	l.inWindow++

	start := now
	if l.minDelay > 0 {
		if l.next.After(now) {
			start = l.next
		}
		l.next = start.Add(l.minDelay)
	}
	return start.Sub(now), nil
}

func (l *Limiter) releaseSlot() {
	if l.sem != nil {
		l.sem.Release(1)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
