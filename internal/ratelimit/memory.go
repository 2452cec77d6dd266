package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 1024

type windowEntry struct {
	count int
	start time.Time
}

// MemoryLimiter is a fixed-window limiter keyed by the first admission in
// each window. Safe for concurrent use; every Admit is an atomic
// check-and-increment.
type MemoryLimiter struct {
	policy Policy
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*windowEntry
	calls   int
}

// MemoryOption customizes a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		l.now = now
	}
}

// NewMemoryLimiter builds an in-process limiter.
func NewMemoryLimiter(policy Policy, opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		policy:  policy,
		now:     time.Now,
		entries: make(map[string]*windowEntry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit implements Limiter.
func (l *MemoryLimiter) Admit(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweepLocked(now)
	}

	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.start) >= l.policy.Window {
		l.entries[key] = &windowEntry{count: 1, start: now}
		return Decision{Allowed: true}, nil
	}
	if entry.count >= l.policy.MaxHits {
		return Decision{Allowed: false, RetryAfter: l.policy.Window - now.Sub(entry.start)}, nil
	}
	entry.count++
	return Decision{Allowed: true}, nil
}

// Len reports how many keys are tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep drops windows that have already expired.
func (l *MemoryLimiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)
}

func (l *MemoryLimiter) sweepLocked(now time.Time) {
	for key, entry := range l.entries {
		if now.Sub(entry.start) >= l.policy.Window {
			delete(l.entries, key)
		}
	}
}
