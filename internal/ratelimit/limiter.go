// Package ratelimit implements per-key admission control for mutating
// endpoints. Two interchangeable backends exist: an in-process fixed window
// (single instance) and a Redis sliding-window log (shared across instances).
//
// Callers may rely only on the admit/deny contract and an approximate
// retry-after. The backends disagree at window boundaries: the fixed window
// resets all at once, the sliding log frees one slot per expired hit.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Policy bounds how many admissions a key receives per window.
type Policy struct {
	Window  time.Duration
	MaxHits int
}

// DefaultPolicy admits 5 requests per key per minute.
func DefaultPolicy() Policy {
	return Policy{Window: time.Minute, MaxHits: 5}
}

// Decision is the outcome of one admission attempt.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds. Denials always
// report at least one second.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter admits or rejects a request identified by key. Admit never blocks
// waiting for capacity; an error means the decision could not be made.
type Limiter interface {
	Admit(ctx context.Context, key string) (Decision, error)
}

// Key composes a limiter key as <operation>:<parts...>.
func Key(operation string, parts ...string) string {
	key := operation
	for _, p := range parts {
		key += ":" + p
	}
	return key
}
