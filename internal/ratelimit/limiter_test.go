package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestDecisionRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 0, Decision{Allowed: true, RetryAfter: time.Minute}.RetryAfterSeconds())
	assert.Equal(t, 1, Decision{RetryAfter: 0}.RetryAfterSeconds())
	assert.Equal(t, 1, Decision{RetryAfter: 200 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 55, Decision{RetryAfter: 54*time.Second + time.Millisecond}.RetryAfterSeconds())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ticket:create:203.0.113.4", Key("ticket:create", "203.0.113.4"))
	assert.Equal(t, "ticket:view:UHD-2026-000001:198.51.100.9", Key("ticket:view", "UHD-2026-000001", "198.51.100.9"))
}

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewMemoryLimiter(DefaultPolicy(), WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := limiter.Admit(ctx, "ticket:create:203.0.113.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "admission %d", i+1)
		clock.Advance(time.Second)
	}

	d, err := limiter.Admit(ctx, "ticket:create:203.0.113.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 55, d.RetryAfterSeconds())

	other, err := limiter.Admit(ctx, "admin:reply:203.0.113.4")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "distinct operations have independent budgets")

	clock.Advance(55 * time.Second)
	d, err = limiter.Admit(ctx, "ticket:create:203.0.113.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "window elapsed")
}

func TestMemoryLimiter_DenialNeverReportsZero(t *testing.T) {
	clock := newFakeClock()
	limiter := NewMemoryLimiter(Policy{Window: time.Second, MaxHits: 1}, WithClock(clock.Now))

	d, _ := limiter.Admit(context.Background(), "k")
	require.True(t, d.Allowed)
	clock.Advance(999 * time.Millisecond)
	d, _ = limiter.Admit(context.Background(), "k")
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, d.RetryAfterSeconds())
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	limiter := NewMemoryLimiter(DefaultPolicy())
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Admit(context.Background(), "upload:192.0.2.1")
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), allowed.Load())
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	clock := newFakeClock()
	limiter := NewMemoryLimiter(DefaultPolicy(), WithClock(clock.Now))
	_, _ = limiter.Admit(context.Background(), "a")
	_, _ = limiter.Admit(context.Background(), "b")
	require.Equal(t, 2, limiter.Len())

	clock.Advance(time.Minute)
	limiter.Sweep()
	assert.Equal(t, 0, limiter.Len())
}

func newRedisLimiter(t *testing.T, clock *fakeClock) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(client, DefaultPolicy(), "helpdesk", clock.Now), mr
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	clock := newFakeClock()
	limiter, mr := newRedisLimiter(t, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := limiter.Admit(ctx, "ticket:create:203.0.113.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "admission %d", i+1)
		clock.Advance(time.Second)
	}
	assert.True(t, mr.Exists("helpdesk:ticket:create:203.0.113.4"))

	clock.Advance(5 * time.Second)
	d, err := limiter.Admit(ctx, "ticket:create:203.0.113.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 50, d.RetryAfterSeconds())

	// the oldest hit slides out first, freeing exactly one slot
	clock.Advance(50 * time.Second)
	d, err = limiter.Admit(ctx, "ticket:create:203.0.113.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Admit(ctx, "ticket:create:203.0.113.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestRedisLimiter_IndependentKeys(t *testing.T) {
	clock := newFakeClock()
	limiter, _ := newRedisLimiter(t, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.Admit(ctx, "admin:status:198.51.100.9")
		require.NoError(t, err)
	}
	d, err := limiter.Admit(ctx, "admin:reply:198.51.100.9")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisLimiter_BackendDown(t *testing.T) {
	clock := newFakeClock()
	limiter, mr := newRedisLimiter(t, clock)
	mr.Close()

	_, err := limiter.Admit(context.Background(), "ticket:create:203.0.113.4")
	assert.Error(t, err)
}
