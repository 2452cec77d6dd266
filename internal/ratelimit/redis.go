package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript keeps one sorted-set member per admitted hit, scored by
// its millisecond timestamp. Returns {allowed, retryAfterMillis}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return {1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local retry = window
if oldest[2] then
  retry = tonumber(oldest[2]) + window - now
end
return {0, retry}
`)

// RedisLimiter is a sliding-window log shared by every instance pointed at
// the same Redis.
type RedisLimiter struct {
	client redis.Scripter
	policy Policy
	prefix string
	now    func() time.Time
}

// NewRedisLimiter builds a shared limiter. Keys are stored as <prefix>:<key>.
func NewRedisLimiter(client redis.Scripter, policy Policy, prefix string, now func() time.Time) *RedisLimiter {
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, policy: policy, prefix: prefix, now: now}
}

// Admit implements Limiter.
func (l *RedisLimiter) Admit(ctx context.Context, key string) (Decision, error) {
	nowMs := l.now().UnixMilli()
	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.prefix + ":" + key},
		nowMs,
		l.policy.Window.Milliseconds(),
		l.policy.MaxHits,
		fmt.Sprintf("%d-%s", nowMs, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit %s: unexpected reply %v", key, res)
	}
	if res[0] == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: time.Duration(res[1]) * time.Millisecond}, nil
}
