package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rl:otp:"

// allowScript prunes, counts and records in one step so two callers can never
// both take the last slot.
//
// KEYS[1] window zset; ARGV: now_ms, window_ms, max, ticket.
// Returns {allowed, retry_after_ms}.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local retry = window
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  return {0, retry}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

// Redis keeps one sorted set per phone, scored by issue time in milliseconds.
// The key's own TTL cleans up idle phones.
type Redis struct {
	client *redis.Client
	max    int
	window time.Duration
	now    func() time.Time
}

// NewRedis builds a Redis-backed limiter. A nil clock uses time.Now.
func NewRedis(client *redis.Client, max int, window time.Duration, now func() time.Time) *Redis {
	max, window = normalizeLimits(max, window)
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, max: max, window: window, now: now}
}

// Allow records a slot for phone unless the window is already full.
func (r *Redis) Allow(ctx context.Context, phone string) (Decision, error) {
	if r.client == nil {
		return Decision{}, fmt.Errorf("redis client is nil")
	}
	ticket := uuid.NewString()
	res, err := allowScript.Run(ctx, r.client, []string{redisKeyPrefix + phone},
		r.now().UnixMilli(), r.window.Milliseconds(), r.max, ticket).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run rate limit script: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("unexpected rate limit reply: %v", res)
	}
	if res[0] == 1 {
		return Decision{Allowed: true, Ticket: ticket}, nil
	}
	retry := time.Duration(res[1]) * time.Millisecond
	if retry <= 0 {
		retry = time.Second
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

// Release removes a recorded slot.
func (r *Redis) Release(ctx context.Context, phone, ticket string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if ticket == "" {
		return nil
	}
	if err := r.client.ZRem(ctx, redisKeyPrefix+phone, ticket).Err(); err != nil {
		return fmt.Errorf("release rate limit slot: %w", err)
	}
	return nil
}
