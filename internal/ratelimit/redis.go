package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const slidingWindowScript = `
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, now - window)
local count = redis.call("ZCARD", KEYS[1])

local allowed = 0
if count < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[3])
  count = count + 1
  allowed = 1
end

local oldest = now
local first = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if first[2] then
  oldest = tonumber(first[2])
end
redis.call("PEXPIRE", KEYS[1], window)

-- Return: allowed, count, retry_after (milliseconds)
return {allowed, count, math.max(0, oldest + window - now)}
`

// RedisLimiter keeps one sorted set per key so every replica shares the window.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	if client == nil {
		return nil
	}
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(slidingWindowScript),
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if r == nil || r.client == nil {
		return Decision{}, errors.New("rate limiter not configured")
	}
	if key == "" {
		return Decision{}, errors.New("rate limiter key is empty")
	}
	if r.limit <= 0 || r.window <= 0 {
		return Decision{}, errors.New("rate limiter limit and window must be positive")
	}

	res, err := r.script.Run(
		ctx,
		r.client,
		[]string{r.prefix + key},
		r.window.Milliseconds(),
		r.limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) < 3 {
		return Decision{}, errors.New("invalid rate limit script response")
	}

	allowed := res[0] == 1
	decision := Decision{
		Allowed:   allowed,
		Limit:     r.limit,
		Remaining: max(r.limit-int(res[1]), 0),
	}
	if !allowed {
		decision.RetryAfter = time.Duration(res[2]) * time.Millisecond
	}
	return decision, nil
}
