package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/smallbiznis/hightide/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPrefix = "hightide:ratelimit:"

var Module = fx.Module("rate.limit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewRateLimiter),
	fx.Provide(NewLocker),
)

// NewRedisClient returns nil when no Redis address is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RateLimit.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RateLimit.RedisPassword),
		DB:       cfg.RateLimit.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewRateLimiter(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, client *redis.Client, log *zap.Logger) RateLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		log.Info("rate limiting disabled")
		return Unlimited{}
	}
	if client != nil {
		log.Info("rate limiting with redis", zap.Int("limit", limitCfg.Limit), zap.Duration("window", limitCfg.Window))
		return NewRedisLimiter(client, keyPrefix, limitCfg.Limit, limitCfg.Window)
	}

	limiter := NewMemoryLimiter(clk, limitCfg.Limit, limitCfg.Window, limitCfg.MaxKeys)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			limiter.Start(limitCfg.SweepInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			limiter.Stop()
			return nil
		},
	})
	return limiter
}

func NewLocker(client *redis.Client) Locker {
	if client != nil {
		return NewRedisLocker(client)
	}
	return NewLocalLocker()
}
