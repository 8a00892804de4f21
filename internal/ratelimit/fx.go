package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bizledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(newWriteLimiter),
)

type limiterParams struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Client redis.UniversalClient `optional:"true"`
}

// newWriteLimiter returns nil unless RATE_LIMIT_ENABLED is set and Redis is
// reachable through REDIS_ADDR.
func newWriteLimiter(p limiterParams) *WriteLimiter {
	log := p.Log.Named("ratelimit")
	if !p.Config.RateLimitEnabled {
		return nil
	}
	if p.Client == nil {
		log.Warn("RATE_LIMIT_ENABLED is set without REDIS_ADDR, writes are not throttled")
		return nil
	}
	log.Info("write rate limit enabled",
		zap.Float64("rate", p.Config.RateLimitRate),
		zap.Int("burst", p.Config.RateLimitBurst),
	)
	return NewWriteLimiter(NewTokenBucket(p.Client), p.Config.RateLimitRate, p.Config.RateLimitBurst)
}
