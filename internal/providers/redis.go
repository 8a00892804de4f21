package providers

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bizledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// newRedisClient returns nil when REDIS_ADDR is unset. Consumers take the
// client as optional and fall back to single node behaviour.
func newRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) redis.UniversalClient {
	log = log.Named("providers.redis")
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR not set, distributed locks and rate limits are disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}
