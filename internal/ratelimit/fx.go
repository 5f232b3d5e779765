package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/donara/internal/config"
	donationservice "github.com/smallbiznis/donara/internal/donation/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
	fx.Provide(provideBucket),
	fx.Provide(NewLimiter),
	fx.Provide(provideDistributedLocker),
	fx.Provide(fx.Annotate(provideLockTTL, fx.ResultTags(`name:"donationLockTTL"`))),
)

// NewRedisClient returns nil when no Redis address is configured; every
// consumer then falls back to process-local behavior.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) redis.UniversalClient {
	if cfg.RedisAddr == "" {
		log.Info("redis disabled, using process-local locks")
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
				log.Warn("redis ping failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

// provideBucket shares buckets through Redis when it is configured and keeps
// them in process otherwise.
func provideBucket(client redis.UniversalClient, log *zap.Logger) Bucket {
	if bucket := NewRedisBucket(client); bucket != nil {
		return bucket
	}
	log.Info("redis disabled, rate limits are enforced per replica")
	return NewLocalBucket()
}

func provideDistributedLocker(locker *Locker) donationservice.DistributedLocker {
	if locker == nil {
		return nil
	}
	return locker
}

func provideLockTTL(cfg config.Config) time.Duration {
	return cfg.Payments.LockTTL
}
