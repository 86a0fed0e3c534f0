package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/paypal-relay/internal/infrastructure/config"
	"github.com/cassiomorais/paypal-relay/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewClient creates a Redis client from REDIS_URL or host/port settings and
// retries the initial ping with backoff.
func NewClient(ctx context.Context, cfg *config.RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	retryCfg := retry.DefaultConfig()
	if cfg.ConnectRetries > 0 {
		retryCfg.MaxAttempts = cfg.ConnectRetries
	}
	if cfg.ConnectRetryDelay > 0 {
		retryCfg.InitialDelay = cfg.ConnectRetryDelay
	}
	retryCfg.OnRetry = func(n uint, err error) {
		logger.Warn().Err(err).Uint("attempt", n+1).Msg("redis not ready, retrying")
	}

	if err := retry.Do(ctx, retryCfg, func() error { return client.Ping(ctx).Err() }); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", retryCfg.MaxAttempts, err)
	}

	return client, nil
}

func options(cfg *config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	return opts, nil
}
