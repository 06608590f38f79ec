package redisinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/otp-identity/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewClient parses cfg.RedisURL, applies explicit I/O timeouts and verifies
// the connection with a PING. The returned client is safe for concurrent use
// and must be closed on shutdown.
func NewClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = cfg.OperationTimeout
	opts.WriteTimeout = cfg.OperationTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
