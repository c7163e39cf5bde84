package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/counsel-coordinator/internal/config"
)

// NewRedisClient connects the client shared by the slot locker and the
// change bus. Pub/sub subscriptions take their own connections outside
// the pool, so PoolSize only bounds lock and publish traffic.
func NewRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	poolSize := cfg.RedisPoolSize
	if poolSize < 1 {
		poolSize = 20
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     poolSize,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}

	return rdb, nil
}
