package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient configures a Redis client and verifies connectivity. timeout
// bounds dialing, each command and the initial ping.
func NewRedisClient(ctx context.Context, url string, timeout time.Duration) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if timeout > 0 {
		opt.DialTimeout = timeout
		opt.ReadTimeout = timeout
		opt.WriteTimeout = timeout
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// CheckStores reports the state of the backing stores for readiness checks. A nil
// store is reported with absent instead of being pinged.
func CheckStores(ctx context.Context, db *pgxpool.Pool, cache *redis.Client, absentDB, absentCache string) (map[string]string, bool) {
	status := map[string]string{"postgres": absentDB, "redis": absentCache}
	healthy := true
	if db != nil {
		status["postgres"] = "ok"
		if err := db.Ping(ctx); err != nil {
			status["postgres"] = err.Error()
			healthy = false
		}
	}
	if cache != nil {
		status["redis"] = "ok"
		if err := cache.Ping(ctx).Err(); err != nil {
			status["redis"] = err.Error()
			healthy = false
		}
	}
	return status, healthy
}
