package database

import (
	"context"
	"fmt"
	"time"

	"github.com/instapod/platform/pkg/common/config"
	"github.com/instapod/platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// NewRedis returns a client for the configured Redis instance, or nil when no
// host is configured. A failed ping is logged but does not prevent startup.
func NewRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	if cfg.RedisHost == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Log.WithError(err).Error("Failed to connect to Redis")
	} else {
		logger.Log.Info("Connected to Redis")
	}

	return client
}

func CloseRedis(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
