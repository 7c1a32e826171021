package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	redisClient *redis.Client
	once        sync.Once
)

// InitRedis connects the shared client. Called once at startup; every later
// GetRedisClient returns the same connection pool.
func InitRedis(addr string) (*redis.Client, error) {
	var initErr error
	once.Do(func() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         addr,
			PoolSize:     10,
			MinIdleConns: 5,
			MaxRetries:   5,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 3 * time.Second,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			initErr = fmt.Errorf("failed to connect to redis: %w", err)
		}
	})
	return redisClient, initErr
}

func GetRedisClient() *redis.Client {
	return redisClient
}

func CloseRedis() error {
	if redisClient != nil {
		return redisClient.Close()
	}
	return nil
}
