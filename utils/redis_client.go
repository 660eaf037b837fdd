package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/threadboard/server/config"
)

var (
	redisMu     sync.RWMutex
	redisClient *redis.Client
	redisDialed bool
)

func redisOptions(cfg config.AppConfig) *redis.Options {
	return &redis.Options{
		Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

// GetRedis returns the shared client, dialing it on first use.
// Without a configured host it returns nil and the ephemeral stores stay in process memory.
func GetRedis() *redis.Client {
	redisMu.RLock()
	c, dialed := redisClient, redisDialed
	redisMu.RUnlock()
	if dialed {
		return c
	}

	redisMu.Lock()
	defer redisMu.Unlock()
	if redisDialed {
		return redisClient
	}
	redisDialed = true
	cfg := config.Get()
	if cfg.RedisHost == "" {
		return nil
	}
	redisClient = redis.NewClient(redisOptions(cfg))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		Sugar.Warnf("redis ping %s failed, continuing: %v", redisClient.Options().Addr, err)
	}
	return redisClient
}

// SetRedis installs c as the shared client; nil forces the in-memory fallback.
func SetRedis(c *redis.Client) {
	redisMu.Lock()
	redisClient, redisDialed = c, true
	redisMu.Unlock()
}

// CloseRedis releases the shared client once the server has drained.
func CloseRedis(context.Context) {
	redisMu.Lock()
	c := redisClient
	redisClient = nil
	redisMu.Unlock()
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		Sugar.Warnf("redis close: %v", err)
	}
}
