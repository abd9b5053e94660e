package repo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisClient wraps the Redis client with connection diagnostics.
type RedisClient struct {
	*redis.Client
	log *zap.Logger
}

// newRedisClient creates a new Redis client with bounded IO timeouts.
func newRedisClient(addr string, db int, log *zap.Logger) *RedisClient {
	opts := &redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	}

	client := &RedisClient{
		Client: redis.NewClient(opts),
		log:    log.Named("redis"),
	}

	client.ping(context.TODO())

	return client
}

// Close closes the Redis client connection.
func (c *RedisClient) Close() error {
	return c.Client.Close()
}

// ping logs connection diagnostics at boot; failures are logged, not fatal,
// since Redis may come up after us.
func (c *RedisClient) ping(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	opts := c.Options()
	log := c.log.With(
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
	)

	start := time.Now()
	if err := c.Client.Ping(ctx).Err(); err != nil {
		log.Warn("ping failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	log.Info("connected", zap.Duration("elapsed", time.Since(start)))
}
