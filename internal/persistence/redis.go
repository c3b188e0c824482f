package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-hub/internal/config"
	"github.com/spec-kit/support-hub/internal/domain"
)

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// StatCache is a redis-backed cache for ticket stat counts. Cache misses and
// redis faults both fall through to the database; the cache is advisory.
type StatCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatCache builds a cache over the shared client.
func NewStatCache(r *Redis, ttl time.Duration, logger *zap.Logger) *StatCache {
	if r == nil || r.Client == nil {
		return nil
	}
	return &StatCache{client: r.Client, ttl: ttl, logger: logger}
}

// Get returns cached counts for the key if present and fresh.
func (c *StatCache) Get(ctx context.Context, key string) (*domain.TicketStatCounts, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("stat cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var counts domain.TicketStatCounts
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, false
	}
	return &counts, true
}

// Set stores counts for the key with the configured TTL.
func (c *StatCache) Set(ctx context.Context, key string, counts domain.TicketStatCounts) {
	raw, err := json.Marshal(counts)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("stat cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops the given keys.
func (c *StatCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("stat cache invalidate failed", zap.Error(err))
	}
}
