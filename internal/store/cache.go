package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leafsii/leafsii-vault/internal/metrics"
	"github.com/leafsii/leafsii-vault/pkg/kv"
	memkv "github.com/leafsii/leafsii-vault/pkg/kv/memory"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache key prefixes and pub/sub channels
const (
	KeyVaultState       = "lfs:vault:state"
	KeyPreviewDeposit   = "lfs:vault:preview:deposit"
	KeyPreviewRedeem    = "lfs:vault:preview:redeem"
	ChannelVaultEvents  = "lfs:vault:events"
	ChannelVaultUpdates = "lfs:vault:updates"

	vaultStateTTL = 2 * time.Second
	previewTTL    = time.Second
)

type Cache struct {
	// When Redis is available, use client for all operations
	client *redis.Client
	// When Redis is unavailable, fall back to an in-memory kv.Store
	kvStore kv.Store
	// In-memory pubsub hub for when Redis is unavailable
	pubsubHub *PubSubHub

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewCache(addr string, logger *zap.SugaredLogger, m *metrics.Metrics) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		logger.Warnw("Redis unavailable; using in-memory cache and pubsub", "addr", addr, "error", err)
		return NewMemoryCache(logger, m), nil
	}

	logger.Infow("Cache connected to Redis", "addr", addr)
	return &Cache{
		client:  client,
		logger:  logger,
		metrics: m,
	}, nil
}

func NewMemoryCache(logger *zap.SugaredLogger, m *metrics.Metrics) *Cache {
	return &Cache{
		kvStore:   memkv.NewStore(),
		pubsubHub: NewPubSubHub(),
		logger:    logger,
		metrics:   m,
	}
}

// Client exposes the Redis client, or nil in in-memory mode.
func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	var (
		data []byte
		err  error
	)
	if c.client != nil {
		data, err = c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			err = kv.ErrNotFound
		}
	} else {
		data, err = c.kvStore.Get(ctx, key)
	}

	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			c.metrics.RecordCacheMiss(ctx, key)
			return ErrCacheMiss
		}
		c.logger.Errorw("Cache get error", "key", key, "error", err)
		return fmt.Errorf("cache get error: %w", err)
	}

	c.metrics.RecordCacheHit(ctx, key)
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if c.client != nil {
		err = c.client.Set(ctx, key, data, ttl).Err()
	} else {
		err = c.kvStore.Set(ctx, key, data, ttl)
	}
	if err != nil {
		c.logger.Errorw("Cache set error", "key", key, "error", err)
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	var err error
	if c.client != nil {
		err = c.client.Del(ctx, keys...).Err()
	} else {
		_, err = c.kvStore.Del(ctx, keys...)
	}
	if err != nil {
		c.logger.Errorw("Cache delete error", "keys", keys, "error", err)
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	var (
		count int64
		err   error
	)
	if c.client != nil {
		count, err = c.client.Exists(ctx, key).Result()
	} else {
		count, err = c.kvStore.Exists(ctx, key)
	}
	if err != nil {
		return false, fmt.Errorf("cache exists error: %w", err)
	}
	return count > 0, nil
}

// Vault read caches. Entries are short-lived and dropped on every committed
// vault operation by EventPublisher.

func (c *Cache) GetVaultState(ctx context.Context, dest interface{}) error {
	return c.Get(ctx, KeyVaultState, dest)
}

func (c *Cache) SetVaultState(ctx context.Context, value interface{}) error {
	return c.Set(ctx, KeyVaultState, value, vaultStateTTL)
}

func (c *Cache) GetPreview(ctx context.Context, kind string, amount uint64, dest interface{}) error {
	return c.Get(ctx, previewKey(kind, amount), dest)
}

func (c *Cache) SetPreview(ctx context.Context, kind string, amount uint64, value interface{}) error {
	return c.Set(ctx, previewKey(kind, amount), value, previewTTL)
}

func previewKey(kind string, amount uint64) string {
	prefix := KeyPreviewDeposit
	if kind == "redeem" {
		prefix = KeyPreviewRedeem
	}
	return fmt.Sprintf("%s:%d", prefix, amount)
}

// Publish JSON-encodes message onto channel.
func (c *Cache) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("pubsub marshal error: %w", err)
	}

	if c.client != nil {
		if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
			c.logger.Errorw("Publish error", "channel", channel, "error", err)
			return fmt.Errorf("pubsub publish error: %w", err)
		}
		return nil
	}

	n := c.pubsubHub.Publish(channel, string(data))
	c.logger.Debugw("Published to in-memory pubsub", "channel", channel, "subscribers", n)
	return nil
}

// Subscribe opens a subscription on Redis, or on the in-memory hub when Redis
// is unavailable.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) Subscription {
	if c.client != nil {
		return newRedisSubscription(ctx, c.client.Subscribe(ctx, channels...))
	}
	return c.pubsubHub.Subscribe(ctx, channels...)
}

// IsInMemoryMode returns true if the cache is running in in-memory mode
func (c *Cache) IsInMemoryMode() bool {
	return c.client == nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if c.client != nil {
		return c.client.Ping(ctx).Err()
	}
	return nil
}

func (c *Cache) Close() error {
	var err error
	if c.client != nil {
		err = c.client.Close()
	}
	if c.kvStore != nil {
		if closeErr := c.kvStore.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
