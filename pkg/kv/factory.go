package kv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Backend represents the storage backend type
type Backend string

const (
	// BackendMemory uses the in-memory store
	BackendMemory Backend = "memory"
	// BackendRedis uses Redis as the backend
	BackendRedis Backend = "redis"
)

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendMemory, BackendRedis:
		return b, nil
	default:
		return "", fmt.Errorf("unsupported backend: %q (supported: %s, %s)", s, BackendMemory, BackendRedis)
	}
}

// Config holds configuration for creating a Store instance
type Config struct {
	Backend Backend

	// RedisURL is the connection string for Redis (required when Backend is "redis")
	// Format: redis://localhost:6379/0 or redis://:password@localhost:6379/1
	RedisURL string

	// JanitorInterval controls how often the in-memory store cleans up expired keys.
	// Default: 30 seconds
	JanitorInterval time.Duration

	// StartupProbeTimeout bounds the Redis ping at startup.
	// Default: 1 second
	StartupProbeTimeout time.Duration

	// FallbackToMemory serves from the in-memory store when Redis cannot be
	// reached at startup. Vault records kept that way do not survive a restart.
	FallbackToMemory bool

	Logger *zap.SugaredLogger
}

// StoreFactory defines a function that creates a Store instance
type StoreFactory func(cfg Config) (Store, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[Backend]StoreFactory)
)

// RegisterBackend registers a store factory for a given backend
func RegisterBackend(backend Backend, factory StoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[backend] = factory
}

func factoryFor(backend Backend) (StoreFactory, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[backend]
	if !ok {
		return nil, fmt.Errorf("%s backend not registered", backend)
	}
	return f, nil
}

// NewStoreFromConfig creates a new Store instance based on the provided configuration
func NewStoreFromConfig(cfg Config) (Store, error) {
	if cfg.JanitorInterval == 0 {
		cfg.JanitorInterval = 30 * time.Second
	}
	if cfg.StartupProbeTimeout == 0 {
		cfg.StartupProbeTimeout = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	switch cfg.Backend {
	case BackendMemory:
		factory, err := factoryFor(BackendMemory)
		if err != nil {
			return nil, err
		}
		return factory(cfg)
	case BackendRedis:
		return newRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend: %s (supported: %s, %s)",
			cfg.Backend, BackendMemory, BackendRedis)
	}
}

func newRedisStore(cfg Config) (Store, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required when backend is 'redis'")
	}
	redisFactory, err := factoryFor(BackendRedis)
	if err != nil {
		return nil, err
	}

	store, err := redisFactory(cfg)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupProbeTimeout)
		defer cancel()
		if err = store.Ping(ctx); err == nil {
			cfg.Logger.Infow("Using Redis kv backend", "url", redactURL(cfg.RedisURL))
			return store, nil
		}
		store.Close()
	}

	if !cfg.FallbackToMemory {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	cfg.Logger.Warnw("Redis unavailable at startup, using in-memory kv store", "error", err)

	memoryFactory, ferr := factoryFor(BackendMemory)
	if ferr != nil {
		return nil, ferr
	}
	return memoryFactory(cfg)
}

func redactURL(raw string) string {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '@' {
			return "redis://***" + raw[i:]
		}
	}
	return raw
}
