package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetGraph retrieves a cached ego graph. Returns nil, nil on miss.
	GetGraph(ctx context.Context, key string) (*GraphResult, error)

	// SetGraph caches an ego graph.
	SetGraph(ctx context.Context, key string, graph *GraphResult, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `envconfig:"HARRIER_CACHE_TYPE"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `envconfig:"HARRIER_CACHE_LOCAL_MAX_SIZE"`
	LocalTTL     time.Duration `envconfig:"HARRIER_CACHE_LOCAL_TTL"`

	// Redis settings (Pro tier)
	RedisAddr     string `envconfig:"HARRIER_CACHE_REDIS_ADDR"`
	RedisPassword string `envconfig:"HARRIER_CACHE_REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"HARRIER_CACHE_REDIS_DB"`

	// Two-phase settings
	EnableTwoPhase bool `envconfig:"HARRIER_CACHE_TWO_PHASE"` // If true, check local first, then Redis
}
