// Package cache holds the Redis and in-memory stores behind the ledger's
// idempotency and growth-index caching ports.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appledger "github.com/yieldvault/backend/internal/application/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/config"
)

const pingTimeout = 5 * time.Second

// Stores bundles the cache-backed ports used by the application layer
type Stores struct {
	Idempotency shared.IdempotencyStore
	GrowthIndex appledger.GrowthIndexCache
	client      *redis.Client
	closers     []func() error
}

// Close releases the stores and the Redis client if one was opened
func (s *Stores) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Ping reports whether the backing Redis answers; in-memory stores always do
func (s *Stores) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

// StoresOption configures NewStores
type StoresOption func(*storesOptions)

type storesOptions struct {
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// WithLogger sets the logger used to report the chosen backend
func WithLogger(logger *zap.Logger) StoresOption {
	return func(o *storesOptions) { o.logger = logger }
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// in-memory stores. Default is true.
func WithInMemoryFallback(allow bool) StoresOption {
	return func(o *storesOptions) { o.allowInMemoryFallback = allow }
}

// NewStores opens Redis when enabled and builds the stores on it. When Redis
// is disabled, or unreachable with fallback allowed, in-memory stores are used.
func NewStores(ctx context.Context, cfg config.RedisConfig, opts ...StoresOption) (*Stores, error) {
	o := storesOptions{logger: zap.NewNop(), allowInMemoryFallback: true}
	for _, opt := range opts {
		opt(&o)
	}

	if !cfg.Enabled {
		o.logger.Info("Redis disabled, using in-memory caches")
		return NewInMemoryStores(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		if !o.allowInMemoryFallback {
			return nil, fmt.Errorf("redis required but unavailable: %w", err)
		}
		o.logger.Warn("Redis unavailable, falling back to in-memory caches. "+
			"Idempotency keys are not shared across instances.",
			zap.String("addr", cfg.Addr()),
			zap.Error(err),
		)
		return NewInMemoryStores(), nil
	}

	o.logger.Info("Using Redis caches", zap.String("addr", cfg.Addr()), zap.Int("db", cfg.DB))
	return &Stores{
		Idempotency: NewRedisIdempotencyStore(client, ""),
		GrowthIndex: NewRedisGrowthIndexCache(client, ""),
		client:      client,
	}, nil
}

// NewInMemoryStores builds process-local stores
func NewInMemoryStores() *Stores {
	idem := NewInMemoryIdempotencyStore()
	growth := NewInMemoryGrowthIndexCache()
	return &Stores{
		Idempotency: idem,
		GrowthIndex: growth,
		closers:     []func() error{idem.Close, growth.Close},
	}
}
