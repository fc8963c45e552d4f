package cache

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	appledger "github.com/yieldvault/backend/internal/application/ledger"
)

const defaultGrowthIndexPrefix = "ledger:growth-index:"

// RedisGrowthIndexCache stores client growth indices as decimal strings
type RedisGrowthIndexCache struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisGrowthIndexCache wraps a shared client. The caller owns the client.
func NewRedisGrowthIndexCache(client redis.UniversalClient, keyPrefix string) *RedisGrowthIndexCache {
	if keyPrefix == "" {
		keyPrefix = defaultGrowthIndexPrefix
	}
	return &RedisGrowthIndexCache{client: client, keyPrefix: keyPrefix}
}

func (c *RedisGrowthIndexCache) key(clientID uuid.UUID) string {
	return c.keyPrefix + clientID.String()
}

// Get implements GrowthIndexCache
func (c *RedisGrowthIndexCache) Get(ctx context.Context, clientID uuid.UUID) (*big.Int, bool, error) {
	raw, err := c.client.Get(ctx, c.key(clientID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get growth index: %w", err)
	}
	idx, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		// a corrupt entry is a miss; the next Set overwrites it
		return nil, false, nil
	}
	return idx, true, nil
}

// Set implements GrowthIndexCache
func (c *RedisGrowthIndexCache) Set(ctx context.Context, clientID uuid.UUID, idx *big.Int, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(clientID), idx.String(), ttl).Err(); err != nil {
		return fmt.Errorf("set growth index: %w", err)
	}
	return nil
}

// Invalidate implements GrowthIndexCache
func (c *RedisGrowthIndexCache) Invalidate(ctx context.Context, clientID uuid.UUID) error {
	if err := c.client.Del(ctx, c.key(clientID)).Err(); err != nil {
		return fmt.Errorf("invalidate growth index: %w", err)
	}
	return nil
}

// InMemoryGrowthIndexCache is the single-instance GrowthIndexCache
type InMemoryGrowthIndexCache struct {
	entries *ttlMap[*big.Int]
}

// NewInMemoryGrowthIndexCache creates an empty cache
func NewInMemoryGrowthIndexCache() *InMemoryGrowthIndexCache {
	return &InMemoryGrowthIndexCache{entries: newTTLMap[*big.Int](defaultCleanupInterval)}
}

// Get implements GrowthIndexCache and returns a copy
func (c *InMemoryGrowthIndexCache) Get(_ context.Context, clientID uuid.UUID) (*big.Int, bool, error) {
	v, ok := c.entries.get(clientID.String())
	if !ok {
		return nil, false, nil
	}
	return new(big.Int).Set(v), true, nil
}

// Set implements GrowthIndexCache
func (c *InMemoryGrowthIndexCache) Set(_ context.Context, clientID uuid.UUID, idx *big.Int, ttl time.Duration) error {
	c.entries.set(clientID.String(), new(big.Int).Set(idx), ttl)
	return nil
}

// Invalidate implements GrowthIndexCache
func (c *InMemoryGrowthIndexCache) Invalidate(_ context.Context, clientID uuid.UUID) error {
	c.entries.delete(clientID.String())
	return nil
}

// Close stops the sweeper
func (c *InMemoryGrowthIndexCache) Close() error {
	c.entries.close()
	return nil
}

var (
	_ appledger.GrowthIndexCache = (*RedisGrowthIndexCache)(nil)
	_ appledger.GrowthIndexCache = (*InMemoryGrowthIndexCache)(nil)
)
