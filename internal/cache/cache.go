// Package cache is a derived, TTL-bound read cache over vector store
// results, keyed by tenant and entity.
//
// The cache is disposable: correctness lives in the vector store, so
// every cache failure is logged and swallowed. A fault here must never
// abort a successful vector store write.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TTLConfig holds TTLs per cache entry class.
type TTLConfig struct {
	// Entity is the TTL for volatile entity state.
	Entity time.Duration `koanf:"entity_ttl"`

	// Search is the TTL for cached search results.
	Search time.Duration `koanf:"search_ttl"`

	// Metadata is the TTL for slowly-changing metadata.
	Metadata time.Duration `koanf:"metadata_ttl"`
}

// ApplyDefaults sets default values for unset fields.
func (c *TTLConfig) ApplyDefaults() {
	if c.Entity == 0 {
		c.Entity = 5 * time.Minute
	}
	if c.Search == 0 {
		c.Search = 15 * time.Minute
	}
	if c.Metadata == 0 {
		c.Metadata = time.Hour
	}
}

// redisClient is the slice of go-redis the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
}

// Cache is the Redis-backed cache layer.
type Cache struct {
	client redisClient
	logger *zap.Logger
	ttl    TTLConfig
}

// New creates a Cache over an established Redis client.
func New(client redisClient, ttl TTLConfig, logger *zap.Logger) *Cache {
	ttl.ApplyDefaults()
	return &Cache{
		client: client,
		logger: logger.Named("cache"),
		ttl:    ttl,
	}
}

// TTL returns the configured TTLs.
func (c *Cache) TTL() TTLConfig {
	return c.ttl
}

// Get returns the cached value for key. A backend failure is
// indistinguishable from a miss: both return ok == false.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return val, true
}

// Set writes a value and records the key in the per-account/kind index
// so later invalidation can find it. Best effort.
func (c *Cache) Set(ctx context.Context, kind, accountID, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return
	}

	idx := indexKey(kind, accountID)
	if err := c.client.SAdd(ctx, idx, key).Err(); err != nil {
		c.logger.Warn("cache index update failed", zap.String("key", idx), zap.Error(err))
		return
	}
	// The index must outlive its longest-lived member or invalidation
	// would miss keys; refresh its TTL on every write.
	if err := c.client.Expire(ctx, idx, c.ttl.Metadata).Err(); err != nil {
		c.logger.Warn("cache index expire failed", zap.String("key", idx), zap.Error(err))
	}
}

// DeleteMany removes keys. Best effort.
func (c *Cache) DeleteMany(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache delete failed", zap.Int("key_count", len(keys)), zap.Error(err))
	}
}

// Keys returns the indexed cache keys for an account/kind.
func (c *Cache) Keys(ctx context.Context, kind, accountID string) []string {
	keys, err := c.client.SMembers(ctx, indexKey(kind, accountID)).Result()
	if err != nil {
		c.logger.Warn("cache index read failed",
			zap.String("kind", kind), zap.String("account_id", accountID), zap.Error(err))
		return nil
	}
	return keys
}

// InvalidateEntity removes the entity's direct key and every cached
// search-result key for the account/kind, since a content change may
// change which searches would have returned this entity.
func (c *Cache) InvalidateEntity(ctx context.Context, accountID, kind string, entityID int64) {
	stale := []string{EntityKey(kind, accountID, entityID)}
	for _, key := range c.Keys(ctx, kind, accountID) {
		if isSearchKey(key) {
			stale = append(stale, key)
		}
	}

	c.DeleteMany(ctx, stale...)
	if err := c.client.SRem(ctx, indexKey(kind, accountID), toMembers(stale)...).Err(); err != nil {
		c.logger.Warn("cache index trim failed",
			zap.String("kind", kind), zap.String("account_id", accountID), zap.Error(err))
	}

	c.logger.Debug("invalidated entity cache",
		zap.String("account_id", accountID),
		zap.String("kind", kind),
		zap.Int64("entity_id", entityID),
		zap.Int("keys_removed", len(stale)))
}

// InvalidateCollection removes every cached key for an account/kind,
// including the index itself. Used after a bulk re-sync.
func (c *Cache) InvalidateCollection(ctx context.Context, accountID, kind string) {
	keys := c.Keys(ctx, kind, accountID)
	keys = append(keys, CollectionKey(kind, accountID), indexKey(kind, accountID))
	c.DeleteMany(ctx, keys...)

	c.logger.Debug("invalidated collection cache",
		zap.String("account_id", accountID),
		zap.String("kind", kind),
		zap.Int("keys_removed", len(keys)))
}

func isSearchKey(key string) bool {
	return len(key) > 7 && key[:7] == "search:"
}

func toMembers(keys []string) []any {
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	return members
}
