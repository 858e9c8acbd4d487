package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRedis is an in-memory stand-in for the go-redis client.
type fakeRedis struct {
	values map[string]string
	sets   map[string]map[string]struct{}
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: make(map[string]string),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	val, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.values[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			n++
		}
		delete(f.sets, key)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	set, ok := f.sets[key]
	if !ok {
		set = make(map[string]struct{})
		f.sets[key] = set
	}
	for _, m := range members {
		set[m.(string)] = struct{}{}
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeRedis) SRem(ctx context.Context, key string, members ...any) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, m := range members {
		delete(f.sets[key], m.(string))
	}
	return redis.NewIntResult(0, nil)
}

func (f *fakeRedis) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	if f.err != nil {
		return redis.NewStringSliceResult(nil, f.err)
	}
	var members []string
	for m := range f.sets[key] {
		members = append(members, m)
	}
	return redis.NewStringSliceResult(members, nil)
}

func (f *fakeRedis) Expire(ctx context.Context, key string, _ time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	return redis.NewBoolResult(true, nil)
}

func newTestCache(backend *fakeRedis) *Cache {
	return New(backend, TTLConfig{}, zap.NewNop())
}

func TestCache_SetGet(t *testing.T) {
	backend := newFakeRedis()
	c := newTestCache(backend)
	ctx := context.Background()

	key := EntityKey("business_rule", "acct_1", 42)
	c.Set(ctx, "business_rule", "acct_1", key, `{"synced":true}`, time.Minute)

	val, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, `{"synced":true}`, val)

	assert.Contains(t, backend.sets[indexKey("business_rule", "acct_1")], key,
		"every set must be recorded in the key index")
}

func TestCache_GetMiss(t *testing.T) {
	c := newTestCache(newFakeRedis())
	_, ok := c.Get(context.Background(), "business_rule:acct_1:99")
	assert.False(t, ok)
}

func TestCache_BackendFailureIsAMiss(t *testing.T) {
	backend := newFakeRedis()
	backend.err = errors.New("connection refused")
	c := newTestCache(backend)

	_, ok := c.Get(context.Background(), "some:key")
	assert.False(t, ok, "backend failure must look like a miss")

	// Set must not panic or surface the failure either.
	c.Set(context.Background(), "business_rule", "acct_1", "some:key", "v", time.Minute)
	c.InvalidateEntity(context.Background(), "acct_1", "business_rule", 1)
}

func TestCache_InvalidateEntity(t *testing.T) {
	backend := newFakeRedis()
	c := newTestCache(backend)
	ctx := context.Background()

	kind, account := "business_rule", "acct_1"
	entityKey := EntityKey(kind, account, 42)
	searchKey := SearchKey(kind, account, HashQuery("refund policy", 10, 0.5))
	otherEntityKey := EntityKey(kind, account, 43)

	c.Set(ctx, kind, account, entityKey, "v1", time.Minute)
	c.Set(ctx, kind, account, searchKey, "results", time.Minute)
	c.Set(ctx, kind, account, otherEntityKey, "v2", time.Minute)

	c.InvalidateEntity(ctx, account, kind, 42)

	_, ok := c.Get(ctx, entityKey)
	assert.False(t, ok, "entity key must be gone")
	_, ok = c.Get(ctx, searchKey)
	assert.False(t, ok, "search keys for the account/kind must be gone")
	_, ok = c.Get(ctx, otherEntityKey)
	assert.True(t, ok, "other entities' direct keys survive")
}

func TestCache_InvalidateEntity_OtherTenantUntouched(t *testing.T) {
	backend := newFakeRedis()
	c := newTestCache(backend)
	ctx := context.Background()

	searchA := SearchKey("business_rule", "acct_a", "h1")
	searchB := SearchKey("business_rule", "acct_b", "h1")
	c.Set(ctx, "business_rule", "acct_a", searchA, "a", time.Minute)
	c.Set(ctx, "business_rule", "acct_b", searchB, "b", time.Minute)

	c.InvalidateEntity(ctx, "acct_a", "business_rule", 1)

	_, ok := c.Get(ctx, searchB)
	assert.True(t, ok, "invalidation must never cross tenants")
}

func TestCache_InvalidateCollection(t *testing.T) {
	backend := newFakeRedis()
	c := newTestCache(backend)
	ctx := context.Background()

	kind, account := "support_document", "acct_1"
	keys := []string{
		EntityKey(kind, account, 1),
		EntityKey(kind, account, 2),
		SearchKey(kind, account, "h1"),
	}
	for _, key := range keys {
		c.Set(ctx, kind, account, key, "v", time.Minute)
	}

	c.InvalidateCollection(ctx, account, kind)

	for _, key := range keys {
		_, ok := c.Get(ctx, key)
		assert.False(t, ok, "key %s must be gone after collection invalidation", key)
	}
	assert.Empty(t, backend.sets[indexKey(kind, account)], "index itself must be dropped")
}

func TestKeyFormats(t *testing.T) {
	assert.Equal(t, "business_rule:acct_1:42", EntityKey("business_rule", "acct_1", 42))
	assert.Equal(t, "business_rule:acct_1", CollectionKey("business_rule", "acct_1"))
	assert.True(t, strings.HasPrefix(SearchKey("business_rule", "acct_1", "abc"), "search:business_rule:acct_1:"))
}

func TestHashQuery_Stable(t *testing.T) {
	a := HashQuery("refund policy", 10, 0.5)
	b := HashQuery("refund policy", 10, 0.5)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, HashQuery("refund policy", 20, 0.5))
	assert.NotEqual(t, a, HashQuery("refund policy", 10, 0.7))
	assert.NotEqual(t, a, HashQuery("shipping policy", 10, 0.5))
}
