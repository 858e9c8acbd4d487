package cache

import (
	"fmt"
	"hash/fnv"
)

// Key formats:
//
//	{kind}:{account_id}                    collection-level entries
//	{kind}:{account_id}:{entity_id}        direct entity entries
//	search:{kind}:{account_id}:{hash}      cached search results
//	idx:{kind}:{account_id}                key index set (internal)
//
// The idx set records every key written for an account/kind so
// invalidation iterates a bounded, known list instead of scanning the
// keyspace.

// EntityKey builds the direct cache key for one entity.
func EntityKey(kind, accountID string, entityID int64) string {
	return fmt.Sprintf("%s:%s:%d", kind, accountID, entityID)
}

// CollectionKey builds the cache key for account/kind level entries.
func CollectionKey(kind, accountID string) string {
	return fmt.Sprintf("%s:%s", kind, accountID)
}

// SearchKey builds the cache key for one search result set.
func SearchKey(kind, accountID, queryHash string) string {
	return fmt.Sprintf("search:%s:%s:%s", kind, accountID, queryHash)
}

// HashQuery derives a stable hash for a search request so identical
// queries share a cache entry.
func HashQuery(query string, limit int, scoreThreshold float32) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%g", query, limit, scoreThreshold)
	return fmt.Sprintf("%016x", h.Sum64())
}

// indexKey builds the key of the per-account/kind key index set.
func indexKey(kind, accountID string) string {
	return fmt.Sprintf("idx:%s:%s", kind, accountID)
}
