package syncer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/semsyncd/internal/cache"
	"github.com/fyrsmithlabs/semsyncd/internal/vectorstore"
)

func validSearch() SearchRequest {
	return SearchRequest{
		AccountID:      "acct_1",
		Kind:           KindBusinessRule,
		QueryText:      "refund policy",
		Limit:          5,
		ScoreThreshold: 0.5,
	}
}

func TestSearch_MissQueriesStore(t *testing.T) {
	deps := newTestSyncer(t)
	deps.store.hits = []vectorstore.SearchHit{
		{Score: 0.9, Payload: vectorstore.Payload{AccountID: "acct_1", Kind: "business_rule", EntityID: 42, ChunkIndex: 1}},
	}

	results, err := deps.syncer.Search(context.Background(), validSearch())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(42), results[0].EntityID)
	assert.Equal(t, 1, results[0].ChunkIndex)
	assert.Equal(t, float32(0.9), results[0].Score)

	assert.Equal(t, 1, deps.provider.queryCalls)
	assert.Equal(t, "acct_1", deps.store.lastSearch.AccountID)
	assert.Equal(t, CollectionRules, deps.store.lastSearch.Collection)
	assert.Equal(t, 5, deps.store.lastSearch.Limit)
	assert.Equal(t, float32(0.5), deps.store.lastSearch.ScoreThreshold)
	assert.Equal(t, "business_rule", deps.store.lastSearch.Filter[vectorstore.FieldKind],
		"collections are shared across kinds, so the kind filter is mandatory")
}

func TestSearch_ResultIsCached(t *testing.T) {
	deps := newTestSyncer(t)
	deps.store.hits = []vectorstore.SearchHit{
		{Score: 0.8, Payload: vectorstore.Payload{AccountID: "acct_1", Kind: "business_rule", EntityID: 7}},
	}

	_, err := deps.syncer.Search(context.Background(), validSearch())
	require.NoError(t, err)

	key := cache.SearchKey("business_rule", "acct_1", cache.HashQuery("refund policy", 5, 0.5))
	raw, ok := deps.cache.values[key]
	require.True(t, ok, "search results must be written back to the cache")

	var cached []SearchResult
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	require.Len(t, cached, 1)
	assert.Equal(t, int64(7), cached[0].EntityID)
}

func TestSearch_CacheHitSkipsEmbedding(t *testing.T) {
	deps := newTestSyncer(t)
	cached, err := json.Marshal([]SearchResult{{EntityID: 42, Score: 0.9}})
	require.NoError(t, err)
	key := cache.SearchKey("business_rule", "acct_1", cache.HashQuery("refund policy", 5, 0.5))
	deps.cache.values[key] = string(cached)

	results, err := deps.syncer.Search(context.Background(), validSearch())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(42), results[0].EntityID)
	assert.Equal(t, 0, deps.provider.queryCalls, "a cache hit must not embed")
}

func TestSearch_CorruptCacheEntryIsIgnored(t *testing.T) {
	deps := newTestSyncer(t)
	key := cache.SearchKey("business_rule", "acct_1", cache.HashQuery("refund policy", 5, 0.5))
	deps.cache.values[key] = "{not json"

	results, err := deps.syncer.Search(context.Background(), validSearch())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, deps.provider.queryCalls, "corrupt entries fall back to a fresh search")
}

func TestSearch_DefaultLimit(t *testing.T) {
	deps := newTestSyncer(t)
	req := validSearch()
	req.Limit = 0

	_, err := deps.syncer.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, DefaultSearchLimit, deps.store.lastSearch.Limit)
}

func TestSearch_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SearchRequest)
	}{
		{"missing account", func(r *SearchRequest) { r.AccountID = "" }},
		{"unknown kind", func(r *SearchRequest) { r.Kind = "invoice" }},
		{"empty query", func(r *SearchRequest) { r.QueryText = "  " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps := newTestSyncer(t)
			req := validSearch()
			tc.mutate(&req)

			_, err := deps.syncer.Search(context.Background(), req)
			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, 0, deps.provider.queryCalls)
		})
	}
}

func TestSearch_StoreErrorPropagates(t *testing.T) {
	deps := newTestSyncer(t)
	deps.store.searchErr = vectorstore.ErrStoreUnavailable

	_, err := deps.syncer.Search(context.Background(), validSearch())
	require.ErrorIs(t, err, vectorstore.ErrStoreUnavailable)
}
