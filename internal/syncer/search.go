package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/semsyncd/internal/cache"
	"github.com/fyrsmithlabs/semsyncd/internal/vectorstore"
)

// DefaultSearchLimit caps results when the caller does not set one.
const DefaultSearchLimit = 10

// SearchRequest is one tenant-scoped semantic search.
type SearchRequest struct {
	AccountID string `json:"account_id"`
	Kind      Kind   `json:"kind"`
	QueryText string `json:"query_text"`
	Limit     int    `json:"limit"`

	// ScoreThreshold excludes results scoring below it. Zero disables
	// the cutoff.
	ScoreThreshold float32 `json:"score_threshold"`
}

// SearchResult is one ranked hit.
type SearchResult struct {
	EntityID   int64               `json:"entity_id"`
	ChunkIndex int                 `json:"chunk_index"`
	Score      float32             `json:"score"`
	Payload    vectorstore.Payload `json:"payload"`
}

// Search serves the read path: cached results when present, otherwise
// embed the query and search the store, caching what comes back. A
// cache hit never touches the embedding provider.
func (s *Syncer) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "syncer.search")
	defer span.End()

	if err := s.validateSearch(req); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = DefaultSearchLimit
	}
	span.SetAttributes(
		attribute.String("search.kind", string(req.Kind)),
		attribute.Int("search.limit", req.Limit),
	)

	key := cache.SearchKey(string(req.Kind), req.AccountID,
		cache.HashQuery(req.QueryText, req.Limit, req.ScoreThreshold))
	if raw, ok := s.cache.Get(ctx, key); ok {
		var results []SearchResult
		if err := json.Unmarshal([]byte(raw), &results); err == nil {
			s.logger.Debug("search cache hit", zap.String("key", key))
			return results, nil
		}
		// A corrupt entry falls through to a fresh search.
		s.logger.Warn("discarding undecodable cached search result", zap.String("key", key))
	}

	vector, err := s.provider.EmbedQuery(ctx, req.QueryText)
	if err != nil {
		return nil, err
	}

	hits, err := s.store.Search(ctx, vectorstore.SearchParams{
		AccountID:      req.AccountID,
		Collection:     req.Kind.Collection(),
		Vector:         vector,
		Limit:          req.Limit,
		ScoreThreshold: req.ScoreThreshold,
		Filter: map[string]any{
			vectorstore.FieldKind: string(req.Kind),
		},
	})
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{
			EntityID:   hit.Payload.EntityID,
			ChunkIndex: hit.Payload.ChunkIndex,
			Score:      hit.Score,
			Payload:    hit.Payload,
		}
	}

	if encoded, err := json.Marshal(results); err == nil {
		s.cache.Set(ctx, string(req.Kind), req.AccountID, key, string(encoded), s.config.SearchTTL)
	}
	return results, nil
}

func (s *Syncer) validateSearch(req SearchRequest) error {
	if req.AccountID == "" {
		return fmt.Errorf("%w: account_id is required", ErrValidation)
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, req.Kind)
	}
	if strings.TrimSpace(req.QueryText) == "" {
		return fmt.Errorf("%w: query_text is required", ErrValidation)
	}
	return nil
}
