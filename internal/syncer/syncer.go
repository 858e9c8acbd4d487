// Package syncer orchestrates the sync pipeline: it validates an
// entity snapshot, chunks its text fields, embeds the chunks, writes
// the resulting points to the vector store, and invalidates the cache
// entries the entity affects. It also serves the cached search read
// path.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/semsyncd/internal/chunker"
	"github.com/fyrsmithlabs/semsyncd/internal/embeddings"
	"github.com/fyrsmithlabs/semsyncd/internal/vectorstore"
)

var tracer = otel.Tracer("semsyncd.syncer")

// ErrValidation indicates a malformed sync or search request. It is a
// caller error: never retried, surfaced immediately.
var ErrValidation = errors.New("invalid request")

// State is the position of an in-flight sync in its pipeline. Failure
// messages carry the state the pipeline failed in.
type State string

const (
	StateReceived         State = "received"
	StateChunked          State = "chunked"
	StateEmbedded         State = "embedded"
	StateStored           State = "stored"
	StateCacheInvalidated State = "cache_invalidated"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// ErrorCode classifies a failed sync for the caller: invalid_request
// means fix the payload, embedding_failed and store_failed mean a
// downstream dependency failed and the request may be resubmitted.
type ErrorCode string

const (
	CodeInvalidRequest  ErrorCode = "invalid_request"
	CodeEmbeddingFailed ErrorCode = "embedding_failed"
	CodeStoreFailed     ErrorCode = "store_failed"
)

// Request is one entity snapshot to sync. The snapshot is owned by
// the external record system; the syncer only derives from it.
type Request struct {
	AccountID   string            `json:"account_id"`
	Kind        Kind              `json:"kind"`
	EntityID    int64             `json:"entity_id"`
	Fields      map[string]string `json:"fields"`
	LastUpdated time.Time         `json:"last_updated"`
}

// Result is the terminal outcome of a sync. ErrorCode is empty on
// success.
type Result struct {
	Success       bool      `json:"success"`
	PointsWritten int       `json:"points_written"`
	Message       string    `json:"message"`
	ErrorCode     ErrorCode `json:"error_code,omitempty"`
}

// ResultCache is the slice of the cache layer the syncer uses. All
// methods are best-effort: the cache logs and swallows backend
// failures itself.
type ResultCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, kind, accountID, key, value string, ttl time.Duration)
	InvalidateEntity(ctx context.Context, accountID, kind string, entityID int64)
}

// Config holds the syncer's own knobs. Store and embedding behavior
// is configured on those components directly.
type Config struct {
	// SearchTTL bounds how long cached search results live.
	SearchTTL time.Duration

	// IncludeSnippets controls whether chunk text is persisted in the
	// point payload for downstream snippet display.
	IncludeSnippets bool
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.SearchTTL == 0 {
		c.SearchTTL = 15 * time.Minute
	}
}

// Syncer runs sync requests to a terminal state. Requests for
// different entities are independent and may run concurrently;
// concurrent syncs of the same entity resolve last-write-wins at the
// point level.
type Syncer struct {
	chunker  *chunker.Chunker
	provider embeddings.Provider
	store    vectorstore.Store
	cache    ResultCache
	config   Config
	logger   *zap.Logger
}

// New creates a Syncer.
func New(ch *chunker.Chunker, provider embeddings.Provider, store vectorstore.Store, cache ResultCache, cfg Config, logger *zap.Logger) *Syncer {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		chunker:  ch,
		provider: provider,
		store:    store,
		cache:    cache,
		config:   cfg,
		logger:   logger.Named("syncer"),
	}
}

// fieldChunk is one chunk of one source field, with its global index
// across all fields of the entity.
type fieldChunk struct {
	index int
	field string
	text  string
}

// Sync runs one request through the pipeline to a terminal state. The
// returned Result is always populated; on failure err is non-nil and
// Result carries the error code and the state the pipeline failed in.
func (s *Syncer) Sync(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "syncer.sync")
	defer span.End()

	state := StateReceived
	logger := s.logger.With(
		zap.String("account_id", req.AccountID),
		zap.String("kind", string(req.Kind)),
		zap.Int64("entity_id", req.EntityID),
	)

	if err := s.validate(req); err != nil {
		return s.fail(logger, state, CodeInvalidRequest, err)
	}
	span.SetAttributes(
		attribute.String("sync.kind", string(req.Kind)),
		attribute.Int64("sync.entity_id", req.EntityID),
	)

	// received -> chunked
	chunks := s.chunkFields(req)
	if len(chunks) == 0 {
		err := fmt.Errorf("%w: no chunkable text in any field", ErrValidation)
		return s.fail(logger, state, CodeInvalidRequest, err)
	}
	state = StateChunked
	logger.Debug("chunked", zap.String("state", string(state)), zap.Int("chunks", len(chunks)))

	// chunked -> embedded
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.text
	}
	vectors, err := s.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return s.fail(logger, state, CodeEmbeddingFailed, err)
	}
	if len(vectors) != len(chunks) {
		err := fmt.Errorf("%w: got %d vectors for %d chunks", embeddings.ErrEmbeddingFailed, len(vectors), len(chunks))
		return s.fail(logger, state, CodeEmbeddingFailed, err)
	}
	state = StateEmbedded
	logger.Debug("embedded", zap.String("state", string(state)))

	// embedded -> stored
	points := s.buildPoints(req, chunks, vectors)
	collection := req.Kind.Collection()
	if err := s.store.Delete(ctx, collection, req.AccountID, string(req.Kind), req.EntityID, nil); err != nil {
		return s.fail(logger, state, CodeStoreFailed, err)
	}
	if err := s.store.Upsert(ctx, collection, points); err != nil {
		return s.fail(logger, state, CodeStoreFailed, err)
	}
	state = StateStored
	logger.Debug("stored", zap.String("state", string(state)), zap.Int("points", len(points)))

	// stored -> cache_invalidated; cache faults never abort a
	// successful write, the cache swallows them itself.
	s.cache.InvalidateEntity(ctx, req.AccountID, string(req.Kind), req.EntityID)
	state = StateCacheInvalidated

	state = StateDone
	logger.Info("sync complete",
		zap.String("state", string(state)),
		zap.Int("points_written", len(points)))
	return Result{
		Success:       true,
		PointsWritten: len(points),
		Message:       fmt.Sprintf("synced %d points", len(points)),
	}, nil
}

func (s *Syncer) validate(req Request) error {
	if req.AccountID == "" {
		return fmt.Errorf("%w: account_id is required", ErrValidation)
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, req.Kind)
	}
	if req.EntityID <= 0 {
		return fmt.Errorf("%w: entity_id must be positive, got %d", ErrValidation, req.EntityID)
	}
	return req.Kind.ValidateFields(req.Fields)
}

// chunkFields chunks every non-empty text field in the kind's fixed
// field order, assigning each chunk a global index across fields so
// point IDs stay stable for the same snapshot.
func (s *Syncer) chunkFields(req Request) []fieldChunk {
	var out []fieldChunk
	index := 0
	for _, field := range req.Kind.TextFields() {
		text := req.Fields[field]
		for _, c := range s.chunker.Chunk(text) {
			out = append(out, fieldChunk{index: index, field: field, text: c.Text})
			index++
		}
	}
	return out
}

func (s *Syncer) buildPoints(req Request, chunks []fieldChunk, vectors [][]float32) []vectorstore.Point {
	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		payload := vectorstore.Payload{
			AccountID:   req.AccountID,
			Kind:        string(req.Kind),
			EntityID:    req.EntityID,
			ChunkIndex:  c.index,
			SourceField: c.field,
		}
		if s.config.IncludeSnippets {
			payload.TextSnippet = c.text
		}
		if req.Kind == KindTemporaryRule {
			temporary := true
			payload.IsTemporary = &temporary
		}
		if req.Kind == KindSupportDocument {
			payload.DocumentType = req.Fields[FieldDocumentType]
		}
		points[i] = vectorstore.Point{
			ID:      vectorstore.PointID(req.AccountID, string(req.Kind), req.EntityID, c.index),
			Vector:  vectors[i],
			Payload: payload,
		}
	}
	return points
}

// fail records a terminal failure. The message names the state the
// pipeline was in when it failed so callers can tell how far it got.
func (s *Syncer) fail(logger *zap.Logger, state State, code ErrorCode, err error) (Result, error) {
	logger.Warn("sync failed",
		zap.String("state", string(state)),
		zap.String("error_code", string(code)),
		zap.Error(err))
	return Result{
		Success:   false,
		Message:   fmt.Sprintf("sync failed in state %s: %v", state, err),
		ErrorCode: code,
	}, err
}
