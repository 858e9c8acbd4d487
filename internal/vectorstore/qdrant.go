package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/semsyncd/internal/retry"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("semsyncd.vectorstore.qdrant")

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port (6334), not the HTTP REST port.
	Port int `koanf:"port"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`

	// APIKey is the optional API key for authentication.
	APIKey string `koanf:"api_key"`

	// VectorSize is the embedding dimensionality. Must match the
	// embedding provider's output dimension.
	VectorSize uint64 `koanf:"vector_size"`

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int `koanf:"max_message_size"`

	// RequestTimeout bounds each individual store call.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// Retry bounds retries of transient failures.
	Retry retry.Policy `koanf:"retry"`
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.VectorSize == 0 {
		c.VectorSize = 1536
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	c.Retry.ApplyDefaults()
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// ValidateCollectionName validates a collection name against security
// rules. Rejects uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts and temporary unavailability,
// false for invalid arguments, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// indexedFields are the payload fields that get a payload index when a
// collection is created, so filtered search stays fast.
var indexedFields = []struct {
	name string
	typ  qdrant.FieldType
}{
	{FieldAccountID, qdrant.FieldType_FieldTypeKeyword},
	{FieldKind, qdrant.FieldType_FieldTypeKeyword},
	{FieldEntityID, qdrant.FieldType_FieldTypeInteger},
	{FieldIsTemporary, qdrant.FieldType_FieldTypeBool},
	{FieldDocumentType, qdrant.FieldType_FieldTypeKeyword},
}

// QdrantStore is the Store implementation backed by Qdrant's native
// gRPC client. Collections are shared across tenants at the storage
// level and logically partitioned by the mandatory account_id payload
// condition on every operation.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	// collections caches collection existence to avoid repeated checks.
	collections sync.Map
}

// NewQdrantStore creates a QdrantStore and verifies connectivity with
// a health check.
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	store := &QdrantStore{
		client: client,
		config: cfg,
		logger: logger.Named("vectorstore"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check failed: %v", ErrStoreUnavailable, err)
	}

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// call runs op under the store's timeout and retry policy. Permanent
// gRPC failures stop retries immediately; exhaustion and transient
// failures are wrapped in ErrStoreUnavailable.
func (s *QdrantStore) call(ctx context.Context, name string, op func(ctx context.Context) error) error {
	err := retry.Do(ctx, s.config.Retry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()

		err := op(callCtx)
		if err != nil && !IsTransientError(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, name, err)
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance and its
// payload indexes if it does not exist. Idempotent.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		span.RecordError(err)
		return err
	}

	if _, ok := s.collections.Load(name); ok {
		return nil
	}

	var exists bool
	err := s.call(ctx, "collection_exists", func(ctx context.Context) error {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if !exists {
		err = s.call(ctx, "create_collection", func(ctx context.Context) error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     s.config.VectorSize,
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		for _, field := range indexedFields {
			field := field
			err = s.call(ctx, "create_field_index", func(ctx context.Context) error {
				_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
					CollectionName: name,
					FieldName:      field.name,
					FieldType:      field.typ.Enum(),
				})
				return err
			})
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
		}

		s.logger.Info("created collection",
			zap.String("collection", name),
			zap.Uint64("vector_size", s.config.VectorSize))
	}

	s.collections.Store(name, true)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert writes points to the collection, overwriting points with the
// same ID in place.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("point_count", len(points)),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p.Payload.AccountID == "" {
			span.SetStatus(codes.Error, ErrMissingAccount.Error())
			return ErrMissingAccount
		}
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID.String()),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: p.Payload.toQdrant(),
		}
	}

	err := s.call(ctx, "upsert", func(ctx context.Context) error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         qdrantPoints,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Delete removes an entity's points within one tenant. A nil chunkIndex
// removes all chunks of the entity.
func (s *QdrantStore) Delete(ctx context.Context, collection, accountID, kind string, entityID int64, chunkIndex *int) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.String("kind", kind),
		attribute.Int64("entity_id", entityID),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if accountID == "" {
		span.SetStatus(codes.Error, ErrMissingAccount.Error())
		return ErrMissingAccount
	}

	conditions := []*qdrant.Condition{
		keywordCondition(FieldAccountID, accountID),
		keywordCondition(FieldKind, kind),
		integerCondition(FieldEntityID, entityID),
	}
	if chunkIndex != nil {
		conditions = append(conditions, integerCondition(FieldChunkIndex, int64(*chunkIndex)))
	}

	err := s.call(ctx, "delete", func(ctx context.Context) error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{Must: conditions},
				},
			},
			Wait: qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search ranks points by cosine similarity with the account condition
// always present. ScoreThreshold is applied server-side as a hard
// cutoff.
func (s *QdrantStore) Search(ctx context.Context, params SearchParams) ([]SearchHit, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", params.Collection),
		attribute.Int("limit", params.Limit),
	)

	if err := ValidateCollectionName(params.Collection); err != nil {
		return nil, err
	}
	if params.AccountID == "" {
		span.SetStatus(codes.Error, ErrMissingAccount.Error())
		return nil, ErrMissingAccount
	}
	if params.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", params.Limit)
	}

	filter, err := buildFilter(params.AccountID, params.Filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	query := &qdrant.QueryPoints{
		CollectionName: params.Collection,
		Query:          qdrant.NewQuery(params.Vector...),
		Limit:          qdrant.PtrOf(uint64(params.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         filter,
	}
	if params.ScoreThreshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(params.ScoreThreshold)
	}

	var scored []*qdrant.ScoredPoint
	err = s.call(ctx, "search", func(ctx context.Context) error {
		res, err := s.client.Query(ctx, query)
		if err != nil {
			return err
		}
		scored = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits := make([]SearchHit, len(scored))
	for i, point := range scored {
		hits[i] = SearchHit{
			Payload: payloadFromQdrant(point.Payload),
			Score:   point.Score,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// buildFilter constructs the Qdrant filter with the mandatory account
// condition first, then any extra equality conditions. The account
// condition cannot be overridden by the extra filter.
func buildFilter(accountID string, extra map[string]any) (*qdrant.Filter, error) {
	conditions := []*qdrant.Condition{
		keywordCondition(FieldAccountID, accountID),
	}

	for key, value := range extra {
		if key == FieldAccountID {
			continue
		}
		switch v := value.(type) {
		case string:
			conditions = append(conditions, keywordCondition(key, v))
		case bool:
			conditions = append(conditions, boolCondition(key, v))
		case int:
			conditions = append(conditions, integerCondition(key, int64(v)))
		case int64:
			conditions = append(conditions, integerCondition(key, v))
		default:
			return nil, fmt.Errorf("unsupported filter value for %q: %T", key, value)
		}
	}

	return &qdrant.Filter{Must: conditions}, nil
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func integerCondition(key string, value int64) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Integer{Integer: value},
				},
			},
		},
	}
}

func boolCondition(key string, value bool) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Boolean{Boolean: value},
				},
			},
		},
	}
}

// Ensure QdrantStore implements Store interface.
var _ Store = (*QdrantStore)(nil)
