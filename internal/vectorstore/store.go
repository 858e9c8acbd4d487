// Package vectorstore persists tenant-scoped vector points in Qdrant.
//
// Every read and write carries a mandatory account_id condition. There
// is no operation that can return or mutate data across tenants; calls
// without an account fail closed with ErrMissingAccount.
package vectorstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Sentinel errors for vector store operations.
var (
	// ErrStoreUnavailable indicates a connectivity or persistence
	// failure. Fatal to the current sync/search call.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrMissingAccount is returned when an operation is attempted
	// without an account id. Fail closed: no unfiltered reads or writes.
	ErrMissingAccount = errors.New("account id required")
)

// Point is the persisted unit: a vector plus its tenant-scoped payload.
// The ID is derived deterministically from the payload identity, so
// re-syncing the same entity overwrites in place.
type Point struct {
	ID      uuid.UUID
	Vector  []float32
	Payload Payload
}

// SearchHit is one ranked search result.
type SearchHit struct {
	Payload Payload
	Score   float32
}

// SearchParams parameterizes a tenant-scoped similarity search.
type SearchParams struct {
	// AccountID is the tenant. Required.
	AccountID string

	// Collection is the logical collection to search.
	Collection string

	// Vector is the query embedding.
	Vector []float32

	// Limit caps the number of results.
	Limit int

	// ScoreThreshold is a hard cutoff: results scoring below it are
	// excluded, not merely ranked low. Zero disables the cutoff.
	ScoreThreshold float32

	// Filter holds extra equality conditions on payload fields
	// (e.g. kind, is_temporary, document_type).
	Filter map[string]any
}

// Store is the tenant-partitioned vector index.
type Store interface {
	// EnsureCollection creates the collection and its payload indexes
	// if absent. Idempotent: a no-op when the collection exists.
	EnsureCollection(ctx context.Context, name string) error

	// Upsert writes points, overwriting any point with the same ID.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Delete removes an entity's points within one tenant. A nil
	// chunkIndex removes all chunks of the entity.
	Delete(ctx context.Context, collection, accountID, kind string, entityID int64, chunkIndex *int) error

	// Search ranks points by cosine similarity under a mandatory
	// account filter.
	Search(ctx context.Context, params SearchParams) ([]SearchHit, error)

	// Close releases the underlying connection.
	Close() error
}
