// Package embeddings converts text into fixed-length vectors via a
// remote embedding model.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure after
	// exhausting bounded retries. The last underlying cause is wrapped.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers.
//
// Guarantees: output order matches input order, every vector has
// Dimension() elements, and empty input text yields a zero vector
// without a remote call.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts in input
	// order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// modelDimension returns the vector dimension for a known model name,
// or 0 for unknown models.
func modelDimension(model string) int {
	switch model {
	case "text-embedding-3-small":
		return 1536
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-ada-002":
		return 1536
	default:
		return 0
	}
}
