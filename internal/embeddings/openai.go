package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/semsyncd/internal/retry"
)

// DefaultModel is the default embedding model.
const DefaultModel = "text-embedding-3-small"

// DefaultMaxBatchSize is the maximum texts per embedding API call.
const DefaultMaxBatchSize = 100

// DefaultMaxTokens is the per-text token budget before truncation.
const DefaultMaxTokens = 8191

// errCountMismatch indicates the API returned a different number of
// vectors than requested. Retryable: transient upstream issues can
// produce partial responses behind a 200 status.
var errCountMismatch = errors.New("embedding response count mismatch")

// embedAPI is the slice of the OpenAI client the provider uses.
type embedAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIConfig holds configuration for the OpenAI embedding provider.
type OpenAIConfig struct {
	// APIKey authenticates against the embedding API. Required.
	APIKey string `koanf:"api_key"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// BaseURL overrides the API endpoint for OpenAI-compatible
	// gateways. Optional.
	BaseURL string `koanf:"base_url"`

	// MaxTokens is the per-text token budget. Longer texts are
	// deterministically truncated before dispatch.
	MaxTokens int `koanf:"max_tokens"`

	// MaxBatchSize caps texts per API call; larger batches are split.
	MaxBatchSize int `koanf:"max_batch_size"`

	// Timeout bounds each API call.
	Timeout time.Duration `koanf:"timeout"`

	// Retry bounds retries of transient failures.
	Retry retry.Policy `koanf:"retry"`
}

// ApplyDefaults sets default values for unset fields.
func (c *OpenAIConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	c.Retry.ApplyDefaults()
}

// Validate validates the configuration.
func (c OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	if modelDimension(c.Model) == 0 {
		return fmt.Errorf("%w: unknown model %q", ErrInvalidConfig, c.Model)
	}
	return nil
}

// OpenAIProvider implements Provider using the OpenAI embeddings API.
type OpenAIProvider struct {
	client    embedAPI
	config    OpenAIConfig
	dimension int
	logger    *zap.Logger
	metrics   *Metrics
}

// NewOpenAIProvider creates a provider from configuration.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		config:    cfg,
		dimension: modelDimension(cfg.Model),
		logger:    logger.Named("embeddings"),
		metrics:   NewMetrics(logger),
	}, nil
}

// Dimension returns the embedding dimension for the configured model.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op: the provider holds no persistent connections.
func (p *OpenAIProvider) Close() error {
	return nil
}

// EmbedDocuments generates embeddings for texts in input order.
//
// Empty texts yield zero vectors without touching the remote model.
// Texts over the token budget are deterministically truncated and the
// truncation is logged. A remote failure fails the whole batch after
// bounded retries; there is no partial success.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))

	// Preflight: truncate long texts, zero-fill empty ones, and keep
	// only texts that need a remote call.
	remote := make([]string, 0, len(texts))
	remoteIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			vectors[i] = make([]float32, p.dimension)
			continue
		}

		truncated, didTruncate := truncateToTokens(text, p.config.MaxTokens)
		if didTruncate {
			p.logger.Warn("truncated text before embedding",
				zap.Int("index", i),
				zap.Int("estimated_tokens", estimateTokens(text)),
				zap.Int("max_tokens", p.config.MaxTokens))
		}

		remote = append(remote, truncated)
		remoteIdx = append(remoteIdx, i)
	}

	for offset := 0; offset < len(remote); offset += p.config.MaxBatchSize {
		end := min(offset+p.config.MaxBatchSize, len(remote))
		batch := remote[offset:end]

		embedded, err := p.callAPI(ctx, batch)
		if err != nil {
			genErr = err
			return nil, err
		}

		for j, vec := range embedded {
			vectors[remoteIdx[offset+j]] = vec
		}
	}

	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// callAPI dispatches one batch under the retry policy. The returned
// vectors are in batch order.
func (p *OpenAIProvider) callAPI(ctx context.Context, batch []string) ([][]float32, error) {
	var resp openai.EmbeddingResponse

	err := retry.Do(ctx, p.config.Retry, func() error {
		var err error
		resp, err = p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(p.config.Model),
			Input: batch,
		})
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		if len(resp.Data) != len(batch) {
			return fmt.Errorf("%w: got %d vectors for %d texts", errCountMismatch, len(resp.Data), len(batch))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	// The API indexes each vector; order by index rather than trusting
	// response order.
	data := make([]openai.Embedding, len(resp.Data))
	copy(data, resp.Data)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) != p.dimension {
			return nil, fmt.Errorf("%w: model returned %d dimensions, expected %d",
				ErrEmbeddingFailed, len(d.Embedding), p.dimension)
		}
		vectors[i] = d.Embedding
	}

	return vectors, nil
}

// isRetryable determines if an embedding API error should be retried.
func isRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		// Request errors are transport-level failures.
		return true
	}

	return false
}

// Ensure OpenAIProvider implements Provider.
var _ Provider = (*OpenAIProvider)(nil)
