// Package config provides configuration loading for semsyncd.
//
// Configuration is read once at startup and injected into components;
// nothing reads the environment after Load returns. Precedence,
// highest to lowest: environment variables, YAML config file,
// hardcoded defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/semsyncd/internal/cache"
	"github.com/fyrsmithlabs/semsyncd/internal/chunker"
	"github.com/fyrsmithlabs/semsyncd/internal/embeddings"
	"github.com/fyrsmithlabs/semsyncd/internal/logging"
	"github.com/fyrsmithlabs/semsyncd/internal/retry"
	"github.com/fyrsmithlabs/semsyncd/internal/vectorstore"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Port the HTTP server listens on.
	Port int `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// DefaultAccountID is an optional fallback tenant applied to
	// requests that carry no account_id of their own. Empty means no
	// fallback: such requests are rejected.
	DefaultAccountID string `koanf:"default_account_id"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ServerConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Validate validates the configuration.
func (c ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", c.Port)
	}
	return nil
}

// SyncConfig holds orchestrator settings.
type SyncConfig struct {
	// IncludeSnippets persists chunk text in point payloads for
	// downstream snippet display.
	IncludeSnippets bool `koanf:"include_snippets"`

	// ScoreThreshold is the default search cutoff applied when a
	// request does not set one. Zero disables the cutoff.
	ScoreThreshold float32 `koanf:"score_threshold"`
}

// Config is the complete process configuration, assembled once at
// startup and passed by injection. Sections map to environment
// variables as SECTION_FIELD_NAME (SERVER_PORT, QDRANT_HOST,
// EMBEDDING_API_KEY, CACHE_ENTITY_TTL, ...).
type Config struct {
	Server    ServerConfig             `koanf:"server"`
	Log       logging.Config           `koanf:"log"`
	Qdrant    vectorstore.QdrantConfig `koanf:"qdrant"`
	Embedding embeddings.OpenAIConfig  `koanf:"embedding"`
	Redis     cache.RedisConfig        `koanf:"redis"`
	Cache     cache.TTLConfig          `koanf:"cache"`
	Chunk     chunker.Config           `koanf:"chunk"`
	Retry     retry.Policy             `koanf:"retry"`
	Sync      SyncConfig               `koanf:"sync"`
}

// Load reads configuration from the optional YAML file at configPath,
// then overrides with environment variables, applies defaults, and
// validates. An empty configPath skips the file entirely.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		info, err := os.Stat(configPath)
		if err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
		}
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	// SECTION_FIELD_NAME -> section.field_name: split on the first
	// underscore only, so EMBEDDING_API_KEY maps to embedding.api_key.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field. The top-level retry policy
// is shared with the qdrant and embedding sections unless those set
// their own.
func (c *Config) ApplyDefaults() {
	c.Retry.ApplyDefaults()
	if c.Qdrant.Retry == (retry.Policy{}) {
		c.Qdrant.Retry = c.Retry
	}
	if c.Embedding.Retry == (retry.Policy{}) {
		c.Embedding.Retry = c.Retry
	}
	c.Server.ApplyDefaults()
	c.Log.ApplyDefaults()
	c.Qdrant.ApplyDefaults()
	c.Embedding.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Cache.ApplyDefaults()
	c.Chunk.ApplyDefaults()
}

// Validate validates every section.
func (c Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Qdrant.Validate(); err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := c.Chunk.Validate(); err != nil {
		return fmt.Errorf("chunk: %w", err)
	}
	return nil
}
