// Semsyncd is a multi-tenant semantic sync daemon.
//
// It receives entity snapshots from a record-management system, chunks
// and embeds their text fields, stores the resulting vectors in Qdrant
// partitioned by tenant, and serves cached semantic search over them.
//
// Configuration is loaded from environment variables with an optional
// YAML file. See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	EMBEDDING_API_KEY=sk-... semsyncd
//
//	# Configure via environment
//	SERVER_PORT=9090 QDRANT_HOST=qdrant.internal semsyncd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/semsyncd/internal/cache"
	"github.com/fyrsmithlabs/semsyncd/internal/chunker"
	"github.com/fyrsmithlabs/semsyncd/internal/config"
	"github.com/fyrsmithlabs/semsyncd/internal/embeddings"
	"github.com/fyrsmithlabs/semsyncd/internal/logging"
	"github.com/fyrsmithlabs/semsyncd/internal/server"
	"github.com/fyrsmithlabs/semsyncd/internal/syncer"
	"github.com/fyrsmithlabs/semsyncd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("semsyncd %s (commit %s, built %s)\n", version, gitCommit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

// run initializes all dependencies and blocks until the context is
// cancelled: config, logger, Redis, Qdrant, the embedding provider,
// the orchestrator, and finally the HTTP server.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting semsyncd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	redisClient, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	store, err := vectorstore.NewQdrantStore(cfg.Qdrant, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer store.Close()

	for _, collection := range []string{syncer.CollectionRules, syncer.CollectionDocuments} {
		if err := store.EnsureCollection(ctx, collection); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", collection, err)
		}
	}

	provider, err := embeddings.NewOpenAIProvider(cfg.Embedding, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	defer provider.Close()

	ch, err := chunker.New(cfg.Chunk)
	if err != nil {
		return fmt.Errorf("failed to initialize chunker: %w", err)
	}

	resultCache := cache.New(redisClient, cfg.Cache, logger)
	orchestrator := syncer.New(ch, provider, store, resultCache, syncer.Config{
		SearchTTL:       cfg.Cache.Search,
		IncludeSnippets: cfg.Sync.IncludeSnippets,
	}, logger)

	srv, err := server.New(orchestrator, logger, server.Config{
		Port:                  cfg.Server.Port,
		DefaultAccountID:      cfg.Server.DefaultAccountID,
		DefaultScoreThreshold: cfg.Sync.ScoreThreshold,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	logger.Info("Dependencies initialized",
		zap.String("qdrant", fmt.Sprintf("%s:%d", cfg.Qdrant.Host, cfg.Qdrant.Port)),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
