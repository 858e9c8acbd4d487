// Package server provides the HTTP API for semsyncd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/semsyncd/internal/syncer"
)

// SyncService is the orchestrator surface the server exposes.
type SyncService interface {
	Sync(ctx context.Context, req syncer.Request) (syncer.Result, error)
	Search(ctx context.Context, req syncer.SearchRequest) ([]syncer.SearchResult, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// DefaultAccountID is applied to requests that carry no
	// account_id. Empty means no fallback.
	DefaultAccountID string

	// DefaultScoreThreshold is applied to search requests that set no
	// threshold of their own. Zero means no cutoff.
	DefaultScoreThreshold float32
}

// Server provides the HTTP endpoints for sync and search.
type Server struct {
	echo    *echo.Echo
	service SyncService
	logger  *zap.Logger
	config  Config
}

// New creates a new HTTP server.
func New(service SyncService, logger *zap.Logger, cfg Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("sync service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/sync", s.handleSync)
	v1.POST("/search", s.handleSearch)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// SearchResponse is the response body for POST /v1/search.
type SearchResponse struct {
	Results []syncer.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

// ErrorResponse is the body returned for failed search requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleSync runs one sync request to a terminal state and reports
// the outcome. The response body always carries the structured result;
// the status code distinguishes caller errors from downstream ones.
func (s *Server) handleSync(c echo.Context) error {
	var req syncer.Request
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid sync request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, syncer.Result{
			Success:   false,
			Message:   "invalid request body",
			ErrorCode: syncer.CodeInvalidRequest,
		})
	}
	if req.AccountID == "" {
		req.AccountID = s.config.DefaultAccountID
	}

	result, err := s.service.Sync(c.Request().Context(), req)
	if err != nil {
		return c.JSON(statusForCode(result.ErrorCode), result)
	}
	return c.JSON(http.StatusOK, result)
}

// handleSearch serves the cached semantic search read path.
func (s *Server) handleSearch(c echo.Context) error {
	var req syncer.SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if req.AccountID == "" {
		req.AccountID = s.config.DefaultAccountID
	}
	if req.ScoreThreshold == 0 {
		req.ScoreThreshold = s.config.DefaultScoreThreshold
	}

	results, err := s.service.Search(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, syncer.ErrValidation) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		}
		s.logger.Error("search failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "search temporarily unavailable"})
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}

// statusForCode maps a sync error code to an HTTP status: caller
// errors are 400, downstream dependency failures are 502.
func statusForCode(code syncer.ErrorCode) int {
	switch code {
	case syncer.CodeInvalidRequest:
		return http.StatusBadRequest
	case syncer.CodeEmbeddingFailed, syncer.CodeStoreFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
