// Package server exposes batch discovery over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
)

// Runner runs one discovery batch.
type Runner interface {
	Catalog() string
	Run(ctx context.Context, limit int) artifact.BatchReport
}

// Server routes batch triggers to per-catalog runners.
type Server struct {
	echo         *echo.Echo
	logger       *slog.Logger
	runners      map[string]Runner
	busy         map[string]*sync.Mutex
	defaultLimit int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithDefaultLimit sets the batch size used when a request has no limit.
func WithDefaultLimit(n int) Option {
	return func(s *Server) { s.defaultLimit = n }
}

// New creates a Server for the given runners, keyed by their catalog.
func New(runners []Runner, opts ...Option) *Server {
	s := &Server{
		echo:         echo.New(),
		logger:       slog.Default(),
		runners:      make(map[string]Runner, len(runners)),
		busy:         make(map[string]*sync.Mutex, len(runners)),
		defaultLimit: 50,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, r := range runners {
		s.runners[r.Catalog()] = r
		s.busy[r.Catalog()] = &sync.Mutex{}
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.GET("/healthz", s.health)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/v1/discover/:catalog", s.discover)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "listening", "addr", addr)
		errc <- s.echo.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	s.logger.InfoContext(ctx, "shutting down")
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) health(c echo.Context) error {
	catalogs := make([]string, 0, len(s.runners))
	for name := range s.runners {
		catalogs = append(catalogs, name)
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "catalogs": catalogs})
}

func (s *Server) discover(c echo.Context) error {
	name := c.Param("catalog")
	runner, ok := s.runners[name]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown catalog "+strconv.Quote(name))
	}

	limit := s.defaultLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	mu := s.busy[name]
	if !mu.TryLock() {
		return echo.NewHTTPError(http.StatusConflict, "a batch for "+name+" is already running")
	}
	defer mu.Unlock()

	ctx := c.Request().Context()
	s.logger.InfoContext(ctx, "batch triggered", "catalog", name, "limit", limit, "remote", c.RealIP())
	report := runner.Run(ctx, limit)

	status := http.StatusOK
	if !report.Success {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, report)
}
