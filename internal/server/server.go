// Package server provides the HTTP API for epimap.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ppiankov/epimap/internal/logging"
	"github.com/ppiankov/epimap/internal/model"
	"github.com/ppiankov/epimap/internal/pipeline"
)

// Server provides HTTP endpoints for tagging and graph inspection
type Server struct {
	echo     *echo.Echo
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
	config   model.ServerConfig
	gatherer prometheus.Gatherer
	limiter  *clientLimiterStore
	version  string
}

// Option configures a Server
type Option func(*Server)

// WithGatherer exposes the given registry at /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithVersion sets the version reported by /health
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a new HTTP server
func NewServer(p *pipeline.Pipeline, cfg model.ServerConfig, logger *zap.Logger, opts ...Option) (*Server, error) {
	if p == nil {
		return nil, errors.New("pipeline is required")
	}

	s := &Server{
		pipeline: p,
		logger:   logging.OrNop(logger),
		config:   cfg,
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug
	// Clients may not pick their own rate limit bucket through forwarding headers
	if cfg.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if cfg.RateLimitRPS > 0 {
		s.limiter = newClientLimiterStore(cfg.RateLimitRPS, cfg.RateLimitBurst, visitorIdleTTL)
		e.Use(middleware.RateLimiterWithConfig(s.rateLimitConfig()))
	}

	s.echo = e
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.echo.Group("/api")
	api.POST("/tag/text", s.handleTagText)
	api.GET("/epistemologies", s.handleEpistemologies)
	api.GET("/categories", s.handleCategories)
	api.GET("/graph", s.handleGraph)
	api.GET("/stats", s.handleStats)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let echo write the error response so the logged status is final
				c.Error(err)
			}

			s.logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return nil
		}
	}
}

// rateLimitConfig limits each client IP; probes and scrapes are never throttled
func (s *Server) rateLimitConfig() middleware.RateLimiterConfig {
	return middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			switch c.Path() {
			case "/health", "/metrics":
				return true
			}
			return false
		},
		Store: s.limiter,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "client not identified")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	}
}

// Handler exposes the router, mainly for httptest
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the bound address once the server is listening
func (s *Server) Addr() net.Addr {
	return s.echo.ListenerAddr()
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down within the configured timeout
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
