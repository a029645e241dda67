// Package server exposes the repricer's HTTP surface: the Walmart webhook
// intake, health and stats, management endpoints, and the WebSocket feed.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/l3acucm/urepricer/internal/domain"
	"github.com/l3acucm/urepricer/internal/server/handler"
	"github.com/l3acucm/urepricer/internal/server/middleware"
	"github.com/l3acucm/urepricer/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// APIKey gates the management endpoints (Bearer / X-API-Key). Empty
	// disables the check.
	APIKey string

	// WebhookSecret gates the webhook endpoints (X-Webhook-Secret). Empty
	// disables the check.
	WebhookSecret string

	// RateLimit bounds webhook calls per client IP per window. Zero disables
	// rate limiting.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Webhook *handler.WebhookHandler
	Stats   *handler.StatsHandler
	Prices  *handler.PricesHandler
	Pricing *handler.PricingHandler
}

// Server is the HTTP + WebSocket API server for the repricer.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. Webhook endpoints
// get the shared-secret check and rate limiter; management endpoints get
// API-key auth; health, stats, and the WebSocket feed stay open. limiter may
// be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Webhook intake: shared secret, then rate limit.
	hook := func(h http.HandlerFunc) http.Handler {
		var wrapped http.Handler = h
		if limiter != nil && cfg.RateLimit > 0 {
			window := cfg.RateLimitWindow
			if window <= 0 {
				window = time.Minute
			}
			wrapped = middleware.RateLimit(limiter, cfg.RateLimit, window)(wrapped)
		}
		return middleware.WebhookSecret(cfg.WebhookSecret)(wrapped)
	}
	mux.Handle("POST /walmart/webhook", hook(handlers.Webhook.Receive))
	mux.Handle("POST /walmart/webhook/batch", hook(handlers.Webhook.ReceiveBatch))

	// Open endpoints.
	mux.HandleFunc("GET /health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /stats", handlers.Stats.Get)

	// Management endpoints behind API-key auth.
	managed := func(h http.HandlerFunc) http.Handler {
		return middleware.Auth(cfg.APIKey)(h)
	}
	mux.Handle("POST /stats/reset", managed(handlers.Stats.Reset))
	mux.Handle("GET /prices/{seller_id}", managed(handlers.Prices.List))
	mux.Handle("POST /pricing/reset", managed(handlers.Pricing.Reset))
	mux.Handle("POST /pricing/resume", managed(handlers.Pricing.Resume))

	// WebSocket live feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Outer chain: request logging, then CORS.
	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
