package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/finchat/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/finchat/internal/http/middleware"
	"github.com/wolfman30/finchat/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	Health          *handlers.HealthHandler
	TelegramWebhook *handlers.TelegramWebhookHandler
	WebhookLimiter  *httpmiddleware.RateLimiter
	MetricsHandler  http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthHandler(cfg.Logger, nil)
	}
	r.Get("/health", health.Handle)

	if cfg.TelegramWebhook != nil {
		// a nil limiter lets everything through
		r.With(httpmiddleware.RateLimit(cfg.WebhookLimiter)).Post("/webhooks/telegram", cfg.TelegramWebhook.Handle)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
