package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/finchat/internal/api/router"
	"github.com/wolfman30/finchat/internal/app/bootstrap"
	appconfig "github.com/wolfman30/finchat/internal/config"
	"github.com/wolfman30/finchat/internal/conversation"
	"github.com/wolfman30/finchat/internal/events"
	"github.com/wolfman30/finchat/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/finchat/internal/http/middleware"
	"github.com/wolfman30/finchat/internal/messaging/telegram"
	observemetrics "github.com/wolfman30/finchat/internal/observability/metrics"
	"github.com/wolfman30/finchat/pkg/logging"
)

const processedRetention = 48 * time.Hour

func main() {
	// a missing .env is normal outside local development
	envErr := godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting finchat API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"dotenv", envErr == nil,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer a.close()

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	background := a.startBackground(bgCtx)

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancelBackground()
	<-background

	logger.Info("server stopped")
}

type purger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// app is the wired server plus the loops and resources tied to its lifetime.
type app struct {
	handler  http.Handler
	logger   *logging.Logger
	states   conversation.StateStore
	deduper  events.Deduper
	limiters []*httpmiddleware.RateLimiter
	janitor  time.Duration
	closers  []func()
	timeNow  func() time.Time
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	a := &app{logger: logger, janitor: cfg.ConversationJanitorEvery, timeNow: time.Now}

	pool, err := bootstrap.BuildDatabasePool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}

	states, backend := bootstrap.BuildStateStore(cfg, redisClient, logger)
	a.states = states
	logger.Info("conversation state store ready", "backend", backend)

	llm, model, err := bootstrap.BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	metricsHandler, metrics := setupMetrics()

	orchestrator, err := bootstrap.BuildOrchestrator(cfg, bootstrap.ConversationDeps{
		States:   states,
		Finance:  bootstrap.BuildFinanceStore(pool),
		LLM:      llm,
		Model:    model,
		Recorder: metrics,
	}, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	tg, err := telegram.New(telegram.Config{
		BaseURL:       cfg.TelegramBaseURL,
		Token:         cfg.TelegramBotToken,
		WebhookSecret: cfg.TelegramWebhookSecret,
		MaxRetries:    cfg.TelegramMaxRetries,
		Backoff:       cfg.TelegramRetryBackoff,
		Logger:        logger,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	if cfg.TelegramWebhookSecret == "" {
		logger.Warn("TELEGRAM_WEBHOOK_SECRET not set; webhook requests are not authenticated")
	}

	deduper := bootstrap.BuildDeduper(pool)
	a.deduper = deduper

	checks := map[string]handlers.HealthCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var chatLimiter, webhookLimiter *httpmiddleware.RateLimiter
	if cfg.ChatRatePerMinute > 0 {
		chatLimiter = httpmiddleware.PerMinute(cfg.ChatRatePerMinute, cfg.ChatRateBurst)
		a.limiters = append(a.limiters, chatLimiter)
	}
	if cfg.WebhookRatePerSecond > 0 {
		webhookLimiter = httpmiddleware.NewRateLimiter(cfg.WebhookRatePerSecond, int(cfg.WebhookRatePerSecond*2))
		a.limiters = append(a.limiters, webhookLimiter)
	}

	a.handler = router.New(&router.Config{
		Logger: logger,
		Health: handlers.NewHealthHandler(logger, checks),
		TelegramWebhook: handlers.NewTelegramWebhookHandler(handlers.TelegramWebhookConfig{
			Telegram:       tg,
			Orchestrator:   orchestrator,
			Processed:      deduper,
			Logger:         logger,
			Metrics:        metrics,
			ChatLimiter:    chatLimiter,
			ProcessTimeout: cfg.ClassifierTimeout + cfg.WriteTimeout + 15*time.Second,
		}),
		WebhookLimiter: webhookLimiter,
		MetricsHandler: metricsHandler,
	})
	return a, nil
}

// startBackground runs the housekeeping loops until ctx is cancelled. The
// returned channel closes once every loop has exited.
func (a *app) startBackground(ctx context.Context) <-chan struct{} {
	interval := a.janitor
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	var wg sync.WaitGroup
	if memory, ok := a.states.(*conversation.MemoryStateStore); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			memory.RunJanitor(ctx, interval)
		}()
	}
	for _, limiter := range a.limiters {
		wg.Add(1)
		go func(rl *httpmiddleware.RateLimiter) {
			defer wg.Done()
			rl.Run(ctx, interval, 10*time.Minute)
		}(limiter)
	}
	if p, ok := a.deduper.(purger); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.purgeProcessed(ctx, p, interval)
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (a *app) purgeProcessed(ctx context.Context, p purger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx, a.timeNow().Add(-processedRetention))
			if err != nil {
				a.logger.Warn("processed event purge failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Info("purged processed events", "count", n)
			}
		}
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func setupMetrics() (http.Handler, *observemetrics.ConversationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observemetrics.NewConversationMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics
}
