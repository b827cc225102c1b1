package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/finchat/internal/config"
	"github.com/wolfman30/finchat/internal/conversation"
	"github.com/wolfman30/finchat/internal/events"
	"github.com/wolfman30/finchat/internal/finance"
	"github.com/wolfman30/finchat/pkg/logging"
)

const (
	StateBackendMemory = "memory"
	StateBackendRedis  = "redis"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildDatabasePool connects to Postgres. It returns nil without error when
// the memory store is requested or no DATABASE_URL is set.
func BuildDatabasePool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryStore || strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("postgres disabled; finance data lives in memory only")
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// BuildFinanceStore picks Postgres when a pool is available.
func BuildFinanceStore(pool *pgxpool.Pool) finance.Store {
	if pool == nil {
		return finance.NewMemoryStore()
	}
	return finance.NewPgStore(pool)
}

// BuildDeduper returns the webhook redelivery filter matching the finance backend.
func BuildDeduper(pool *pgxpool.Pool) events.Deduper {
	if pool == nil {
		return events.NewMemoryProcessedStore()
	}
	return events.NewProcessedStore(pool)
}

// BuildStateStore selects the conversation state backend. Redis is used only
// when requested and reachable; otherwise the in-process store is returned.
func BuildStateStore(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (conversation.StateStore, string) {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []conversation.StoreOption{conversation.WithStoreLogger(logger)}
	if cfg != nil {
		opts = append(opts,
			conversation.WithIdleTimeout(cfg.ConversationIdleTimeout),
			conversation.WithLockTimeout(cfg.ConversationLockTimeout),
		)
	}
	if cfg != nil && cfg.StateBackend == StateBackendRedis {
		if redisClient != nil {
			return conversation.NewRedisStateStore(redisClient, opts...), StateBackendRedis
		}
		logger.Warn("redis state backend requested but redis is unavailable; falling back to memory")
	}
	return conversation.NewMemoryStateStore(opts...), StateBackendMemory
}
