package conversation

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/finchat/pkg/logging"
)

// StateStore persists conversation state between messages.
type StateStore interface {
	// Get returns the state for id, or a fresh Idle state when none is
	// stored or the stored one has expired.
	Get(ctx context.Context, id string) (*State, error)
	// Save stamps LastUpdated and persists the state.
	Save(ctx context.Context, state *State) error
	Clear(ctx context.Context, id string) error
	// EvictStale removes states idle for longer than maxAge.
	EvictStale(ctx context.Context, maxAge time.Duration) (int, error)
	// Lock serializes work on one conversation. The returned func releases it.
	Lock(ctx context.Context, id string) (func(), error)
}

// ErrLockTimeout is returned when a conversation lock cannot be acquired in time.
var ErrLockTimeout = errors.New("conversation: lock timeout")

const (
	defaultIdleTimeout = 30 * time.Minute
	defaultLockTimeout = 30 * time.Second
	defaultLockTTL     = time.Minute
	lockRetryInterval  = 25 * time.Millisecond
)

type storeConfig struct {
	idleTimeout time.Duration
	lockTimeout time.Duration
	lockTTL     time.Duration
	now         func() time.Time
	logger      *logging.Logger
	tracer      trace.Tracer
}

// StoreOption configures a StateStore implementation.
type StoreOption func(*storeConfig)

// WithIdleTimeout sets how long a state survives without activity. Zero disables expiry.
func WithIdleTimeout(d time.Duration) StoreOption {
	return func(cfg *storeConfig) {
		if d >= 0 {
			cfg.idleTimeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(cfg *storeConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithLockTimeout bounds how long Lock waits.
func WithLockTimeout(d time.Duration) StoreOption {
	return func(cfg *storeConfig) {
		if d > 0 {
			cfg.lockTimeout = d
		}
	}
}

// WithStoreLogger sets the store logger.
func WithStoreLogger(logger *logging.Logger) StoreOption {
	return func(cfg *storeConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithTracer sets the tracer used by the Redis store.
func WithTracer(tracer trace.Tracer) StoreOption {
	return func(cfg *storeConfig) {
		if tracer != nil {
			cfg.tracer = tracer
		}
	}
}

func newStoreConfig(opts []StoreOption) storeConfig {
	cfg := storeConfig{
		idleTimeout: defaultIdleTimeout,
		lockTimeout: defaultLockTimeout,
		lockTTL:     defaultLockTTL,
		now:         time.Now,
		logger:      logging.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.lockTTL < cfg.lockTimeout {
		cfg.lockTTL = cfg.lockTimeout
	}
	return cfg
}

func (c storeConfig) expired(state *State) bool {
	if c.idleTimeout <= 0 || state.LastUpdated.IsZero() {
		return false
	}
	return c.now().Sub(state.LastUpdated) > c.idleTimeout
}
