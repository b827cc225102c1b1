package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	stateKeyPrefix = "finchat:conversation:"
	lockKeyPrefix  = "finchat:lock:conversation:"
)

// releaseLockScript deletes the lock only if it still holds our token.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStateStore keeps state as JSON with a TTL equal to the idle timeout.
type RedisStateStore struct {
	redis *redis.Client
	cfg   storeConfig
}

var _ StateStore = (*RedisStateStore)(nil)

func NewRedisStateStore(client *redis.Client, opts ...StoreOption) *RedisStateStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	cfg := newStoreConfig(opts)
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer("finchat.internal.conversation.state")
	}
	return &RedisStateStore{redis: client, cfg: cfg}
}

func stateKey(id string) string { return stateKeyPrefix + id }
func lockKey(id string) string  { return lockKeyPrefix + id }

func (s *RedisStateStore) span(ctx context.Context, name, id string) (context.Context, trace.Span) {
	return s.cfg.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("conversation.id", id)))
}

func (s *RedisStateStore) Get(ctx context.Context, id string) (*State, error) {
	ctx, span := s.span(ctx, "conversation.state.get", id)
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return NewState(id), nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode state: %w", err)
	}
	if s.cfg.expired(&state) {
		return NewState(id), nil
	}
	span.SetAttributes(attribute.String("conversation.phase", string(state.Phase)))
	return &state, nil
}

func (s *RedisStateStore) Save(ctx context.Context, state *State) error {
	if state == nil || state.ConversationID == "" {
		return fmt.Errorf("conversation: cannot save state without id")
	}
	ctx, span := s.span(ctx, "conversation.state.save", state.ConversationID)
	defer span.End()

	state.LastUpdated = s.cfg.now().UTC()
	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(state.ConversationID), data, s.cfg.idleTimeout).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Clear(ctx context.Context, id string) error {
	ctx, span := s.span(ctx, "conversation.state.clear", id)
	defer span.End()

	if err := s.redis.Del(ctx, stateKey(id)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to clear state: %w", err)
	}
	return nil
}

// EvictStale scans stored states and deletes those idle longer than maxAge.
// Keys normally expire through their TTL; this catches states written with a
// longer idle timeout than the current one.
func (s *RedisStateStore) EvictStale(ctx context.Context, maxAge time.Duration) (int, error) {
	ctx, span := s.cfg.tracer.Start(ctx, "conversation.state.evict")
	defer span.End()

	cutoff := s.cfg.now().Add(-maxAge)
	evicted := 0
	iter := s.redis.Scan(ctx, 0, stateKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.redis.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var state State
		if err := json.Unmarshal(data, &state); err != nil {
			s.cfg.logger.Warn("conversation: dropping undecodable state", "key", key, "error", err)
		} else if !state.LastUpdated.Before(cutoff) {
			continue
		}
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			span.RecordError(err)
			return evicted, fmt.Errorf("conversation: failed to evict %s: %w", strings.TrimPrefix(key, stateKeyPrefix), err)
		}
		evicted++
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return evicted, fmt.Errorf("conversation: scan states: %w", err)
	}
	span.SetAttributes(attribute.Int("conversation.evicted", evicted))
	return evicted, nil
}

// Lock takes a SETNX lock holding a random token. The lock expires on its own
// if the holder dies; release only deletes it while the token still matches.
// Waiters poll, so the order in which they acquire it is best effort.
func (s *RedisStateStore) Lock(ctx context.Context, id string) (func(), error) {
	ctx, span := s.span(ctx, "conversation.state.lock", id)
	defer span.End()

	key := lockKey(id)
	token := uuid.NewString()
	deadline := time.NewTimer(s.cfg.lockTimeout)
	defer deadline.Stop()

	for {
		ok, err := s.redis.SetNX(ctx, key, token, s.cfg.lockTTL).Result()
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: failed to acquire lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			span.RecordError(ErrLockTimeout)
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, id)
		case <-time.After(lockRetryInterval):
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseLockScript.Run(releaseCtx, s.redis, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			s.cfg.logger.Warn("conversation: failed to release lock", "conversation_id", id, "error", err)
		}
	}, nil
}
