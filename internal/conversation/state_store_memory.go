package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStateStore keeps state in process memory. Locks are refcounted so
// idle conversations do not leak a mutex each.
type MemoryStateStore struct {
	cfg storeConfig

	mu     sync.Mutex
	states map[string]*State
	locks  map[string]*keyedLock
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

var _ StateStore = (*MemoryStateStore)(nil)

func NewMemoryStateStore(opts ...StoreOption) *MemoryStateStore {
	return &MemoryStateStore{
		cfg:    newStoreConfig(opts),
		states: make(map[string]*State),
		locks:  make(map[string]*keyedLock),
	}
}

func (s *MemoryStateStore) Get(ctx context.Context, id string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	if !ok {
		return NewState(id), nil
	}
	if s.cfg.expired(state) {
		delete(s.states, id)
		return NewState(id), nil
	}
	return state.Clone(), nil
}

func (s *MemoryStateStore) Save(ctx context.Context, state *State) error {
	if state == nil || state.ConversationID == "" {
		return fmt.Errorf("conversation: cannot save state without id")
	}
	state.LastUpdated = s.cfg.now().UTC()
	s.mu.Lock()
	s.states[state.ConversationID] = state.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStateStore) Clear(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.states, id)
	s.mu.Unlock()
	return nil
}

// EvictStale skips conversations whose lock is currently held.
func (s *MemoryStateStore) EvictStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.cfg.now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, state := range s.states {
		if _, busy := s.locks[id]; busy {
			continue
		}
		if state.LastUpdated.Before(cutoff) {
			delete(s.states, id)
			evicted++
		}
	}
	return evicted, nil
}

func (s *MemoryStateStore) Lock(ctx context.Context, id string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &keyedLock{sem: make(chan struct{}, 1)}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	timer := time.NewTimer(s.cfg.lockTimeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		s.release(id, l)
		return nil, ctx.Err()
	case <-timer.C:
		s.release(id, l)
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, id)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			s.release(id, l)
		})
	}, nil
}

func (s *MemoryStateStore) release(id string, l *keyedLock) {
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, id)
	}
	s.mu.Unlock()
}

// Len reports how many conversations are stored.
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// RunJanitor evicts idle conversations every interval until ctx is done.
func (s *MemoryStateStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.cfg.idleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.EvictStale(ctx, s.cfg.idleTimeout)
			if err != nil {
				s.cfg.logger.Warn("conversation janitor failed", "error", err)
				continue
			}
			if n > 0 {
				s.cfg.logger.Debug("conversation janitor evicted idle states", "evicted", n)
			}
		}
	}
}
