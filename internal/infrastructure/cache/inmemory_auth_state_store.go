package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sellerlink/backend/internal/domain/integration"
)

// InMemoryAuthStateStore implements AuthStateStore using an in-memory map.
// This is suitable for single-instance deployments and testing.
type InMemoryAuthStateStore struct {
	mu        sync.Mutex
	states    map[string]*integration.AuthorizationState
	ttl       time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryAuthStateStore creates a new in-memory auth state store.
// It starts a background goroutine to clean up expired states.
func NewInMemoryAuthStateStore(ttl time.Duration) *InMemoryAuthStateStore {
	if ttl <= 0 {
		ttl = integration.DefaultStateTTL
	}
	store := &InMemoryAuthStateStore{
		states:   make(map[string]*integration.AuthorizationState),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

// Create stores a new state
func (s *InMemoryAuthStateStore) Create(ctx context.Context, codeVerifier, returnTo string) (*integration.AuthorizationState, error) {
	state, err := integration.NewAuthorizationState(codeVerifier, returnTo, s.now(), s.ttl)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *state
	s.states[state.State] = &stored
	return state, nil
}

// Consume removes the state under the lock and returns it when still valid
func (s *InMemoryAuthStateStore) Consume(ctx context.Context, state string) (*integration.AuthorizationState, error) {
	s.mu.Lock()
	found, exists := s.states[state]
	if exists {
		delete(s.states, state)
	}
	s.mu.Unlock()

	if !exists || found.IsExpired(s.now()) {
		return nil, nil
	}
	return found, nil
}

// Cleanup removes expired states
func (s *InMemoryAuthStateStore) Cleanup(ctx context.Context) (int64, error) {
	return s.cleanup(), nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryAuthStateStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// Size returns the number of stored states (for testing/monitoring)
func (s *InMemoryAuthStateStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *InMemoryAuthStateStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryAuthStateStore) cleanup() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for key, st := range s.states {
		if st.IsExpired(now) {
			delete(s.states, key)
			removed++
		}
	}
	return removed
}

// Ensure InMemoryAuthStateStore implements AuthStateStore
var _ integration.AuthStateStore = (*InMemoryAuthStateStore)(nil)
