package memory

import (
	"context"
	"sync"
	"time"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

// StateStore is an in-memory implementation of storage.StateStore.
type StateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.StrategyState // keyed by pair
	now  func() time.Time
}

// NewStateStore creates a new in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		data: make(map[string]*domain.StrategyState),
		now:  time.Now,
	}
}

// Load retrieves the state for pair. Returns ErrNotFound if nothing was saved.
func (s *StateStore) Load(_ context.Context, pair string) (*domain.StrategyState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.data[pair]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return st.Clone(), nil
}

// Save stores a copy of st if its version matches. Returns ErrVersionConflict otherwise.
func (s *StateStore) Save(_ context.Context, st *domain.StrategyState) error {
	if st == nil || st.Pair == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if existing, ok := s.data[st.Pair]; ok {
		current = existing.Version
	}
	if current != st.Version {
		return storage.ErrVersionConflict
	}

	st.Version++
	st.UpdatedAt = s.now().UTC()
	s.data[st.Pair] = st.Clone()
	return nil
}

var _ storage.StateStore = (*StateStore)(nil)
