package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

// EquityJournal is an in-memory implementation of storage.EquityJournal.
type EquityJournal struct {
	mu   sync.RWMutex
	data map[string]*domain.EquitySnapshot // keyed by tick id
}

// NewEquityJournal creates a new in-memory equity journal.
func NewEquityJournal() *EquityJournal {
	return &EquityJournal{
		data: make(map[string]*domain.EquitySnapshot),
	}
}

// InsertSnapshot adds one snapshot. Returns ErrDuplicateKey if the tick id exists.
func (s *EquityJournal) InsertSnapshot(_ context.Context, snap *domain.EquitySnapshot) error {
	if snap == nil || snap.TickID == "" || snap.Pair == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[snap.TickID]; exists {
		return storage.ErrDuplicateKey
	}
	snapCopy := *snap
	s.data[snap.TickID] = &snapCopy
	return nil
}

// GetSnapshots retrieves snapshots for pair within [start, end] (inclusive), ordered by timestamp ASC.
func (s *EquityJournal) GetSnapshots(_ context.Context, pair string, start, end time.Time) ([]*domain.EquitySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EquitySnapshot
	for _, snap := range s.data {
		if snap.Pair == pair && !snap.Timestamp.Before(start) && !snap.Timestamp.After(end) {
			snapCopy := *snap
			result = append(result, &snapCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

// Journal combines the in-memory trade and equity journals.
type Journal struct {
	*TradeJournal
	*EquityJournal
}

// NewJournal creates an empty in-memory journal.
func NewJournal() *Journal {
	return &Journal{TradeJournal: NewTradeJournal(), EquityJournal: NewEquityJournal()}
}

var (
	_ storage.EquityJournal = (*EquityJournal)(nil)
	_ storage.Journal       = (*Journal)(nil)
)
