package memory

import (
	"context"
	"slices"
	"sync"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

// TradeJournal keeps trades per pair in timestamp order.
type TradeJournal struct {
	mu     sync.RWMutex
	ids    map[string]struct{}
	byPair map[string][]domain.TradeRecord
}

func NewTradeJournal() *TradeJournal {
	return &TradeJournal{
		ids:    make(map[string]struct{}),
		byPair: make(map[string][]domain.TradeRecord),
	}
}

// InsertTrades appends the batch or nothing: an invalid record or an id seen
// before (in the journal or earlier in the batch) rejects all of it.
func (j *TradeJournal) InsertTrades(_ context.Context, trades []domain.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	seen := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		if t.ID == "" || t.Pair == "" {
			return storage.ErrInvalidInput
		}
		_, inJournal := j.ids[t.ID]
		_, inBatch := seen[t.ID]
		if inJournal || inBatch {
			return storage.ErrDuplicateKey
		}
		seen[t.ID] = struct{}{}
	}

	for _, t := range trades {
		j.ids[t.ID] = struct{}{}
		list := j.byPair[t.Pair]
		i, _ := slices.BinarySearchFunc(list, t, compareTrades)
		j.byPair[t.Pair] = slices.Insert(list, i, t)
	}
	return nil
}

// GetTradesByPair returns a copy of the pair's trades, oldest first.
func (j *TradeJournal) GetTradesByPair(_ context.Context, pair string) ([]domain.TradeRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return slices.Clone(j.byPair[pair]), nil
}

// compareTrades orders by timestamp, then id for trades in the same instant.
func compareTrades(a, b domain.TradeRecord) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

var _ storage.TradeJournal = (*TradeJournal)(nil)
