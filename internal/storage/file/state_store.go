// Package file implements storage.StateStore on a single JSON document on disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

// Syncer publishes the state file after a successful save.
type Syncer interface {
	Sync(ctx context.Context, path, message string) error
}

// Options configures a StateStore.
type Options struct {
	Path   string
	Syncer Syncer // optional
	Logger zerolog.Logger
	Now    func() time.Time
}

// StateStore keeps one pair's state in a JSON file.
// Writes go to a temp file in the same directory and are renamed into place.
type StateStore struct {
	path   string
	syncer Syncer
	log    zerolog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// Compile-time interface check.
var _ storage.StateStore = (*StateStore)(nil)

// NewStateStore creates a file-backed store.
func NewStateStore(opts Options) *StateStore {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &StateStore{
		path:   opts.Path,
		syncer: opts.Syncer,
		log:    opts.Logger.With().Str("component", "file_store").Logger(),
		now:    now,
	}
}

// Path returns the state file location.
func (s *StateStore) Path() string {
	return s.path
}

// Load reads the state for pair. Returns ErrNotFound if the file is absent or holds
// another pair.
func (s *StateStore) Load(_ context.Context, pair string) (*domain.StrategyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.read(pair)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Save writes st if the file still holds version st.Version.
func (s *StateStore) Save(ctx context.Context, st *domain.StrategyState) error {
	if st == nil || st.Pair == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	existing, err := s.read(st.Pair)
	switch {
	case err == nil:
		current = existing.Version
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrCorruptState):
		// overwrite
	default:
		return err
	}
	if current != st.Version {
		return storage.ErrVersionConflict
	}

	next := st.Clone()
	next.Version++
	next.UpdatedAt = s.now().UTC()

	data, err := storage.EncodeState(next)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	st.Version = next.Version
	st.UpdatedAt = next.UpdatedAt

	if s.syncer != nil {
		msg := fmt.Sprintf("Update %s state v%d", st.Pair, st.Version)
		if err := s.syncer.Sync(ctx, s.path, msg); err != nil {
			s.log.Warn().Err(err).Str("path", s.path).Msg("state sync failed")
		}
	}
	return nil
}

func (s *StateStore) read(pair string) (*domain.StrategyState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	st, warnings, err := storage.DecodeState(data, pair)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		s.log.Warn().Str("path", s.path).Msg(w)
	}
	if st.Pair != pair {
		return nil, storage.ErrNotFound
	}
	return st, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
