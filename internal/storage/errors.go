package storage

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey rejects a journal append whose key is already present.
	// Journals are append-only.
	ErrDuplicateKey = errors.New("duplicate key")

	ErrInvalidInput = errors.New("invalid input")

	// ErrVersionConflict means another writer saved the state after the caller
	// loaded it. The caller must reload; the tick is not retried in place.
	ErrVersionConflict = errors.New("state version conflict")

	// ErrCorruptState means the stored blob could not be decoded. SQL stores
	// still return a default state carrying the row version so the next save wins.
	ErrCorruptState = errors.New("corrupt state")
)
