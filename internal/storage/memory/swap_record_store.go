// Package memory provides in-memory store implementations for tests and
// for running without a database.
package memory

import (
	"context"
	"sync"

	"wallet-tracker/internal/domain"
	"wallet-tracker/internal/storage"
)

// SwapRecordStore is an in-memory implementation of storage.SwapRecordStore.
type SwapRecordStore struct {
	mu     sync.RWMutex
	nextID int64
	bySig  map[string]*domain.SwapRecord
	order  []*domain.SwapRecord // insertion order
}

// NewSwapRecordStore creates a new in-memory swap record store.
func NewSwapRecordStore() *SwapRecordStore {
	return &SwapRecordStore{bySig: make(map[string]*domain.SwapRecord)}
}

// Compile-time interface check.
var _ storage.SwapRecordStore = (*SwapRecordStore)(nil)

// Insert adds a new swap record. Returns ErrDuplicateKey if the signature exists.
func (s *SwapRecordStore) Insert(_ context.Context, rec *domain.SwapRecord) error {
	if rec == nil || rec.Signature == "" || rec.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySig[rec.Signature]; exists {
		return storage.ErrDuplicateKey
	}

	s.nextID++
	cp := *rec
	cp.ID = s.nextID
	s.bySig[cp.Signature] = &cp
	s.order = append(s.order, &cp)
	return nil
}

// GetLatestByMint retrieves the most recent successful record for a mint.
func (s *SwapRecordStore) GetLatestByMint(_ context.Context, mint string) (*domain.SwapRecord, error) {
	if mint == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.order[i]
		if rec.Mint == mint && rec.Status == domain.SwapStatusSuccess {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}
