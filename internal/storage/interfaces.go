package storage

import (
	"context"

	"wallet-tracker/internal/domain"
)

// SwapRecordStore provides access to persisted trade records. The parser
// reads the most recent successful record for a mint to recover entry price.
type SwapRecordStore interface {
	// Insert adds a new swap record. Returns ErrDuplicateKey if the
	// signature already exists.
	Insert(ctx context.Context, rec *domain.SwapRecord) error

	// GetLatestByMint retrieves the most recent successful record for a
	// mint. Returns ErrNotFound when no successful record exists.
	GetLatestByMint(ctx context.Context, mint string) (*domain.SwapRecord, error)
}

// TxEventStore archives published events for offline analysis.
type TxEventStore interface {
	// Insert appends a published event to the archive.
	Insert(ctx context.Context, ev *domain.TxEvent) error
}
