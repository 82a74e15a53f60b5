package postgres

import (
	"context"
	"fmt"

	"wallet-tracker/internal/domain"
	"wallet-tracker/internal/storage"
)

// SwapRecordStore implements storage.SwapRecordStore using PostgreSQL.
type SwapRecordStore struct {
	pool *Pool
}

// NewSwapRecordStore creates a new SwapRecordStore.
func NewSwapRecordStore(pool *Pool) *SwapRecordStore {
	return &SwapRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SwapRecordStore = (*SwapRecordStore)(nil)

// Insert adds a new swap record. Returns ErrDuplicateKey if the signature exists.
func (s *SwapRecordStore) Insert(ctx context.Context, rec *domain.SwapRecord) error {
	if rec == nil || rec.Signature == "" || rec.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO swap_records (
			signature, mint, input_amount, output_amount, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.Signature,
		rec.Mint,
		int64(rec.InputAmount),
		int64(rec.OutputAmount),
		rec.Status,
		rec.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert swap record: %w", err)
	}
	return nil
}

// GetLatestByMint retrieves the most recent successful record for a mint.
func (s *SwapRecordStore) GetLatestByMint(ctx context.Context, mint string) (*domain.SwapRecord, error) {
	if mint == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT id, signature, mint, input_amount, output_amount, status, created_at
		FROM swap_records
		WHERE mint = $1 AND status = $2
		ORDER BY id DESC
		LIMIT 1
	`

	var (
		rec          domain.SwapRecord
		inputAmount  int64
		outputAmount int64
	)
	err := s.pool.QueryRow(ctx, query, mint, domain.SwapStatusSuccess).Scan(
		&rec.ID,
		&rec.Signature,
		&rec.Mint,
		&inputAmount,
		&outputAmount,
		&rec.Status,
		&rec.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest swap record by mint: %w", err)
	}

	rec.InputAmount = uint64(inputAmount)
	rec.OutputAmount = uint64(outputAmount)
	return &rec, nil
}
