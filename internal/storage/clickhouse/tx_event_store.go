package clickhouse

import (
	"context"
	"fmt"

	"wallet-tracker/internal/domain"
	"wallet-tracker/internal/storage"
)

// TxEventStore archives published swap events in ClickHouse.
type TxEventStore struct {
	conn *Conn
}

// NewTxEventStore creates a new TxEventStore.
func NewTxEventStore(conn *Conn) *TxEventStore {
	return &TxEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TxEventStore = (*TxEventStore)(nil)

// Insert archives a single event. MergeTree does not enforce uniqueness,
// so replayed signatures are deduplicated at read time.
func (s *TxEventStore) Insert(ctx context.Context, event *domain.TxEvent) error {
	if event == nil {
		return storage.ErrInvalidInput
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO tx_events (
			signature, who, mint, tx_type, tx_direction,
			from_amount, from_decimals, to_amount, to_decimals,
			pre_token_amount, post_token_amount, program_id, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.Signature, event.Who, event.Mint,
		string(event.TxType), string(event.TxDirection),
		event.FromAmount, uint8(event.FromDecimals),
		event.ToAmount, uint8(event.ToDecimals),
		event.PreTokenAmount, event.PostTokenAmount,
		event.ProgramID, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert tx event: %w", err)
	}
	return nil
}

// InsertBulk archives multiple events in a single batch.
func (s *TxEventStore) InsertBulk(ctx context.Context, events []*domain.TxEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO tx_events (
			signature, who, mint, tx_type, tx_direction,
			from_amount, from_decimals, to_amount, to_decimals,
			pre_token_amount, post_token_amount, program_id, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, event := range events {
		if event == nil {
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			event.Signature, event.Who, event.Mint,
			string(event.TxType), string(event.TxDirection),
			event.FromAmount, uint8(event.FromDecimals),
			event.ToAmount, uint8(event.ToDecimals),
			event.PreTokenAmount, event.PostTokenAmount,
			event.ProgramID, event.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySignature retrieves all archived rows for a signature, newest first.
func (s *TxEventStore) GetBySignature(ctx context.Context, signature string) ([]*domain.TxEvent, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT signature, who, mint, tx_type, tx_direction,
		       from_amount, from_decimals, to_amount, to_decimals,
		       pre_token_amount, post_token_amount, program_id, timestamp
		FROM tx_events
		WHERE signature = ?
		ORDER BY timestamp DESC
	`, signature)
	if err != nil {
		return nil, fmt.Errorf("query by signature: %w", err)
	}
	defer rows.Close()

	var events []*domain.TxEvent
	for rows.Next() {
		var (
			e                        domain.TxEvent
			txType, txDirection      string
			fromDecimals, toDecimals uint8
		)
		err := rows.Scan(
			&e.Signature, &e.Who, &e.Mint, &txType, &txDirection,
			&e.FromAmount, &fromDecimals, &e.ToAmount, &toDecimals,
			&e.PreTokenAmount, &e.PostTokenAmount, &e.ProgramID, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tx event: %w", err)
		}
		e.TxType = domain.TxType(txType)
		e.TxDirection = domain.TxDirection(txDirection)
		e.FromDecimals = int(fromDecimals)
		e.ToDecimals = int(toDecimals)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tx events: %w", err)
	}
	return events, nil
}
