package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-tracker/internal/domain"
	"wallet-tracker/internal/storage"
)

func TestSwapRecordStore_InsertAndLookup(t *testing.T) {
	store := NewSwapRecordStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &domain.SwapRecord{
		Signature:    "sig1",
		Mint:         "MintA",
		InputAmount:  1_000_000_000,
		OutputAmount: 2_000_000,
		Status:       domain.SwapStatusSuccess,
	}))
	require.NoError(t, store.Insert(ctx, &domain.SwapRecord{
		Signature:    "sig2",
		Mint:         "MintA",
		InputAmount:  500_000_000,
		OutputAmount: 800_000,
		Status:       domain.SwapStatusSuccess,
	}))

	rec, err := store.GetLatestByMint(ctx, "MintA")
	require.NoError(t, err)
	assert.Equal(t, "sig2", rec.Signature, "latest record wins")
	assert.InDelta(t, 625.0, rec.EntryPrice(), 1e-9)
}

func TestSwapRecordStore_DuplicateSignature(t *testing.T) {
	store := NewSwapRecordStore()
	ctx := context.Background()

	rec := &domain.SwapRecord{Signature: "sig1", Mint: "MintA", Status: domain.SwapStatusSuccess}
	require.NoError(t, store.Insert(ctx, rec))
	assert.ErrorIs(t, store.Insert(ctx, rec), storage.ErrDuplicateKey)
}

func TestSwapRecordStore_IgnoresUnsuccessfulRecords(t *testing.T) {
	store := NewSwapRecordStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &domain.SwapRecord{
		Signature: "sig1", Mint: "MintA", Status: domain.SwapStatusFailed,
	}))

	_, err := store.GetLatestByMint(ctx, "MintA")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetLatestByMint(ctx, "MintB")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
