package solana

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePubkey(t *testing.T) {
	require.NoError(t, ValidatePubkey("11111111111111111111111111111111"))
	require.NoError(t, ValidatePubkey("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"))

	assert.Error(t, ValidatePubkey("not-base58-0OIl"))
	assert.Error(t, ValidatePubkey(base58.Encode([]byte("short"))))
}

func TestDeriveProgramAddress_Deterministic(t *testing.T) {
	program := "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	mint, err := base58.Decode("So11111111111111111111111111111111111111112")
	require.NoError(t, err)

	addr1, err := DeriveProgramAddress([][]byte{[]byte("bonding-curve"), mint}, program)
	require.NoError(t, err)
	addr2, err := DeriveProgramAddress([][]byte{[]byte("bonding-curve"), mint}, program)
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2)

	raw, err := base58.Decode(addr1)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.False(t, IsOnCurve(raw), "PDA must be off-curve")
}
