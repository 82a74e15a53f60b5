package oracle

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mr-tron/base58"

	"wallet-tracker/internal/domain"
	"wallet-tracker/internal/observability"
	"wallet-tracker/internal/solana"
)

var (
	// ErrCurveNotFound indicates the bonding curve account does not exist.
	ErrCurveNotFound = errors.New("bonding curve account not found")
	// ErrCurveData indicates the account data does not decode as a bonding curve.
	ErrCurveData = errors.New("malformed bonding curve account data")
)

// bondingCurveSeed is the PDA seed prefix used by the pump.fun program.
const bondingCurveSeed = "bonding-curve"

// bondingCurveSize is discriminator(8) + five u64 reserves + complete flag.
const bondingCurveSize = 8 + 5*8 + 1

// BondingCurveState mirrors the on-chain pump.fun bonding curve account.
// All integer fields are little-endian u64 in the raw account data.
type BondingCurveState struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

// DecodeBondingCurveState parses raw account bytes into a BondingCurveState.
func DecodeBondingCurveState(data []byte) (*BondingCurveState, error) {
	if len(data) < bondingCurveSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrCurveData, len(data), bondingCurveSize)
	}

	s := &BondingCurveState{
		VirtualTokenReserves: binary.LittleEndian.Uint64(data[8:16]),
		VirtualSolReserves:   binary.LittleEndian.Uint64(data[16:24]),
		RealTokenReserves:    binary.LittleEndian.Uint64(data[24:32]),
		RealSolReserves:      binary.LittleEndian.Uint64(data[32:40]),
		TokenTotalSupply:     binary.LittleEndian.Uint64(data[40:48]),
		Complete:             data[48] != 0,
	}
	return s, nil
}

// Price returns the spot price in SOL per whole token, derived from the
// virtual reserve ratio. The constant 1000 converts between the lamport
// and token decimal scales (9 vs 6).
func (s *BondingCurveState) Price() (float64, error) {
	if s.VirtualTokenReserves == 0 {
		return 0, fmt.Errorf("%w: zero virtual token reserves", ErrCurveData)
	}
	return float64(s.VirtualSolReserves) / float64(s.VirtualTokenReserves) / 1000, nil
}

// AccountFetcher retrieves raw account info from a Solana RPC node.
type AccountFetcher interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error)
}

// Compile-time interface check.
var _ AccountFetcher = (*solana.HTTPClient)(nil)

// Client reads live token prices from pump.fun bonding curve accounts.
type Client struct {
	rpc     AccountFetcher
	logger  *log.Logger
	metrics *observability.Metrics
}

// NewClient creates a bonding curve oracle backed by the given RPC client.
// Metrics may be nil.
func NewClient(rpc AccountFetcher, logger *log.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{rpc: rpc, logger: logger, metrics: metrics}
}

// DeriveBondingCurveAddress computes the bonding curve PDA for a mint.
func DeriveBondingCurveAddress(mint string) (string, error) {
	mintBytes, err := base58.Decode(mint)
	if err != nil {
		return "", fmt.Errorf("decode mint %q: %w", mint, err)
	}
	addr, err := solana.DeriveProgramAddress(
		[][]byte{[]byte(bondingCurveSeed), mintBytes},
		domain.PumpFunProgramID,
	)
	if err != nil {
		return "", fmt.Errorf("derive bonding curve address: %w", err)
	}
	return addr, nil
}

// CurveState fetches and decodes the bonding curve account for a mint.
func (c *Client) CurveState(ctx context.Context, mint string) (*BondingCurveState, error) {
	addr, err := DeriveBondingCurveAddress(mint)
	if err != nil {
		return nil, err
	}

	info, err := c.rpc.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("fetch bonding curve %s: %w", addr, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrCurveNotFound, addr)
	}

	raw, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrCurveData, err)
	}
	return DecodeBondingCurveState(raw)
}

// MintPrice returns the current SOL price of one whole token.
func (c *Client) MintPrice(ctx context.Context, mint string) (float64, error) {
	if c.metrics != nil {
		start := time.Now()
		defer func() {
			c.metrics.OracleLatency.Observe(time.Since(start).Seconds())
		}()
	}

	state, err := c.CurveState(ctx, mint)
	if err != nil {
		return 0, err
	}
	price, err := state.Price()
	if err != nil {
		return 0, err
	}
	c.logger.Printf("oracle: mint=%s price=%.12f complete=%v", mint, price, state.Complete)
	return price, nil
}
