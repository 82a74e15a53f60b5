package domain

// Transaction status values for swap records.
const (
	SwapStatusPending = "pending"
	SwapStatusSuccess = "success"
	SwapStatusFailed  = "failed"
)

// SwapRecord is a persisted trade executed by this system.
// The parser consults the most recent successful record for a mint to
// recover the entry price when deciding whether a position really closed.
type SwapRecord struct {
	ID           int64  // BIGSERIAL primary key
	Signature    string // Solana transaction signature
	Mint         string // output mint of the trade
	InputAmount  uint64 // lamports spent
	OutputAmount uint64 // raw token amount received
	Status       string // pending | success | failed
	CreatedAt    int64  // record creation timestamp (ms)
}

// EntryPrice returns the recorded SOL-per-token entry price.
// Returns 0 when the record has no output amount.
func (r *SwapRecord) EntryPrice() float64 {
	if r.OutputAmount == 0 {
		return 0
	}
	return float64(r.InputAmount) / float64(r.OutputAmount)
}
