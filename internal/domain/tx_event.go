package domain

// TxType classifies a wallet transaction relative to an existing position.
type TxType string

const (
	TxTypeOpenPosition   TxType = "open_position"
	TxTypeAddPosition    TxType = "add_position"
	TxTypeClosePosition  TxType = "close_position"
	TxTypeReducePosition TxType = "reduce_position"
)

// TxDirection is the trade side from the tracked wallet's perspective.
type TxDirection string

const (
	TxDirectionBuy  TxDirection = "buy"
	TxDirectionSell TxDirection = "sell"
)

// SolAmountChange captures the fee payer's lamport balance movement in one transaction.
// Invariant: ChangeAmount == int64(PostBalance) - int64(PreBalance).
type SolAmountChange struct {
	ChangeAmount int64
	Decimals     int
	PreBalance   uint64
	PostBalance  uint64
}

// TokenAmountChange captures the owner's token balance movement for a single mint.
// Invariant: ChangeAmount == int64(PostBalance) - int64(PreBalance).
type TokenAmountChange struct {
	ChangeAmount int64
	Decimals     int
	PreBalance   uint64
	PostBalance  uint64
}

// TxEvent is the derived swap event published downstream.
// It is write-once: fully constructed by the parser, never mutated afterwards.
type TxEvent struct {
	Signature       string      `json:"signature"`
	Who             string      `json:"who"`
	FromAmount      uint64      `json:"from_amount"`
	FromDecimals    int         `json:"from_decimals"`
	ToAmount        uint64      `json:"to_amount"`
	ToDecimals      int         `json:"to_decimals"`
	Mint            string      `json:"mint"`
	TxType          TxType      `json:"tx_type"`
	TxDirection     TxDirection `json:"tx_direction"`
	Timestamp       int64       `json:"timestamp"`
	PreTokenAmount  uint64      `json:"pre_token_amount"`
	PostTokenAmount uint64      `json:"post_token_amount"`
	ProgramID       string      `json:"program_id,omitempty"`
}
