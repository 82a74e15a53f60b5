package parser

import "errors"

var (
	// ErrNotSwapTransaction marks a frame that is not an actionable swap.
	// Dispatchers drop these silently; they are not pipeline faults.
	ErrNotSwapTransaction = errors.New("not a swap transaction")

	// ErrMintNotFound indicates no post token balance matched the signer.
	ErrMintNotFound = errors.New("mint not found")

	// ErrBalanceIndex indicates the SOL balance arrays were empty.
	ErrBalanceIndex = errors.New("owner balance index out of range")

	// ErrUnknownTransactionType indicates balance deltas that fit no
	// position transition.
	ErrUnknownTransactionType = errors.New("unknown transaction type")

	// ErrZeroChangeAmount indicates a token balance that did not move.
	ErrZeroChangeAmount = errors.New("zero change amount")
)
