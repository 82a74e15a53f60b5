package domain

// Well-known Solana program and mint addresses.
const (
	// TokenProgramID is the SPL token program.
	TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

	// WSOLMint is the wrapped native SOL mint.
	WSOLMint = "So11111111111111111111111111111111111111112"

	// PumpFunProgramID is the pump.fun bonding curve program.
	PumpFunProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

	// RaydiumAMMV4ProgramID is the Raydium AMM v4 program.
	RaydiumAMMV4ProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

	// JupiterV6ProgramID is the Jupiter aggregator v6 program.
	JupiterV6ProgramID = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
)

// SwapPrograms are the programs whose appearance in transaction logs
// identifies the swap venue for a parsed event.
var SwapPrograms = []string{
	PumpFunProgramID,
	RaydiumAMMV4ProgramID,
	JupiterV6ProgramID,
}

// SOLDecimals is the number of decimals of the native token (lamports per SOL).
const SOLDecimals = 9
