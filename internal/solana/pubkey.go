package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const pubkeyLen = 32

// ValidatePubkey checks that s is a well-formed base58 public key suitable
// for a subscription watchlist: base58 and exactly 32 bytes. Curve
// membership is not required; program derived addresses are valid watch
// targets.
func ValidatePubkey(s string) error {
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	if len(raw) != pubkeyLen {
		return fmt.Errorf("pubkey %q: want %d bytes, have %d", s, pubkeyLen, len(raw))
	}
	return nil
}

// IsOnCurve reports whether a 32-byte point lies on the ed25519 curve.
// Program derived addresses are deliberately off-curve.
func IsOnCurve(point []byte) bool {
	if len(point) != pubkeyLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// DeriveProgramAddress derives a Program Derived Address from seeds and a
// program ID using the Solana algorithm: append a bump byte (255 down to 1)
// and the "ProgramDerivedAddress" marker, SHA256, and take the first digest
// that is off-curve.
func DeriveProgramAddress(seeds [][]byte, programID string) (string, error) {
	programBytes, err := base58.Decode(programID)
	if err != nil {
		return "", fmt.Errorf("decode program id: %w", err)
	}
	if len(programBytes) != pubkeyLen {
		return "", fmt.Errorf("program id: want %d bytes, have %d", pubkeyLen, len(programBytes))
	}

	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 96)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programBytes...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)
		if !IsOnCurve(hash[:]) {
			return base58.Encode(hash[:]), nil
		}
	}

	return "", fmt.Errorf("no valid bump seed found")
}
