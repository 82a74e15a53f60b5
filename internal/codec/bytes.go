package codec

import (
	"unicode/utf8"

	"github.com/mr-tron/base58"
)

// shouldBase58 reports whether a byte sequence must be rendered as base58
// instead of plain text. Addresses and signatures are raw 32/64-byte values
// that only occasionally happen to decode as UTF-8, so anything that is not
// clean printable ASCII goes through base58.
func shouldBase58(b []byte) bool {
	if !utf8.Valid(b) {
		return true
	}
	for _, r := range string(b) {
		if r == '\\' || r < 32 || r > 126 {
			return true
		}
	}
	return false
}

// EncodeBytes renders a raw byte sequence as a human-usable string: the
// UTF-8 text unchanged when it is printable ASCII without backslashes,
// otherwise its base58 encoding. It never fails; base58 is the universal
// fallback.
func EncodeBytes(b []byte) string {
	if shouldBase58(b) {
		return base58.Encode(b)
	}
	return string(b)
}
