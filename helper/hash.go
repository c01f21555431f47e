package helper

import (
	"crypto/sha256"
	"encoding/hex"
)

// Get8BytesHash returns the first 8 bytes of the SHA-256 of value as
// hex. Used to log a stable identity for secrets without leaking them.
func Get8BytesHash(value string) string {
	h := sha256.Sum256([]byte(value))

	short := h[:8]

	return hex.EncodeToString(short)
}
