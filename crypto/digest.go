package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest computes the lowercase hex SHA-256 digest of data. It is used
// once over the complete plaintext on each side of a transfer, not per
// chunk.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestEqual compares two hex digests case-insensitively.
func DigestEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}
