package crypto

import (
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/hex"
)

// FingerprintSize is the truncated fingerprint length in bytes.
const FingerprintSize = 10

// Fingerprint returns a short hex fingerprint of a public key for
// out-of-band comparison between the two parties before trusting the
// exchange. It hashes the uncompressed point with SHA-256 and truncates
// to 10 bytes (20 hex characters).
func Fingerprint(pub *ecdh.PublicKey) string {
	if pub == nil {
		return ""
	}
	sum := sha256.Sum256(pub.Bytes())
	return hex.EncodeToString(sum[:FingerprintSize])
}
