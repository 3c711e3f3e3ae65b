package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/opd-ai/dropwire/limits"
)

// NonceSize is the byte length of an AEAD initialization vector.
const NonceSize = 12

// Nonce is the 12-byte random IV generated fresh for every chunk. Reuse
// under the same key is a security violation and must never happen; every
// Encrypt call draws a new one from the system entropy source.
type Nonce [NonceSize]byte

// GenerateNonce creates a cryptographically secure random nonce.
func GenerateNonce() (Nonce, error) {
	var nonce Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return Nonce{}, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}
	return nonce, nil
}

// Encrypt seals a plaintext chunk with the session key using the default
// cipher suite, returning the fresh IV and the authenticated ciphertext.
func Encrypt(key SharedKey, plaintext []byte) (Nonce, []byte, error) {
	return EncryptWithSuite(DefaultCipherSuite, key, plaintext)
}

// EncryptWithSuite seals a plaintext chunk using the given cipher suite.
// The ciphertext carries a 16-byte authentication tag covering both
// confidentiality and integrity of the chunk.
func EncryptWithSuite(suite CipherSuite, key SharedKey, plaintext []byte) (Nonce, []byte, error) {
	if err := limits.ValidatePlaintextSize(len(plaintext)); err != nil {
		return Nonce{}, nil, err
	}

	aead, err := suite.NewAEAD(key)
	if err != nil {
		return Nonce{}, nil, err
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return Nonce{}, nil, err
	}

	ciphertext := aead.Seal(nil, nonce[:], plaintext, nil)
	return nonce, ciphertext, nil
}
