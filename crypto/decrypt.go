package crypto

import (
	"errors"
	"fmt"

	"github.com/opd-ai/dropwire/limits"
)

// ErrAuthenticationFailed indicates a chunk failed AEAD verification:
// the data was tampered with or decrypted with the wrong key or IV.
// This is fatal to the session; the data cannot be trusted.
var ErrAuthenticationFailed = errors.New("chunk authentication failed")

// Decrypt opens an authenticated ciphertext chunk with the session key
// using the default cipher suite.
func Decrypt(key SharedKey, nonce Nonce, ciphertext []byte) ([]byte, error) {
	return DecryptWithSuite(DefaultCipherSuite, key, nonce, ciphertext)
}

// DecryptWithSuite opens a ciphertext chunk using the given cipher suite.
// It returns ErrAuthenticationFailed if the authentication tag does not
// verify; callers must abort the transfer rather than skip the chunk.
func DecryptWithSuite(suite CipherSuite, key SharedKey, nonce Nonce, ciphertext []byte) ([]byte, error) {
	if err := limits.ValidateCiphertextSize(len(ciphertext)); err != nil {
		return nil, err
	}

	aead, err := suite.NewAEAD(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	return plaintext, nil
}
