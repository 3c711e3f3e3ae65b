package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherSuite identifies the AEAD used for chunk encryption. All suites
// share the 12-byte nonce and 16-byte tag sizes, so the wire framing is
// identical regardless of suite.
type CipherSuite struct {
	Cipher string // "AESGCM" or "ChaChaPoly"
	Name   string // Full suite name
}

// Predefined cipher suites. AES-GCM is the wire default; ChaCha20-Poly1305
// is offered for deployments without AES hardware support.
var (
	DefaultCipherSuite = CipherSuite{
		Cipher: "AESGCM",
		Name:   "ECDH_P256_AESGCM_SHA256",
	}

	AlternateCipherSuite = CipherSuite{
		Cipher: "ChaChaPoly",
		Name:   "ECDH_P256_ChaChaPoly_SHA256",
	}
)

// SupportedCipherSuites lists all supported cipher suites in order of
// preference.
var SupportedCipherSuites = []CipherSuite{
	DefaultCipherSuite,
	AlternateCipherSuite,
}

// ErrUnsupportedCipherSuite indicates an unknown cipher suite name.
var ErrUnsupportedCipherSuite = errors.New("unsupported cipher suite")

// NewAEAD constructs the suite's AEAD for the given session key.
func (s CipherSuite) NewAEAD(key SharedKey) (cipher.AEAD, error) {
	switch s.Cipher {
	case "AESGCM":
		block, err := aes.NewCipher(key[:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
		}
		return aead, nil

	case "ChaChaPoly":
		aead, err := chacha20poly1305.New(key[:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
		}
		return aead, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCipherSuite, s.Cipher)
	}
}

// LookupCipherSuite resolves a suite by its full name.
func LookupCipherSuite(name string) (CipherSuite, error) {
	for _, s := range SupportedCipherSuites {
		if s.Name == name {
			return s, nil
		}
	}
	return CipherSuite{}, fmt.Errorf("%w: %q", ErrUnsupportedCipherSuite, name)
}
