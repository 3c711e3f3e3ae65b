package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrCryptoUnavailable indicates the platform cannot perform key agreement
// or authenticated encryption. This is fatal and non-retryable.
var ErrCryptoUnavailable = errors.New("cryptographic backend unavailable")

// ErrMalformedKey indicates a portable public key could not be parsed.
var ErrMalformedKey = errors.New("malformed public key")

// p256CoordinateSize is the byte length of a P-256 affine coordinate.
const p256CoordinateSize = 32

// KeyPair represents an ephemeral P-256 key agreement pair. A fresh pair
// is generated per transfer session; the private half never leaves the
// process that generated it.
type KeyPair struct {
	Public  *ecdh.PublicKey
	Private *ecdh.PrivateKey
}

// GenerateKeyPair creates a new random P-256 key agreement pair.
func GenerateKeyPair() (*KeyPair, error) {
	private, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "GenerateKeyPair",
			"error":    err.Error(),
		}).Error("P-256 key generation failed")
		return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "GenerateKeyPair",
		"curve":    "P-256",
	}).Debug("Generated ephemeral key pair")

	return &KeyPair{
		Public:  private.PublicKey(),
		Private: private,
	}, nil
}

// jwk is the JSON Web Key form of a P-256 public key used on the wire.
type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// ExportPublicKey converts a public key to its portable JWK textual form
// for transmission to the peer. The round trip through ImportPublicKey
// is lossless.
func ExportPublicKey(pub *ecdh.PublicKey) (string, error) {
	if pub == nil {
		return "", fmt.Errorf("%w: nil public key", ErrMalformedKey)
	}

	// Uncompressed point encoding: 0x04 || X || Y.
	raw := pub.Bytes()
	if len(raw) != 1+2*p256CoordinateSize {
		return "", fmt.Errorf("%w: unexpected point length %d", ErrMalformedKey, len(raw))
	}

	key := jwk{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(raw[1 : 1+p256CoordinateSize]),
		Y:   base64.RawURLEncoding.EncodeToString(raw[1+p256CoordinateSize:]),
	}

	encoded, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("encoding public key: %w", err)
	}

	return string(encoded), nil
}

// ImportPublicKey parses a portable JWK public key received from the peer.
// It returns ErrMalformedKey on structurally invalid input, including
// points that are not on the P-256 curve.
func ImportPublicKey(portable string) (*ecdh.PublicKey, error) {
	var key jwk
	if err := json.Unmarshal([]byte(portable), &key); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ImportPublicKey",
			"error":    err.Error(),
		}).Warn("Public key is not valid JSON")
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	if key.Kty != "EC" || key.Crv != "P-256" {
		return nil, fmt.Errorf("%w: unsupported key type %q/%q", ErrMalformedKey, key.Kty, key.Crv)
	}

	x, err := base64.RawURLEncoding.DecodeString(key.X)
	if err != nil {
		return nil, fmt.Errorf("%w: bad x coordinate: %v", ErrMalformedKey, err)
	}
	y, err := base64.RawURLEncoding.DecodeString(key.Y)
	if err != nil {
		return nil, fmt.Errorf("%w: bad y coordinate: %v", ErrMalformedKey, err)
	}
	if len(x) != p256CoordinateSize || len(y) != p256CoordinateSize {
		return nil, fmt.Errorf("%w: coordinate lengths %d/%d", ErrMalformedKey, len(x), len(y))
	}

	raw := make([]byte, 0, 1+2*p256CoordinateSize)
	raw = append(raw, 0x04)
	raw = append(raw, x...)
	raw = append(raw, y...)

	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ImportPublicKey",
			"error":    err.Error(),
		}).Warn("Public key point rejected")
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	return pub, nil
}
