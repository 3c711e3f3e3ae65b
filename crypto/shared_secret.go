package crypto

import (
	"crypto/ecdh"
	"crypto/sha256"
	"fmt"

	"github.com/sirupsen/logrus"
)

// KeySize is the byte length of a derived symmetric key.
const KeySize = 32

// SharedKey is the symmetric key derived once per session and used for
// all chunk encryption and decryption in that session. It is never
// transmitted.
type SharedKey [KeySize]byte

// DeriveSharedKey computes the session key from our private key and the
// peer's public key: ECDH key agreement over P-256 followed by SHA-256
// of the raw shared bits. Both sides compute the identical key
// independently; this is never verified in-band.
func DeriveSharedKey(private *ecdh.PrivateKey, peerPublic *ecdh.PublicKey) (SharedKey, error) {
	if private == nil || peerPublic == nil {
		return SharedKey{}, fmt.Errorf("%w: missing key material", ErrCryptoUnavailable)
	}

	logrus.WithFields(logrus.Fields{
		"function": "DeriveSharedKey",
		"curve":    "P-256",
	}).Debug("Computing shared secret using ECDH")

	secret, err := private.ECDH(peerPublic)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "DeriveSharedKey",
			"error":    err.Error(),
		}).Error("ECDH computation failed")
		return SharedKey{}, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}

	key := SharedKey(sha256.Sum256(secret))

	// Wipe the raw agreement output; only the hashed key is retained.
	ZeroBytes(secret)

	logrus.WithFields(logrus.Fields{
		"function": "DeriveSharedKey",
	}).Info("Session key derived")

	return key, nil
}
