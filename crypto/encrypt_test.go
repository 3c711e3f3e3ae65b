package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/opd-ai/dropwire/limits"
)

func testSessionKey(t *testing.T) SharedKey {
	t.Helper()
	alice, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	bob, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate peer key pair: %v", err)
	}
	key, err := DeriveSharedKey(alice.Private, bob.Public)
	if err != nil {
		t.Fatalf("DeriveSharedKey failed: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testSessionKey(t)

	tests := []struct {
		name  string
		suite CipherSuite
		size  int
	}{
		{"aesgcm small chunk", DefaultCipherSuite, 37},
		{"aesgcm full chunk", DefaultCipherSuite, limits.ChunkSize},
		{"aesgcm single byte", DefaultCipherSuite, 1},
		{"chachapoly small chunk", AlternateCipherSuite, 37},
		{"chachapoly full chunk", AlternateCipherSuite, limits.ChunkSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plaintext := make([]byte, tt.size)
			if _, err := rand.Read(plaintext); err != nil {
				t.Fatalf("Failed to generate plaintext: %v", err)
			}

			nonce, ciphertext, err := EncryptWithSuite(tt.suite, key, plaintext)
			if err != nil {
				t.Fatalf("EncryptWithSuite failed: %v", err)
			}
			if len(ciphertext) != tt.size+limits.EncryptionOverhead {
				t.Errorf("ciphertext length = %d, want %d", len(ciphertext), tt.size+limits.EncryptionOverhead)
			}

			decrypted, err := DecryptWithSuite(tt.suite, key, nonce, ciphertext)
			if err != nil {
				t.Fatalf("DecryptWithSuite failed: %v", err)
			}
			if !bytes.Equal(decrypted, plaintext) {
				t.Error("decrypted chunk does not match original plaintext")
			}
		})
	}
}

func TestEncryptFreshNoncePerCall(t *testing.T) {
	key := testSessionKey(t)
	plaintext := []byte("the same chunk twice")

	first, _, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	second, _, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if first == second {
		t.Error("two encryptions must never reuse an IV")
	}
}

func TestDecryptWrongKeyFailsAuthentication(t *testing.T) {
	key := testSessionKey(t)
	wrongKey := testSessionKey(t)
	plaintext := []byte("confidential chunk data")

	nonce, ciphertext, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := Decrypt(wrongKey, nonce, ciphertext); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("wrong key: got %v, want ErrAuthenticationFailed", err)
	}
}

func TestDecryptTamperedCiphertextFailsAuthentication(t *testing.T) {
	key := testSessionKey(t)
	plaintext := []byte("tamper detection test payload")

	nonce, ciphertext, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Flip a single bit anywhere in the frame.
	tampered := make([]byte, len(ciphertext))
	copy(tampered, ciphertext)
	tampered[len(tampered)/2] ^= 0x01

	if _, err := Decrypt(key, nonce, tampered); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("tampered ciphertext: got %v, want ErrAuthenticationFailed", err)
	}
}

func TestDecryptWrongNonceFailsAuthentication(t *testing.T) {
	key := testSessionKey(t)

	nonce, ciphertext, err := Encrypt(key, []byte("nonce binding test"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	wrongNonce := nonce
	wrongNonce[0] ^= 0xff

	if _, err := Decrypt(key, wrongNonce, ciphertext); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("wrong nonce: got %v, want ErrAuthenticationFailed", err)
	}
}

func TestEncryptOversizePlaintextRejected(t *testing.T) {
	key := testSessionKey(t)
	oversize := make([]byte, limits.ChunkSize+1)

	if _, _, err := Encrypt(key, oversize); !errors.Is(err, limits.ErrChunkTooLarge) {
		t.Errorf("oversize plaintext: got %v, want ErrChunkTooLarge", err)
	}
}

func TestDecryptEmptyCiphertextRejected(t *testing.T) {
	key := testSessionKey(t)

	if _, err := Decrypt(key, Nonce{}, nil); !errors.Is(err, limits.ErrChunkEmpty) {
		t.Errorf("empty ciphertext: got %v, want ErrChunkEmpty", err)
	}
}

func TestUnsupportedCipherSuite(t *testing.T) {
	key := testSessionKey(t)
	bogus := CipherSuite{Cipher: "ROT13", Name: "bogus"}

	if _, _, err := EncryptWithSuite(bogus, key, []byte("x")); !errors.Is(err, ErrUnsupportedCipherSuite) {
		t.Errorf("bogus suite: got %v, want ErrUnsupportedCipherSuite", err)
	}
	if _, err := LookupCipherSuite("nope"); !errors.Is(err, ErrUnsupportedCipherSuite) {
		t.Errorf("unknown suite name: got %v, want ErrUnsupportedCipherSuite", err)
	}
	if suite, err := LookupCipherSuite(DefaultCipherSuite.Name); err != nil || suite.Cipher != "AESGCM" {
		t.Errorf("LookupCipherSuite(default) = %v, %v", suite, err)
	}
}
