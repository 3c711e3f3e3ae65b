package crypto

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestGenerateKeyPair(t *testing.T) {
	keys, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	if keys.Public == nil || keys.Private == nil {
		t.Fatal("GenerateKeyPair returned incomplete pair")
	}

	other, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	if keys.Public.Equal(other.Public) {
		t.Error("two generated key pairs share the same public key")
	}
}

func TestExportImportPublicKeyRoundTrip(t *testing.T) {
	keys, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	portable, err := ExportPublicKey(keys.Public)
	if err != nil {
		t.Fatalf("ExportPublicKey failed: %v", err)
	}

	// The portable form is a JWK with the expected structural fields.
	var fields map[string]string
	if err := json.Unmarshal([]byte(portable), &fields); err != nil {
		t.Fatalf("portable key is not valid JSON: %v", err)
	}
	if fields["kty"] != "EC" || fields["crv"] != "P-256" {
		t.Errorf("unexpected JWK header: kty=%q crv=%q", fields["kty"], fields["crv"])
	}

	imported, err := ImportPublicKey(portable)
	if err != nil {
		t.Fatalf("ImportPublicKey failed: %v", err)
	}
	if !keys.Public.Equal(imported) {
		t.Error("round trip did not preserve the public key")
	}
}

func TestImportPublicKeyMalformed(t *testing.T) {
	tests := []struct {
		name     string
		portable string
	}{
		{"not json", "not a key"},
		{"empty object", "{}"},
		{"wrong key type", `{"kty":"RSA","crv":"P-256","x":"AA","y":"AA"}`},
		{"wrong curve", `{"kty":"EC","crv":"P-384","x":"AA","y":"AA"}`},
		{"bad base64", `{"kty":"EC","crv":"P-256","x":"!!!","y":"!!!"}`},
		{"short coordinates", `{"kty":"EC","crv":"P-256","x":"AAAA","y":"AAAA"}`},
		{
			"point not on curve",
			`{"kty":"EC","crv":"P-256",` +
				`"x":"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",` +
				`"y":"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ImportPublicKey(tt.portable); !errors.Is(err, ErrMalformedKey) {
				t.Errorf("ImportPublicKey(%q) = %v, want ErrMalformedKey", tt.portable, err)
			}
		})
	}
}

func TestExportPublicKeyNil(t *testing.T) {
	if _, err := ExportPublicKey(nil); !errors.Is(err, ErrMalformedKey) {
		t.Errorf("ExportPublicKey(nil) = %v, want ErrMalformedKey", err)
	}
}

func TestFingerprint(t *testing.T) {
	keys, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	fp := Fingerprint(keys.Public)
	if len(fp) != FingerprintSize*2 {
		t.Errorf("fingerprint length = %d, want %d", len(fp), FingerprintSize*2)
	}
	if fp != Fingerprint(keys.Public) {
		t.Error("fingerprint is not stable for the same key")
	}

	other, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	if fp == Fingerprint(other.Public) {
		t.Error("different keys produced the same fingerprint")
	}

	if Fingerprint(nil) != "" {
		t.Error("nil key should produce an empty fingerprint")
	}
}
