// Package crypto implements the cryptographic primitives for the transfer
// protocol: ephemeral ECDH key agreement over P-256, JWK public key
// exchange, shared key derivation, authenticated chunk encryption, and
// content digests.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	portable, _ := crypto.ExportPublicKey(keys.Public)
//	fmt.Println("Exchange key:", portable)
package crypto
