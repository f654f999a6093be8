package transport

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// verifySignature dispatches to the algorithm named in the JWT header.
func verifySignature(alg string, publicKey interface{}, signedInput, signature []byte) error {
	switch alg {
	case "RS256":
		key, ok := publicKey.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("transport: RS256 token but configured key is not RSA")
		}
		digest := sha256.Sum256(signedInput)
		return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature)
	case "EdDSA":
		key, ok := publicKey.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("transport: EdDSA token but configured key is not Ed25519")
		}
		if !ed25519.Verify(key, signedInput, signature) {
			return fmt.Errorf("transport: ed25519 signature mismatch")
		}
		return nil
	default:
		return fmt.Errorf("transport: unsupported JWT algorithm %q", alg)
	}
}
