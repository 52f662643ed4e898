package archive

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// VerifySignature verifies a manifest's base64-encoded digital signature
// against the full archive bytes, using crypto/ed25519 directly
// (SPEC_FULL.md §4.1 step 5) — the signature scheme golang-jwt/jwt/v5's
// EdDSA alg uses under the hood, wired here without JWT framing since none
// is needed for a raw detached signature.
//
// Returns (valid, wasSigned, err). wasSigned is false when signatureB64 is
// empty; callers resolve the unsigned case against the signature-required
// policy (SPEC_FULL.md §4.1 step 5: true if optional, false if required).
func VerifySignature(archiveBytes []byte, signatureB64 string, publicKey ed25519.PublicKey) (valid bool, wasSigned bool, err error) {
	if signatureB64 == "" {
		return false, false, nil
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, true, fmt.Errorf("decode signature: %w", err)
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return false, true, fmt.Errorf("configured public key has invalid length %d", len(publicKey))
	}
	return ed25519.Verify(publicKey, archiveBytes, sig), true, nil
}
