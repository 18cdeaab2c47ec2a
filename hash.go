package aegis

import (
	"crypto/subtle"

	"southwinds.dev/aegis/internal/crypto"
)

// GenerateHash returns the deterministic SHA-256 hex digest of data.
func (v *Vault) GenerateHash(data string) string {
	return crypto.Checksum([]byte(data))
}

// VerifyIntegrity reports whether data hashes to the given hex digest.
func (v *Vault) VerifyIntegrity(data, hash string) bool {
	computed := v.GenerateHash(data)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// GenerateToken returns a cryptographically random hex token of
// 2*byteLength characters. A byteLength of zero or less uses the
// 32-byte default.
func (v *Vault) GenerateToken(byteLength int) (string, error) {
	return crypto.RandomToken(byteLength)
}
