package visits

import (
	"crypto/sha256"
	"encoding/hex"
)

const fingerprintLength = 16

// Anonymizer derives stable, non-reversible visitor fingerprints. Raw IPs
// never leave this package; only the truncated digest is stored.
type Anonymizer struct {
	salt string
}

func NewAnonymizer(salt string) *Anonymizer {
	return &Anonymizer{salt: salt}
}

// Fingerprint hashes salt+ip+userAgent and keeps the first 16 hex chars.
// The same inputs always map to the same fingerprint within a deployment.
func (a *Anonymizer) Fingerprint(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(a.salt + ip + userAgent))
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}
