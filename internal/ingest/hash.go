package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Digest computes the lowercase hex SHA-256 of everything readable from r.
// The reader is consumed in fixed-size chunks; callers streaming large media
// files never hold the whole payload in memory.
func Digest(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
