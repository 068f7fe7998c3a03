// Package digest computes the content digests used for exact duplicate
// detection. Digests are lowercase hex SHA-1; only equality matters.
package digest

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
)

// Size is the length of a hex digest string.
const Size = sha1.Size * 2

// Reader streams r to completion and returns its digest.
func Reader(r io.Reader) (string, error) {
	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes returns the digest of b.
func Bytes(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// Valid reports whether s looks like a digest produced by this package.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
