// Package checksum fingerprints stored blobs so a store can tell its own
// writes apart from changes made by someone else.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

const prefix = "sha256:"

// Sum returns the algorithm-prefixed SHA-256 digest of data.
// A missing blob (nil) and an empty one share a digest.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return prefix + hex.EncodeToString(h[:])
}

// Match reports whether data still has the digest sum.
func Match(sum string, data []byte) bool {
	return sum != "" && Sum(data) == sum
}
