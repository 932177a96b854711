// Package checksum fingerprints article sources.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag formats a digest as a strong HTTP entity tag.
func ETag(sum string) string {
	return strconv.Quote(sum)
}
