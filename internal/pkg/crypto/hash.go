// Package crypto provides hashing helpers for the stories service.
package crypto

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ComputeMD5 computes the MD5 hash of a byte slice.
func ComputeMD5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}

// ETag returns the ETag in S3 format (quoted MD5).
func ETag(data []byte) string {
	return fmt.Sprintf("\"%s\"", ComputeMD5(data))
}

// TokenFingerprint derives a stable, non-reversible cache key component from a
// bearer token. The raw token is never stored.
func TokenFingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
