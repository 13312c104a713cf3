// Package checksum computes and compares SHA-256 digests for script content.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Policy controls whether verification is enforced for a given download.
// The zero value means verification is disabled.
type Policy struct {
	Verify bool
}

// Digest returns the lowercase hex SHA-256 digest of content.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Normalize lowercases a manifest checksum and strips an optional "sha256:"
// prefix so both spellings compare equal.
func Normalize(checksum string) string {
	c := strings.ToLower(strings.TrimSpace(checksum))
	return strings.TrimPrefix(c, "sha256:")
}

// Result reports the outcome of a verification. Skipped results are still OK;
// callers are expected to log the skip rather than treat it as a pass.
type Result struct {
	OK       bool
	Skipped  bool
	Expected string
	Actual   string
}

// Verify compares content against the expected digest under policy. An empty
// expected digest or a disabled policy succeeds trivially and is reported as
// skipped. Mismatches carry both digests for diagnosis.
func Verify(content []byte, expected string, policy Policy) Result {
	normalized := Normalize(expected)
	if !policy.Verify || normalized == "" {
		return Result{OK: true, Skipped: true, Expected: normalized}
	}
	actual := Digest(content)
	return Result{OK: actual == normalized, Expected: normalized, Actual: actual}
}
