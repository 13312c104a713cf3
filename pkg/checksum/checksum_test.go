package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigest(t *testing.T) {
	// sha256 of the empty string is a well-known constant.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Digest(nil))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Digest([]byte{}))

	// Digest is stable and lowercase hex.
	d := Digest([]byte("#!/bin/sh\necho hi\n"))
	assert.Len(t, d, 64)
	assert.Equal(t, d, Digest([]byte("#!/bin/sh\necho hi\n")))
	assert.NotEqual(t, d, Digest([]byte("#!/bin/sh\necho bye\n")))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase passthrough", "abc123", "abc123"},
		{"uppercase folded", "ABC123", "abc123"},
		{"sha256 prefix stripped", "sha256:ABC123", "abc123"},
		{"prefix case insensitive", "SHA256:def456", "def456"},
		{"surrounding whitespace trimmed", "  abc123  ", "abc123"},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestVerify(t *testing.T) {
	content := []byte("echo hello\n")
	good := Digest(content)

	t.Run("match", func(t *testing.T) {
		res := Verify(content, good, Policy{Verify: true})
		assert.True(t, res.OK)
		assert.False(t, res.Skipped)
		assert.Equal(t, good, res.Actual)
	})

	t.Run("match with prefix and uppercase", func(t *testing.T) {
		res := Verify(content, "sha256:"+good, Policy{Verify: true})
		assert.True(t, res.OK)
		assert.False(t, res.Skipped)
	})

	t.Run("mismatch carries both digests", func(t *testing.T) {
		res := Verify(content, Digest([]byte("other")), Policy{Verify: true})
		assert.False(t, res.OK)
		assert.False(t, res.Skipped)
		assert.NotEmpty(t, res.Expected)
		assert.Equal(t, good, res.Actual)
	})

	t.Run("empty expected digest is a skip not a pass", func(t *testing.T) {
		res := Verify(content, "", Policy{Verify: true})
		assert.True(t, res.OK)
		assert.True(t, res.Skipped)
	})

	t.Run("disabled policy skips", func(t *testing.T) {
		res := Verify(content, good, Policy{Verify: false})
		assert.True(t, res.OK)
		assert.True(t, res.Skipped)
	})
}
