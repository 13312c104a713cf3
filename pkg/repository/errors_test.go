package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFound(t *testing.T) {
	notFound := &NotFoundError{ID: "ghost"}
	wrapped := fmt.Errorf("lookup failed: %w", notFound)

	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsNotFound(errors.New("other")))
	assert.False(t, IsNotFound(nil))

	assert.Contains(t, notFound.Error(), "ghost")
}

func TestIsChecksumMismatch(t *testing.T) {
	mismatch := &ChecksumMismatchError{ID: "bad", URL: "https://x/bad.sh", Expected: "aaa", Actual: "bbb"}
	wrapped := fmt.Errorf("download failed: %w", mismatch)

	assert.True(t, IsChecksumMismatch(mismatch))
	assert.True(t, IsChecksumMismatch(wrapped))
	assert.False(t, IsChecksumMismatch(errors.New("other")))

	msg := mismatch.Error()
	assert.Contains(t, msg, "aaa")
	assert.Contains(t, msg, "bbb")
}

func TestWriteErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	we := &WriteError{ID: "a", Path: "tools/a.sh", Wrapped: cause}

	assert.ErrorIs(t, we, cause)
	assert.Contains(t, we.Error(), "disk full")
}
