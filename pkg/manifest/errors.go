package manifest

import (
	"errors"
	"fmt"
)

// NetworkError indicates a transport failure while fetching a manifest or
// script content.
type NetworkError struct {
	Source  string // source name (e.g. "public")
	URL     string // URL that failed
	Wrapped error  // underlying error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching from %s (%s): %v", e.Source, e.URL, e.Wrapped)
}

func (e *NetworkError) Unwrap() error {
	return e.Wrapped
}

// IsNetworkError checks if an error is a network error
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// CorruptError indicates a document that could not be accepted as a manifest:
// invalid JSON/YAML, or an object missing both version and scripts markers.
// The whole source is skipped; other sources still load.
type CorruptError struct {
	Source  string
	Reason  string
	Wrapped error
}

func (e *CorruptError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("corrupt manifest from %s: %s: %v", e.Source, e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("corrupt manifest from %s: %s", e.Source, e.Reason)
}

func (e *CorruptError) Unwrap() error {
	return e.Wrapped
}

// IsCorruptError checks if an error marks a corrupt manifest
func IsCorruptError(err error) bool {
	var corruptErr *CorruptError
	return errors.As(err, &corruptErr)
}
