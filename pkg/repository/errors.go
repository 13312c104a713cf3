package repository

import (
	"errors"
	"fmt"
)

// NotFoundError indicates an id or file name that resolves to no entry in
// the merged manifest view.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("script %q not found in any configured source", e.ID)
}

// IsNotFound checks if an error is a not-found error
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IncompleteEntryError indicates a manifest entry missing a required field.
// Entries like this are normally dropped at load time; this error covers an
// entry that slipped through with an empty url, category, or file name.
type IncompleteEntryError struct {
	ID      string
	Missing string
}

func (e *IncompleteEntryError) Error() string {
	return fmt.Sprintf("manifest entry %q is missing %s", e.ID, e.Missing)
}

// ChecksumMismatchError is terminal after at most one cache-busting retry.
// Both digests are always included for diagnosis.
type ChecksumMismatchError struct {
	ID       string
	URL      string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %q from %s: expected %s, got %s",
		e.ID, e.URL, e.Expected, e.Actual)
}

// IsChecksumMismatch checks if an error is a checksum mismatch
func IsChecksumMismatch(err error) bool {
	var mismatch *ChecksumMismatchError
	return errors.As(err, &mismatch)
}

// WriteError indicates a filesystem failure writing to the cache. The cache
// is left in its prior state; no partial file is retained.
type WriteError struct {
	ID      string
	Path    string
	Wrapped error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %q to cache (%s): %v", e.ID, e.Path, e.Wrapped)
}

func (e *WriteError) Unwrap() error {
	return e.Wrapped
}
