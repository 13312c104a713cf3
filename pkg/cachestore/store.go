// Package cachestore is the filesystem-backed script cache, keyed by
// (category, file name) with one subdirectory per category. The manifest
// stays the source of truth for what a cached file's checksum should be;
// the store only tracks existence and bytes.
package cachestore

import (
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/fulmenhq/scriptdepot/pkg/checksum"
	"github.com/fulmenhq/scriptdepot/pkg/logger"
)

// scriptMode sets the execute bits for cached scripts, matching 0755.
const scriptMode = os.FileMode(0o755)

// Store is a cache rooted at one directory. All paths handed to billy are
// relative to the root, which keeps the store working against memfs in tests.
type Store struct {
	fs   billy.Filesystem
	root string
}

// New creates a store rooted at the given directory.
func New(root string) *Store {
	return &Store{fs: osfs.New(root), root: root}
}

// NewWithFilesystem creates a store over an arbitrary billy filesystem,
// typically memfs for tests.
func NewWithFilesystem(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// Root returns the cache root directory ("" for in-memory stores).
func (s *Store) Root() string {
	return s.root
}

func (s *Store) displayPath(category, fileName string) string {
	if s.root != "" {
		return filepath.Join(s.root, category, fileName)
	}
	return path.Join(category, fileName)
}

// Write stores content at (category, fileName) atomically: the bytes land in
// a temp file first and are renamed into place, so a failed write never
// leaves a partial script. The file is created executable (0755).
func (s *Store) Write(category, fileName string, content []byte) (string, error) {
	if err := s.fs.MkdirAll(category, 0o755); err != nil {
		return "", err
	}

	tmp := path.Join(category, "."+fileName+".tmp")
	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, scriptMode)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return "", err
	}

	target := path.Join(category, fileName)
	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return "", err
	}

	return s.displayPath(category, fileName), nil
}

// PathFor reports whether (category, fileName) exists and where. Existence
// check only; content is not read.
func (s *Store) PathFor(category, fileName string) (string, bool) {
	if _, err := s.fs.Stat(path.Join(category, fileName)); err != nil {
		return "", false
	}
	return s.displayPath(category, fileName), true
}

// FallbackLookup scans every category subdirectory for a file with the given
// name and returns the first match. A manifest moving an entry to a new
// category must not orphan the already-cached file.
func (s *Store) FallbackLookup(fileName string) (string, string, bool) {
	dirs, err := s.fs.ReadDir(".")
	if err != nil {
		return "", "", false
	}
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		if _, err := s.fs.Stat(path.Join(dir.Name(), fileName)); err == nil {
			return s.displayPath(dir.Name(), fileName), dir.Name(), true
		}
	}
	return "", "", false
}

// Read returns the cached bytes for (category, fileName).
func (s *Store) Read(category, fileName string) ([]byte, error) {
	return util.ReadFile(s.fs, path.Join(category, fileName))
}

// Digest returns the SHA-256 digest of the cached bytes.
func (s *Store) Digest(category, fileName string) (string, error) {
	content, err := s.Read(category, fileName)
	if err != nil {
		return "", err
	}
	return checksum.Digest(content), nil
}

// Remove deletes a cached file if present. Absence is not an error.
func (s *Store) Remove(category, fileName string) bool {
	if err := s.fs.Remove(path.Join(category, fileName)); err != nil {
		return false
	}
	return true
}

// Clear deletes every file under every category directory and returns how
// many were removed. The category directories themselves are retained.
func (s *Store) Clear() int {
	dirs, err := s.fs.ReadDir(".")
	if err != nil {
		return 0
	}
	removed := 0
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		files, err := s.fs.ReadDir(dir.Name())
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			p := path.Join(dir.Name(), f.Name())
			if err := s.fs.Remove(p); err != nil {
				logger.Warn("failed to remove cached script", logger.String("path", p), logger.Err(err))
				continue
			}
			removed++
		}
	}
	return removed
}
