package configstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment overrides recognized by scriptdepot.
const (
	// EnvHome relocates the depot home directory.
	EnvHome = "SCRIPTDEPOT_HOME"
	// EnvManifestURL supplies a custom manifest URL that takes precedence
	// over the persisted custom_manifest_url value.
	EnvManifestURL = "SCRIPTDEPOT_MANIFEST_URL"
	// EnvNoLocal force-disables local-repository auto-detection, failing
	// toward remote-only behavior.
	EnvNoLocal = "SCRIPTDEPOT_NO_LOCAL"
)

// DepotHome returns the scriptdepot home directory
func DepotHome() (string, error) {
	// Check environment variable first
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}

	// Use standard dev tool convention: ~/.scriptdepot
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %v", err)
	}

	return filepath.Join(homeDir, ".scriptdepot"), nil
}

// EnsureDepotHome creates the depot home directory if it doesn't exist
func EnsureDepotHome() (string, error) {
	homeDir, err := DepotHome()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(homeDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create depot home directory: %v", err)
	}

	return homeDir, nil
}

// CacheDir returns the script cache root, one subdirectory per category.
func (s *Store) CacheDir() string {
	return filepath.Join(s.home, "script_cache")
}

// LogDir returns the log directory.
func (s *Store) LogDir() string {
	return filepath.Join(s.home, "logs")
}

// LogFilePath returns the append-only repository log file.
func (s *Store) LogFilePath() string {
	return filepath.Join(s.LogDir(), "repository.log")
}

// CustomManifestDir returns the directory holding imported custom manifests.
func (s *Store) CustomManifestDir() string {
	return filepath.Join(s.home, "custom_manifests")
}

// GitSourceDir returns the directory holding cloned git manifest sources.
func (s *Store) GitSourceDir() string {
	return filepath.Join(s.home, "git_sources")
}

// ManifestCachePath returns the on-disk copy of the last public manifest fetch.
func (s *Store) ManifestCachePath() string {
	return filepath.Join(s.home, "manifest.json")
}

// MetadataPath returns the manifest metadata record path.
func (s *Store) MetadataPath() string {
	return filepath.Join(s.home, "manifest_metadata.json")
}

// ConfigPath returns the persisted configuration file path.
func (s *Store) ConfigPath() string {
	return filepath.Join(s.home, "config.json")
}
