// Package manifest loads and normalizes script manifests from heterogeneous
// sources: the public repository, custom remote URLs, local files, scanned
// directories, and git repositories. Whatever the source shape, loading
// always yields a flat list of canonical entries.
package manifest

import (
	"encoding/json"
	"strings"
)

// Category classifies a script within the repository.
type Category string

const (
	CategoryInstall   Category = "install"
	CategoryTools     Category = "tools"
	CategoryExercises Category = "exercises"
	CategoryUninstall Category = "uninstall"
	CategoryIncludes  Category = "includes"
	CategoryCustom    Category = "custom"
)

// Known returns true for the enumerated categories. Custom manifests may
// introduce their own category names; those are kept as long as they are
// safe to use as a directory name.
func (c Category) Known() bool {
	switch c {
	case CategoryInstall, CategoryTools, CategoryExercises, CategoryUninstall, CategoryIncludes, CategoryCustom:
		return true
	}
	return false
}

// SafeDirName reports whether the category can serve as a cache subdirectory.
func (c Category) SafeDirName() bool {
	s := string(c)
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\")
}

// SourceKind identifies where a manifest comes from.
type SourceKind string

const (
	SourcePublic          SourceKind = "public"
	SourceCustomRemote    SourceKind = "custom-remote"
	SourceCustomLocalFile SourceKind = "custom-local-file"
	SourceCustomDirectory SourceKind = "custom-directory-scan"
	SourceCustomGit       SourceKind = "custom-git"
)

// Source describes one origin of a manifest and its verification policy.
// VerifyChecksums, when non-nil, overrides the global default for every
// entry loaded from this source.
type Source struct {
	Name            string
	Kind            SourceKind
	Location        string
	VerifyChecksums *bool
}

// Entry is one script's canonical metadata after normalization. Legacy field
// aliases and nested-by-category shapes are resolved at load time; everything
// downstream consumes this shape only.
type Entry struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Description  string   `json:"description,omitempty"`
	Version      string   `json:"version,omitempty"`
	Category     Category `json:"category"`
	FileName     string   `json:"file_name"`
	DownloadURL  string   `json:"download_url"`
	Checksum     string   `json:"checksum,omitempty"`
	Size         int64    `json:"size,omitempty"`
	LastModified string   `json:"last_modified,omitempty"`

	// SourceName records which source the entry came from; VerifyOverride
	// carries the source- or document-level checksum policy, nil meaning
	// "inherit the global default".
	SourceName     string `json:"-"`
	VerifyOverride *bool  `json:"-"`
}

// Document is the top-level manifest shape. An object missing both version
// markers and scripts is not accepted as a manifest.
type Document struct {
	RepositoryVersion string          `json:"repository_version"`
	Version           string          `json:"version"`
	RepositoryURL     string          `json:"repository_url"`
	VerifyChecksums   *bool           `json:"verify_checksums"`
	Scripts           json.RawMessage `json:"scripts"`
	IncludesFiles     []string        `json:"includes_files"`
}

// Accepted reports whether the object carries at least one manifest marker.
func (d *Document) Accepted() bool {
	return d.RepositoryVersion != "" || d.Version != "" || len(d.Scripts) > 0
}

// DocVersion returns the manifest version, preferring repository_version.
func (d *Document) DocVersion() string {
	if d.RepositoryVersion != "" {
		return d.RepositoryVersion
	}
	return d.Version
}
