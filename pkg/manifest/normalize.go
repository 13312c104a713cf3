package manifest

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/fulmenhq/scriptdepot/pkg/checksum"
)

// rawEntry is the wire shape of one script entry, including every legacy
// field alias seen in older manifests. Normalization resolves the aliases
// once so nothing downstream has to guess.
type rawEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Version      string `json:"version"`
	Category     string `json:"category"`
	FileName     string `json:"file_name"`
	DownloadURL  string `json:"download_url"`
	Path         string `json:"path"` // legacy alias for file_name/download_url
	Checksum     string `json:"checksum"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

// Dropped records one entry removed during normalization and why. A malformed
// entry never blocks the rest of the manifest.
type Dropped struct {
	ID     string
	Reason string
}

// EntriesFromDocument flattens a document's scripts into canonical entries.
// The scripts field may be a flat list or a map from category name to list;
// both forms yield the same entries, with category set per-entry from the map
// key in the nested form.
func EntriesFromDocument(src Source, doc *Document) ([]Entry, []Dropped) {
	var entries []Entry
	var dropped []Dropped

	appendEntry := func(raw rawEntry, categoryKey string) {
		entry, reason := normalizeEntry(src, doc, raw, categoryKey)
		if reason != "" {
			dropped = append(dropped, Dropped{ID: raw.ID, Reason: reason})
			return
		}
		entries = append(entries, entry)
	}

	if len(doc.Scripts) > 0 {
		var flat []rawEntry
		if err := json.Unmarshal(doc.Scripts, &flat); err == nil {
			for _, raw := range flat {
				appendEntry(raw, "")
			}
		} else {
			var nested map[string][]rawEntry
			if err := json.Unmarshal(doc.Scripts, &nested); err == nil {
				for category, list := range nested {
					for _, raw := range list {
						appendEntry(raw, category)
					}
				}
			} else {
				dropped = append(dropped, Dropped{Reason: "scripts field is neither a list nor a map of lists"})
			}
		}
	}

	entries = append(entries, includesEntries(src, doc)...)
	return entries, dropped
}

func normalizeEntry(src Source, doc *Document, raw rawEntry, categoryKey string) (Entry, string) {
	if raw.ID == "" {
		return Entry{}, "missing id"
	}

	fileName := raw.FileName
	if fileName == "" && looksLikeFileName(raw.Name) {
		fileName = raw.Name
	}
	if fileName == "" && raw.Path != "" {
		fileName = path.Base(raw.Path)
	}
	if fileName == "" {
		return Entry{}, "missing file_name"
	}

	downloadURL := raw.DownloadURL
	if downloadURL == "" {
		downloadURL = raw.Path
	}
	if downloadURL == "" {
		return Entry{}, "missing download_url"
	}

	category := Category(categoryKey)
	if category == "" {
		category = Category(raw.Category)
	}
	if category == "" {
		return Entry{}, "missing category"
	}
	if !category.SafeDirName() {
		return Entry{}, fmt.Sprintf("category %q is not usable as a cache directory", category)
	}

	return Entry{
		ID:           raw.ID,
		Name:         raw.Name,
		Description:  raw.Description,
		Version:      raw.Version,
		Category:     category,
		FileName:     fileName,
		DownloadURL:  downloadURL,
		Checksum:     checksum.Normalize(raw.Checksum),
		Size:         raw.Size,
		LastModified: raw.LastModified,
		SourceName:   src.Name,
		VerifyOverride: func() *bool {
			if src.VerifyChecksums != nil {
				return src.VerifyChecksums
			}
			return doc.VerifyChecksums
		}(),
	}, ""
}

// includesEntries synthesizes entries for auxiliary files a manifest asks to
// keep alongside its scripts. They resolve against repository_url and are
// never checksummed (the manifest carries no digest for them).
func includesEntries(src Source, doc *Document) []Entry {
	if doc.RepositoryURL == "" || len(doc.IncludesFiles) == 0 {
		return nil
	}
	base := strings.TrimRight(doc.RepositoryURL, "/")
	entries := make([]Entry, 0, len(doc.IncludesFiles))
	for _, name := range doc.IncludesFiles {
		if name == "" || strings.ContainsAny(name, "/\\") {
			continue
		}
		entries = append(entries, Entry{
			ID:          "includes/" + name,
			Name:        name,
			Description: "Auxiliary include file",
			Category:    CategoryIncludes,
			FileName:    name,
			DownloadURL: base + "/includes/" + name,
			SourceName:  src.Name,
			VerifyOverride: func() *bool {
				if src.VerifyChecksums != nil {
					return src.VerifyChecksums
				}
				return doc.VerifyChecksums
			}(),
		})
	}
	return entries
}

// looksLikeFileName treats a legacy name alias as a file name only when it
// has an extension and no spaces, so display names don't get misread.
func looksLikeFileName(name string) bool {
	return name != "" && !strings.Contains(name, " ") && strings.Contains(name, ".")
}
