package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fulmenhq/scriptdepot/pkg/checksum"
	"github.com/fulmenhq/scriptdepot/pkg/logger"
)

// descriptorFileName is an optional per-directory descriptor that tunes a
// directory-scan source: default category, include/exclude globs, and
// per-script overrides.
const descriptorFileName = "depot.toml"

type dirDescriptor struct {
	Category string                    `toml:"category"`
	Include  []string                  `toml:"include"`
	Exclude  []string                  `toml:"exclude"`
	Scripts  map[string]scriptOverride `toml:"scripts"`
}

type scriptOverride struct {
	Category    string `toml:"category"`
	Description string `toml:"description"`
	Version     string `toml:"version"`
}

// headerScanLines bounds how far into a scanned script the header comments
// ("# Description:", "# Version:", "# Category:") are looked for.
const headerScanLines = 25

var titleCaser = cases.Title(language.English)

// scanDirectory walks a directory tree and synthesizes entries from
// discovered executable scripts. Only shebang-led files are considered
// scripts; metadata comes from leading comment headers, then descriptor
// overrides, then synthesis from the file name.
func (l *Loader) scanDirectory(src Source) ([]Entry, error) {
	root := src.Location
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan location %s is not a directory", root)
	}

	desc := readDescriptor(root)

	var entries []Entry
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Debug("skipping unreadable path during scan", logger.String("path", p), logger.Err(err))
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == descriptorFileName {
			return nil
		}
		if !desc.matches(rel) {
			return nil
		}

		content, err := os.ReadFile(p) // #nosec G304 -- path is inside the configured scan root
		if err != nil {
			logger.Debug("skipping unreadable script during scan", logger.String("path", p), logger.Err(err))
			return nil
		}
		if !bytes.HasPrefix(content, []byte("#!")) {
			return nil
		}

		entry := l.entryFromScript(src, desc, rel, p, content, d)
		entries = append(entries, entry)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", root, walkErr)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (l *Loader) entryFromScript(src Source, desc dirDescriptor, rel, abs string, content []byte, d fs.DirEntry) Entry {
	base := filepath.Base(rel)
	header := parseScriptHeader(content)
	override := desc.Scripts[rel]

	category := firstNonEmpty(override.Category, header.category, desc.Category, string(CategoryCustom))
	description := firstNonEmpty(override.Description, header.description, synthesizeDescription(base))
	version := firstNonEmpty(override.Version, header.version)

	var size int64
	var modified string
	if info, err := d.Info(); err == nil {
		size = info.Size()
		modified = info.ModTime().UTC().Format(time.RFC3339)
	}

	absPath, err := filepath.Abs(abs)
	if err != nil {
		absPath = abs
	}

	return Entry{
		ID:             idFromRelPath(rel),
		Name:           base,
		Description:    description,
		Version:        version,
		Category:       Category(category),
		FileName:       base,
		DownloadURL:    "file://" + filepath.ToSlash(absPath),
		Checksum:       checksum.Digest(content),
		Size:           size,
		LastModified:   modified,
		SourceName:     src.Name,
		VerifyOverride: src.VerifyChecksums,
	}
}

func readDescriptor(root string) dirDescriptor {
	var desc dirDescriptor
	data, err := os.ReadFile(filepath.Join(root, descriptorFileName)) // #nosec G304 -- fixed name inside the scan root
	if err != nil {
		return desc
	}
	if err := toml.Unmarshal(data, &desc); err != nil {
		logger.Warn("ignoring invalid depot.toml descriptor",
			logger.String("root", root), logger.Err(err))
		return dirDescriptor{}
	}
	return desc
}

func (d dirDescriptor) matches(rel string) bool {
	include := d.Include
	if len(include) == 0 {
		include = []string{"**"}
	}
	included := false
	for _, pattern := range include {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pattern := range d.Exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return false
		}
	}
	return true
}

type scriptHeader struct {
	description string
	version     string
	category    string
}

// parseScriptHeader reads metadata from a script's leading comment block.
// Scanning stops after headerScanLines lines or at the first non-comment,
// non-blank line.
func parseScriptHeader(content []byte) scriptHeader {
	var header scriptHeader
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for i := 0; scanner.Scan() && i < headerScanLines; i++ {
		line := strings.TrimSpace(scanner.Text())
		if i == 0 && strings.HasPrefix(line, "#!") {
			continue
		}
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		switch {
		case hasHeaderKey(body, "Description"):
			header.description = headerValue(body)
		case hasHeaderKey(body, "Version"):
			header.version = headerValue(body)
		case hasHeaderKey(body, "Category"):
			header.category = strings.ToLower(headerValue(body))
		}
	}
	return header
}

func hasHeaderKey(body, key string) bool {
	return len(body) > len(key) && strings.EqualFold(body[:len(key)], key) && strings.HasPrefix(body[len(key):], ":")
}

func headerValue(body string) string {
	if idx := strings.Index(body, ":"); idx >= 0 {
		return strings.TrimSpace(body[idx+1:])
	}
	return ""
}

// synthesizeDescription turns "backup_home.sh" into "Backup Home".
func synthesizeDescription(fileName string) string {
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return fileName
	}
	return titleCaser.String(name)
}

func idFromRelPath(rel string) string {
	id := strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(id, "/", "-")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
