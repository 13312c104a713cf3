// Package repository merges entries from every configured manifest source
// into one de-duplicated view and exposes lookup, download, and update
// operations over the local script cache.
package repository

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fulmenhq/scriptdepot/pkg/cachestore"
	"github.com/fulmenhq/scriptdepot/pkg/checksum"
	"github.com/fulmenhq/scriptdepot/pkg/configstore"
	"github.com/fulmenhq/scriptdepot/pkg/logger"
	"github.com/fulmenhq/scriptdepot/pkg/manifest"

	"github.com/fulmenhq/scriptdepot/pkg/buildinfo"
)

// LegacySourceName identifies the single custom_manifest_url source. When
// both the legacy URL and the custom_manifests registry are configured, the
// legacy URL is registered first among custom sources, so it wins merge
// precedence over registry entries.
const LegacySourceName = "legacy-custom"

// Engine is the repository core. It is synchronous and blocking: every
// network and filesystem operation runs on the calling goroutine, bounded by
// a 30-second transport timeout per HTTP request. Callers own any
// backgrounding and per-id serialization of concurrent downloads.
type Engine struct {
	cfg    *configstore.Store
	loader *manifest.Loader
	cache  *cachestore.Store
}

// New creates an engine with production parts rooted at the store's home.
func New(cfg *configstore.Store) *Engine {
	return &Engine{
		cfg:    cfg,
		loader: manifest.NewLoader(cfg),
		cache:  cachestore.New(cfg.CacheDir()),
	}
}

// NewWithParts creates an engine with injectable loader and cache for tests.
func NewWithParts(cfg *configstore.Store, loader *manifest.Loader, cache *cachestore.Store) *Engine {
	return &Engine{cfg: cfg, loader: loader, cache: cache}
}

// Cache exposes the underlying cache store.
func (e *Engine) Cache() *cachestore.Store {
	return e.cache
}

// Sources returns the active manifest sources in registration order: the
// public source (if enabled), then the legacy custom URL (if set), then the
// registered custom sources by name.
func (e *Engine) Sources() ([]manifest.Source, error) {
	m, err := e.cfg.Get(false)
	if err != nil {
		return nil, err
	}

	var sources []manifest.Source

	if configstore.BoolValue(m, configstore.KeyUsePublicRepository) {
		sources = append(sources, manifest.Source{
			Name:     "public",
			Kind:     manifest.SourcePublic,
			Location: manifest.PublicManifestURL,
		})
	}

	if legacy := configstore.StringValue(m, configstore.KeyCustomManifestURL); legacy != "" {
		sources = append(sources, manifest.Source{
			Name:     LegacySourceName,
			Kind:     manifest.SourceCustomRemote,
			Location: legacy,
		})
	}

	customs, err := e.cfg.CustomManifests()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(customs))
	for name := range customs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cm := customs[name]
		sources = append(sources, manifest.Source{
			Name:            name,
			Kind:            SourceKindFor(cm.Kind),
			Location:        cm.Location,
			VerifyChecksums: cm.VerifyChecksums,
		})
	}

	return sources, nil
}

// SourceKindFor resolves a configured kind string, including its short
// aliases, to a manifest source kind. Unknown kinds fall back to
// custom-remote.
func SourceKindFor(kind string) manifest.SourceKind {
	switch strings.ToLower(kind) {
	case "file", "local", string(manifest.SourceCustomLocalFile):
		return manifest.SourceCustomLocalFile
	case "dir", "directory", string(manifest.SourceCustomDirectory):
		return manifest.SourceCustomDirectory
	case "git", string(manifest.SourceCustomGit):
		return manifest.SourceCustomGit
	default:
		return manifest.SourceCustomRemote
	}
}

// MergedEntries loads every enabled source and concatenates their entries in
// source-registration order. The first occurrence of an id wins; duplicates
// are dropped with a warning. One failing source never aborts the others.
func (e *Engine) MergedEntries() ([]manifest.Entry, error) {
	return e.mergedEntries(false)
}

func (e *Engine) mergedEntries(forceRefresh bool) ([]manifest.Entry, error) {
	sources, err := e.Sources()
	if err != nil {
		return nil, err
	}

	var merged []manifest.Entry
	seen := make(map[string]string) // id -> source name

	for _, src := range sources {
		entries, err := e.loader.LoadWithOptions(src, manifest.LoadOptions{ForceRefresh: forceRefresh})
		if err != nil {
			logger.Warn("skipping manifest source",
				logger.String("source", src.Name),
				logger.Err(err))
			continue
		}
		for _, entry := range entries {
			if firstSource, dup := seen[entry.ID]; dup {
				logger.Warn("dropping duplicate manifest entry",
					logger.String("id", entry.ID),
					logger.String("kept_source", firstSource),
					logger.String("dropped_source", src.Name))
				continue
			}
			seen[entry.ID] = src.Name
			merged = append(merged, entry)
		}
	}

	return merged, nil
}

// FindByID returns the merged entry with the given id.
func (e *Engine) FindByID(id string) (manifest.Entry, bool) {
	entries, err := e.MergedEntries()
	if err != nil {
		return manifest.Entry{}, false
	}
	for _, entry := range entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return manifest.Entry{}, false
}

// FindByFileName returns the first merged entry with the given file name.
func (e *Engine) FindByFileName(name string) (manifest.Entry, bool) {
	entries, err := e.MergedEntries()
	if err != nil {
		return manifest.Entry{}, false
	}
	for _, entry := range entries {
		if entry.FileName == name {
			return entry, true
		}
	}
	return manifest.Entry{}, false
}

// DownloadResult is the structured outcome of one download. Failures are
// returned here, never panicked, so callers can render per-script status
// without aborting a batch.
type DownloadResult struct {
	Success     bool
	ResolvedURL string
	Path        string
	Err         error
}

// Download resolves an entry, fetches its content, verifies the checksum
// under the entry's effective policy, and writes it into the cache.
//
// For http(s) URLs a verification failure is retried exactly once with a
// cache-busting query parameter to defeat stale CDN caching; a second
// failure is terminal. file-scheme URLs are read directly with no network
// and no retry, but verification still applies.
func (e *Engine) Download(id string) DownloadResult {
	entry, ok := e.FindByID(id)
	if !ok {
		return DownloadResult{Err: &NotFoundError{ID: id}}
	}
	res := e.downloadEntry(entry)
	if res.Success && entry.Category != manifest.CategoryIncludes {
		e.fetchIncludes(entry.SourceName)
	}
	return res
}

// fetchIncludes pulls a source's auxiliary include files into the cache
// after one of its scripts was installed. Best-effort: include failures are
// logged and never fail the script download that triggered them.
func (e *Engine) fetchIncludes(sourceName string) {
	entries, err := e.MergedEntries()
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.Category != manifest.CategoryIncludes || entry.SourceName != sourceName {
			continue
		}
		if e.IsCached(entry) {
			continue
		}
		if res := e.downloadEntry(entry); !res.Success {
			logger.Warn("failed to fetch include file",
				logger.String("id", entry.ID),
				logger.Err(res.Err))
		}
	}
}

func (e *Engine) downloadEntry(entry manifest.Entry) DownloadResult {
	switch {
	case entry.DownloadURL == "":
		return DownloadResult{Err: &IncompleteEntryError{ID: entry.ID, Missing: "download_url"}}
	case entry.FileName == "":
		return DownloadResult{Err: &IncompleteEntryError{ID: entry.ID, Missing: "file_name"}}
	case entry.Category == "":
		return DownloadResult{Err: &IncompleteEntryError{ID: entry.ID, Missing: "category"}}
	}

	policy := e.verifyPolicy(entry)
	resolvedURL := entry.DownloadURL

	var content []byte
	if strings.HasPrefix(entry.DownloadURL, "file://") {
		p := strings.TrimPrefix(entry.DownloadURL, "file://")
		data, err := os.ReadFile(p) // #nosec G304 -- path comes from a configured manifest source
		if err != nil {
			return DownloadResult{Err: &manifest.NetworkError{Source: entry.SourceName, URL: entry.DownloadURL, Wrapped: err}}
		}
		content = data

		res := checksum.Verify(content, entry.Checksum, policy)
		logSkipped(entry, res)
		if !res.OK {
			// No cache-busting for local files: the bytes will not change.
			return DownloadResult{Err: &ChecksumMismatchError{
				ID: entry.ID, URL: resolvedURL, Expected: res.Expected, Actual: res.Actual,
			}}
		}
	} else {
		data, err := e.fetchScript(entry, entry.DownloadURL)
		if err != nil {
			return DownloadResult{Err: err}
		}
		content = data

		res := checksum.Verify(content, entry.Checksum, policy)
		logSkipped(entry, res)
		if !res.OK {
			if !isHTTPURL(entry.DownloadURL) {
				return DownloadResult{Err: &ChecksumMismatchError{
					ID: entry.ID, URL: resolvedURL, Expected: res.Expected, Actual: res.Actual,
				}}
			}

			busted := cacheBustURL(entry.DownloadURL, time.Now().Unix())
			logger.Warn("checksum mismatch, retrying with cache-busting parameter",
				logger.String("id", entry.ID),
				logger.String("expected", res.Expected),
				logger.String("actual", res.Actual))

			retryData, err := e.fetchScript(entry, busted)
			if err != nil {
				return DownloadResult{Err: err}
			}
			retryRes := checksum.Verify(retryData, entry.Checksum, policy)
			if !retryRes.OK {
				return DownloadResult{Err: &ChecksumMismatchError{
					ID: entry.ID, URL: busted, Expected: retryRes.Expected, Actual: retryRes.Actual,
				}}
			}
			content = retryData
			resolvedURL = busted
		}
	}

	path, err := e.cache.Write(string(entry.Category), entry.FileName, content)
	if err != nil {
		return DownloadResult{Err: &WriteError{ID: entry.ID, Path: path, Wrapped: err}}
	}

	logger.Info("script cached",
		logger.String("id", entry.ID),
		logger.String("path", path))

	return DownloadResult{Success: true, ResolvedURL: resolvedURL, Path: path}
}

func logSkipped(entry manifest.Entry, res checksum.Result) {
	if res.Skipped {
		logger.Info("checksum verification skipped",
			logger.String("id", entry.ID),
			logger.Bool("empty_checksum", res.Expected == ""))
	}
}

func (e *Engine) fetchScript(entry manifest.Entry, url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, &manifest.NetworkError{Source: entry.SourceName, URL: url, Wrapped: err}
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := e.loader.Fetcher().Do(req)
	if err != nil {
		return nil, &manifest.NetworkError{Source: entry.SourceName, URL: url, Wrapped: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &manifest.NetworkError{
			Source:  entry.SourceName,
			URL:     url,
			Wrapped: fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}

	return io.ReadAll(resp.Body)
}

func (e *Engine) verifyPolicy(entry manifest.Entry) checksum.Policy {
	if entry.VerifyOverride != nil {
		return checksum.Policy{Verify: *entry.VerifyOverride}
	}
	m, err := e.cfg.Get(false)
	if err != nil {
		// Fail toward verifying when config is unreadable.
		return checksum.Policy{Verify: true}
	}
	return checksum.Policy{Verify: configstore.BoolValue(m, configstore.KeyVerifyChecksums)}
}

func isHTTPURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func cacheBustURL(url string, unix int64) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%st=%d", url, sep, unix)
}

// IsCached reports whether the entry's file is already in the cache, trying
// its declared category first and falling back to a cross-category lookup so
// category moves don't read as missing.
func (e *Engine) IsCached(entry manifest.Entry) bool {
	if _, ok := e.cache.PathFor(string(entry.Category), entry.FileName); ok {
		return true
	}
	_, _, ok := e.cache.FallbackLookup(entry.FileName)
	return ok
}

// UpdateAll re-downloads every merged entry that is already cached. It
// updates, never newly installs.
func (e *Engine) UpdateAll() (updated, failed int) {
	entries, err := e.MergedEntries()
	if err != nil {
		logger.Error("failed to load merged entries for update", logger.Err(err))
		return 0, 0
	}
	for _, entry := range entries {
		if !e.IsCached(entry) {
			continue
		}
		res := e.downloadEntry(entry)
		if res.Success {
			updated++
		} else {
			failed++
			logger.Warn("failed to update cached script",
				logger.String("id", entry.ID),
				logger.Err(res.Err))
		}
	}
	return updated, failed
}

// RemoveCached deletes the cache entry for a resolved id. Returns false when
// the id is unknown or nothing was cached for it.
func (e *Engine) RemoveCached(id string) bool {
	entry, ok := e.FindByID(id)
	if !ok {
		return false
	}
	if e.cache.Remove(string(entry.Category), entry.FileName) {
		return true
	}
	if _, category, ok := e.cache.FallbackLookup(entry.FileName); ok {
		return e.cache.Remove(category, entry.FileName)
	}
	return false
}
