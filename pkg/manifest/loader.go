package manifest

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/scriptdepot/pkg/buildinfo"
	"github.com/fulmenhq/scriptdepot/pkg/configstore"
	"github.com/fulmenhq/scriptdepot/pkg/logger"
	"github.com/fulmenhq/scriptdepot/pkg/safeio"
)

const (
	// FetchTimeout bounds every manifest and script HTTP request. It is a
	// transport timeout per request, not an overall-operation deadline.
	FetchTimeout = 30 * time.Second

	// PublicManifestURL is the default public repository manifest.
	PublicManifestURL = "https://raw.githubusercontent.com/fulmenhq/scriptdepot-manifests/main/manifest.json"
)

// Loader fetches one source and normalizes its script list.
type Loader struct {
	cfg     *configstore.Store
	fetcher HTTPFetcher
}

// NewLoader creates a loader with a production HTTP client.
func NewLoader(cfg *configstore.Store) *Loader {
	client := &http.Client{
		Timeout: FetchTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
	return NewLoaderWithFetcher(cfg, NewRealHTTPFetcher(client))
}

// NewLoaderWithFetcher creates a loader with injectable HTTP for testing.
func NewLoaderWithFetcher(cfg *configstore.Store, fetcher HTTPFetcher) *Loader {
	return &Loader{cfg: cfg, fetcher: fetcher}
}

// Fetcher exposes the loader's HTTP fetcher so the repository engine can
// share one transport for script downloads.
func (l *Loader) Fetcher() HTTPFetcher {
	return l.fetcher
}

// LoadOptions tune a single load.
type LoadOptions struct {
	// ForceRefresh bypasses the short-lived on-disk manifest cache.
	ForceRefresh bool
}

// Load fetches and normalizes one source with default options.
func (l *Loader) Load(src Source) ([]Entry, error) {
	return l.LoadWithOptions(src, LoadOptions{})
}

// LoadWithOptions fetches and normalizes one source.
func (l *Loader) LoadWithOptions(src Source, opts LoadOptions) ([]Entry, error) {
	switch src.Kind {
	case SourcePublic, SourceCustomRemote:
		data, err := l.fetchRemote(src, opts)
		if err != nil {
			return nil, err
		}
		return l.parseManifest(src, data, "json")
	case SourceCustomLocalFile:
		location, err := safeio.CleanUserPath(src.Location)
		if err != nil {
			return nil, fmt.Errorf("rejecting manifest file path %s: %w", src.Location, err)
		}
		data, err := os.ReadFile(location) // #nosec G304 -- path cleaned and traversal rejected above
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest file %s: %w", location, err)
		}
		return l.parseManifest(src, data, formatForPath(location))
	case SourceCustomDirectory:
		return l.scanDirectory(src)
	case SourceCustomGit:
		data, format, err := l.loadGit(src, opts)
		if err != nil {
			return nil, err
		}
		return l.parseManifest(src, data, format)
	default:
		return nil, fmt.Errorf("unsupported manifest source kind: %s", src.Kind)
	}
}

func formatForPath(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// parseManifest validates and normalizes raw manifest bytes. YAML documents
// are converted to JSON first so one validation and normalization path
// serves both.
func (l *Loader) parseManifest(src Source, data []byte, format string) ([]Entry, error) {
	if format == "yaml" {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, &CorruptError{Source: src.Name, Reason: "invalid YAML", Wrapped: err}
		}
		data = converted
	}

	if err := ValidateDocument(data); err != nil {
		return nil, &CorruptError{Source: src.Name, Reason: "not a manifest", Wrapped: err}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CorruptError{Source: src.Name, Reason: "invalid JSON", Wrapped: err}
	}
	if !doc.Accepted() {
		return nil, &CorruptError{Source: src.Name, Reason: "missing version and scripts markers"}
	}

	entries, dropped := EntriesFromDocument(src, &doc)
	for _, d := range dropped {
		logger.Warn("dropping malformed manifest entry",
			logger.String("source", src.Name),
			logger.String("id", d.ID),
			logger.String("reason", d.Reason))
	}

	if src.Kind == SourcePublic {
		l.writeMetadata(&doc, entries)
	}

	return entries, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// fetchRemote performs the HTTP GET for public and custom-remote sources,
// honoring the manifest cache age window measured from the cache file's
// modification time.
func (l *Loader) fetchRemote(src Source, opts LoadOptions) ([]byte, error) {
	cachePath := l.cachePathFor(src)

	if !opts.ForceRefresh && cachePath != "" {
		maxAge := time.Duration(l.manifestCacheMaxAge()) * time.Second
		if st, err := os.Stat(cachePath); err == nil && maxAge > 0 && time.Since(st.ModTime()) <= maxAge {
			if data, err := os.ReadFile(cachePath); err == nil { // #nosec G304 -- path derived from depot home
				logger.Debug("using cached manifest",
					logger.String("source", src.Name),
					logger.String("path", cachePath))
				return data, nil
			}
		}
	}

	req, err := http.NewRequest(http.MethodGet, src.Location, nil)
	if err != nil {
		return nil, &NetworkError{Source: src.Name, URL: src.Location, Wrapped: err}
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := l.fetcher.Do(req)
	if err != nil {
		return nil, &NetworkError{Source: src.Name, URL: src.Location, Wrapped: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{
			Source:  src.Name,
			URL:     src.Location,
			Wrapped: fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Source: src.Name, URL: src.Location, Wrapped: err}
	}

	if cachePath != "" {
		// Best-effort: a failed cache write must not fail the load.
		if err := os.MkdirAll(filepath.Dir(cachePath), 0o750); err == nil {
			if err := safeio.WriteFileAtomic(cachePath, data, 0o644); err != nil {
				logger.Debug("failed to cache manifest", logger.String("source", src.Name), logger.Err(err))
			}
		}
	}

	return data, nil
}

func (l *Loader) cachePathFor(src Source) string {
	if l.cfg == nil {
		return ""
	}
	switch src.Kind {
	case SourcePublic:
		return l.cfg.ManifestCachePath()
	case SourceCustomRemote:
		return filepath.Join(l.cfg.CustomManifestDir(), src.Name+".json")
	default:
		return ""
	}
}

func (l *Loader) manifestCacheMaxAge() int {
	if l.cfg == nil {
		return 0
	}
	m, err := l.cfg.Get(false)
	if err != nil {
		return 0
	}
	return configstore.IntValue(m, configstore.KeyManifestCacheMaxAge)
}

// Metadata records the last successful public manifest fetch. Informational
// only: the manifest itself stays the source of truth for checksums.
type Metadata struct {
	LastFetch       time.Time `json:"last_fetch"`
	ManifestVersion string    `json:"manifest_version"`
	CachedScripts   []string  `json:"cached_scripts"`
}

func (l *Loader) writeMetadata(doc *Document, entries []Entry) {
	if l.cfg == nil {
		return
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	meta := Metadata{
		LastFetch:       time.Now().UTC(),
		ManifestVersion: doc.DocVersion(),
		CachedScripts:   ids,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return
	}
	if err := safeio.WriteFileAtomic(l.cfg.MetadataPath(), data, 0o644); err != nil {
		logger.Debug("failed to write manifest metadata", logger.Err(err))
	}
}
