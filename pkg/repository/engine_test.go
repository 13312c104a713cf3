package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/scriptdepot/pkg/cachestore"
	"github.com/fulmenhq/scriptdepot/pkg/checksum"
	"github.com/fulmenhq/scriptdepot/pkg/configstore"
	"github.com/fulmenhq/scriptdepot/pkg/manifest"
)

type scriptFixture struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	FileName string `json:"file_name"`
	URL      string `json:"download_url"`
	Checksum string `json:"checksum,omitempty"`
}

func manifestJSON(t *testing.T, scripts ...scriptFixture) string {
	t.Helper()
	doc := map[string]interface{}{
		"repository_version": "1.0",
		"scripts":            scripts,
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(data)
}

func newTestEngine(t *testing.T) (*Engine, *manifest.MockHTTPFetcher, *configstore.Store) {
	t.Helper()
	cfg := configstore.New(t.TempDir())
	fetcher := manifest.NewMockHTTPFetcher()
	loader := manifest.NewLoaderWithFetcher(cfg, fetcher)
	cache := cachestore.NewWithFilesystem(memfs.New())
	return NewWithParts(cfg, loader, cache), fetcher, cfg
}

func scriptEntry(id string, body string) scriptFixture {
	return scriptFixture{
		ID:       id,
		Category: "tools",
		FileName: id + ".sh",
		URL:      "https://example.com/scripts/" + id + ".sh",
		Checksum: checksum.Digest([]byte(body)),
	}
}

func TestSourcesOrdering(t *testing.T) {
	engine, _, cfg := newTestEngine(t)

	require.NoError(t, cfg.Set(configstore.KeyCustomManifestURL, "https://legacy.example.com/manifest.json"))
	require.NoError(t, cfg.RegisterCustomManifest("beta", configstore.CustomManifest{Kind: "remote", Location: "https://b.example.com/m.json"}))
	require.NoError(t, cfg.RegisterCustomManifest("alpha", configstore.CustomManifest{Kind: "remote", Location: "https://a.example.com/m.json"}))
	cfg.Invalidate()

	sources, err := engine.Sources()
	require.NoError(t, err)
	require.Len(t, sources, 4)

	// Public first, then the legacy URL, then registered customs by name.
	assert.Equal(t, "public", sources[0].Name)
	assert.Equal(t, LegacySourceName, sources[1].Name)
	assert.Equal(t, "alpha", sources[2].Name)
	assert.Equal(t, "beta", sources[3].Name)
}

func TestSourcesPublicDisabled(t *testing.T) {
	engine, _, cfg := newTestEngine(t)
	require.NoError(t, cfg.Set(configstore.KeyUsePublicRepository, false))
	cfg.Invalidate()

	sources, err := engine.Sources()
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestMergedEntriesFirstSourceWins(t *testing.T) {
	engine, fetcher, cfg := newTestEngine(t)

	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t,
		scriptFixture{ID: "shared", Category: "tools", FileName: "shared.sh", URL: "https://pub/shared.sh", Checksum: "aaa"},
		scriptFixture{ID: "pub-only", Category: "tools", FileName: "pub.sh", URL: "https://pub/pub.sh"},
	))
	fetcher.AddResponse("https://legacy.example.com/manifest.json", 200, manifestJSON(t,
		scriptFixture{ID: "shared", Category: "install", FileName: "other.sh", URL: "https://legacy/other.sh", Checksum: "bbb"},
		scriptFixture{ID: "legacy-only", Category: "install", FileName: "legacy.sh", URL: "https://legacy/legacy.sh"},
	))
	require.NoError(t, cfg.Set(configstore.KeyCustomManifestURL, "https://legacy.example.com/manifest.json"))
	cfg.Invalidate()

	entries, err := engine.MergedEntries()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	shared, ok := engine.FindByID("shared")
	require.True(t, ok)
	assert.Equal(t, "public", shared.SourceName, "first registration wins")
	assert.Equal(t, "aaa", shared.Checksum)
}

func TestMergedEntriesSkipsFailingSource(t *testing.T) {
	engine, fetcher, cfg := newTestEngine(t)

	// The public manifest 404s, but the legacy source still loads.
	fetcher.AddResponse("https://legacy.example.com/manifest.json", 200, manifestJSON(t,
		scriptFixture{ID: "survivor", Category: "tools", FileName: "s.sh", URL: "https://legacy/s.sh"},
	))
	require.NoError(t, cfg.Set(configstore.KeyCustomManifestURL, "https://legacy.example.com/manifest.json"))
	cfg.Invalidate()

	entries, err := engine.MergedEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "survivor", entries[0].ID)
}

func TestFindByFileName(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t,
		scriptFixture{ID: "a", Category: "tools", FileName: "a.sh", URL: "https://x/a.sh"},
	))

	entry, ok := engine.FindByFileName("a.sh")
	require.True(t, ok)
	assert.Equal(t, "a", entry.ID)

	_, ok = engine.FindByFileName("missing.sh")
	assert.False(t, ok)
}

func TestDownloadSuccess(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	body := "#!/bin/sh\necho clean\n"
	fx := scriptEntry("disk-cleanup", body)
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, fx))
	fetcher.AddResponse(fx.URL, 200, body)

	res := engine.Download("disk-cleanup")
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, fx.URL, res.ResolvedURL)

	content, err := engine.Cache().Read("tools", "disk-cleanup.sh")
	require.NoError(t, err)
	assert.Equal(t, body, string(content))

	entry, _ := engine.FindByID("disk-cleanup")
	assert.True(t, engine.IsCached(entry))
}

func TestDownloadIsIdempotent(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	body := "#!/bin/sh\necho hi\n"
	fx := scriptEntry("hi", body)
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, fx))
	fetcher.AddResponse(fx.URL, 200, body)

	first := engine.Download("hi")
	second := engine.Download("hi")
	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, first.Path, second.Path)

	content, err := engine.Cache().Read("tools", "hi.sh")
	require.NoError(t, err)
	assert.Equal(t, body, string(content))
}

func TestDownloadRecoversFromStaleCDN(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	good := "#!/bin/sh\necho v2\n"
	fx := scriptEntry("rotate", good)
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, fx))

	// The plain URL serves a stale body; the cache-busted URL serves the
	// content the manifest actually describes.
	fetcher.AddResponse(fx.URL, 200, "#!/bin/sh\necho v1\n")
	fetcher.AddPrefixResponse(fx.URL+"?", 200, good)

	res := engine.Download("rotate")
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Contains(t, res.ResolvedURL, fx.URL+"?t=")

	content, err := engine.Cache().Read("tools", "rotate.sh")
	require.NoError(t, err)
	assert.Equal(t, good, string(content))

	// Exactly two script requests: the original and one retry.
	var scriptRequests []string
	for _, u := range fetcher.Requests() {
		if strings.HasPrefix(u, fx.URL) {
			scriptRequests = append(scriptRequests, u)
		}
	}
	require.Len(t, scriptRequests, 2)
	assert.Equal(t, fx.URL, scriptRequests[0])
	assert.Contains(t, scriptRequests[1], "?t=")
}

func TestDownloadPersistentMismatchIsTerminal(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	fx := scriptEntry("bad", "the content the manifest promises")
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, fx))
	fetcher.AddResponse(fx.URL, 200, "tampered")
	fetcher.AddPrefixResponse(fx.URL+"?", 200, "still tampered")

	res := engine.Download("bad")
	require.Error(t, res.Err)
	assert.True(t, IsChecksumMismatch(res.Err))

	var mismatch *ChecksumMismatchError
	require.ErrorAs(t, res.Err, &mismatch)
	assert.Equal(t, fx.Checksum, mismatch.Expected)
	assert.NotEmpty(t, mismatch.Actual)

	// Nothing lands in the cache on failure.
	_, ok := engine.Cache().PathFor("tools", "bad.sh")
	assert.False(t, ok)

	// Exactly one retry, never more.
	var scriptRequests int
	for _, u := range fetcher.Requests() {
		if strings.HasPrefix(u, fx.URL) {
			scriptRequests++
		}
	}
	assert.Equal(t, 2, scriptRequests)
}

func TestDownloadEmptyChecksumSkipsVerification(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	fx := scriptFixture{ID: "nochk", Category: "tools", FileName: "nochk.sh", URL: "https://example.com/nochk.sh"}
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, fx))
	fetcher.AddResponse(fx.URL, 200, "anything at all")

	res := engine.Download("nochk")
	require.NoError(t, res.Err)
	assert.True(t, res.Success)

	// No retry happens when verification is skipped.
	var scriptRequests int
	for _, u := range fetcher.Requests() {
		if strings.HasPrefix(u, fx.URL) {
			scriptRequests++
		}
	}
	assert.Equal(t, 1, scriptRequests)
}

func TestDownloadGlobalVerificationDisabled(t *testing.T) {
	engine, fetcher, cfg := newTestEngine(t)
	require.NoError(t, cfg.Set(configstore.KeyVerifyChecksums, false))
	cfg.Invalidate()

	fx := scriptEntry("loose", "expected body")
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, fx))
	fetcher.AddResponse(fx.URL, 200, "different body")

	res := engine.Download("loose")
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
}

func TestDownloadFileScheme(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	dir := t.TempDir()
	body := "#!/bin/sh\necho local\n"
	p := filepath.Join(dir, "local.sh")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o755))

	fx := scriptFixture{
		ID:       "local",
		Category: "custom",
		FileName: "local.sh",
		URL:      "file://" + filepath.ToSlash(p),
		Checksum: checksum.Digest([]byte(body)),
	}
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, fx))

	res := engine.Download("local")
	require.NoError(t, res.Err)
	assert.True(t, res.Success)

	content, err := engine.Cache().Read("custom", "local.sh")
	require.NoError(t, err)
	assert.Equal(t, body, string(content))
}

func TestDownloadFileSchemeMismatchHasNoRetry(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	dir := t.TempDir()
	p := filepath.Join(dir, "local.sh")
	require.NoError(t, os.WriteFile(p, []byte("actual"), 0o755))

	fx := scriptFixture{
		ID:       "local",
		Category: "custom",
		FileName: "local.sh",
		URL:      "file://" + filepath.ToSlash(p),
		Checksum: checksum.Digest([]byte("expected")),
	}
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, fx))

	res := engine.Download("local")
	require.Error(t, res.Err)
	assert.True(t, IsChecksumMismatch(res.Err))

	// Only the manifest was fetched over HTTP.
	assert.Len(t, fetcher.Requests(), 1)
}

func TestDownloadNotFound(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t))

	res := engine.Download("ghost")
	require.Error(t, res.Err)
	assert.True(t, IsNotFound(res.Err))
}

func TestDownloadNetworkFailure(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	fx := scriptEntry("flaky", "body")
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, fx))
	fetcher.AddError(fx.URL, fmt.Errorf("connection reset"))

	res := engine.Download("flaky")
	require.Error(t, res.Err)
	assert.True(t, manifest.IsNetworkError(res.Err))
}

func TestIsCachedFallsBackAcrossCategories(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	// Cached under the old category, manifest now says a different one.
	_, err := engine.Cache().Write("tools", "moved.sh", []byte("#!/bin/sh\n"))
	require.NoError(t, err)

	fx := scriptFixture{ID: "moved", Category: "install", FileName: "moved.sh", URL: "https://x/moved.sh"}
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, fx))

	entry, ok := engine.FindByID("moved")
	require.True(t, ok)
	assert.True(t, engine.IsCached(entry))
}

func TestUpdateAllOnlyTouchesCachedEntries(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	cachedBody := "#!/bin/sh\necho new\n"
	cached := scriptEntry("cached", cachedBody)
	uncached := scriptEntry("uncached", "#!/bin/sh\necho never\n")
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, cached, uncached))
	fetcher.AddResponse(cached.URL, 200, cachedBody)
	fetcher.AddResponse(uncached.URL, 200, "#!/bin/sh\necho never\n")

	// Seed the cache with an outdated copy of one script.
	_, err := engine.Cache().Write("tools", "cached.sh", []byte("#!/bin/sh\necho old\n"))
	require.NoError(t, err)

	updated, failed := engine.UpdateAll()
	assert.Equal(t, 1, updated)
	assert.Equal(t, 0, failed)

	// The uncached script was never installed.
	_, ok := engine.Cache().PathFor("tools", "uncached.sh")
	assert.False(t, ok)

	content, err := engine.Cache().Read("tools", "cached.sh")
	require.NoError(t, err)
	assert.Equal(t, cachedBody, string(content))
}

func TestRemoveCached(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	fx := scriptFixture{ID: "gone", Category: "tools", FileName: "gone.sh", URL: "https://x/gone.sh"}
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, fx))

	_, err := engine.Cache().Write("tools", "gone.sh", []byte("x"))
	require.NoError(t, err)

	assert.True(t, engine.RemoveCached("gone"))
	assert.False(t, engine.RemoveCached("gone"), "second removal finds nothing")
	assert.False(t, engine.RemoveCached("never-existed"))
}

func TestRemoveCachedFollowsCategoryMove(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	fx := scriptFixture{ID: "moved", Category: "install", FileName: "moved.sh", URL: "https://x/moved.sh"}
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, fx))

	_, err := engine.Cache().Write("tools", "moved.sh", []byte("x"))
	require.NoError(t, err)

	assert.True(t, engine.RemoveCached("moved"))
	_, _, ok := engine.Cache().FallbackLookup("moved.sh")
	assert.False(t, ok)
}

func TestMergedEntriesLargeManifest(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	scripts := make([]scriptFixture, 0, 100)
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("script-%03d", i)
		scripts = append(scripts, scriptFixture{
			ID:       id,
			Category: "tools",
			FileName: id + ".sh",
			URL:      "https://example.com/" + id + ".sh",
		})
	}
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, scripts...))

	entries, err := engine.MergedEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 100)
}

func TestDownloadFetchesIncludesFromSameSource(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	body := "#!/bin/sh\necho hi\n"
	doc := map[string]interface{}{
		"repository_version": "1.0",
		"repository_url":     "https://example.com/repo",
		"includes_files":     []string{"common.sh"},
		"scripts": []scriptFixture{
			scriptEntry("hi", body),
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	fetcher.AddResponse(manifest.PublicManifestURL, 200, string(raw))
	fetcher.AddResponse("https://example.com/scripts/hi.sh", 200, body)
	fetcher.AddResponse("https://example.com/repo/includes/common.sh", 200, "shared() { :; }\n")

	res := engine.Download("hi")
	require.NoError(t, res.Err)

	content, err := engine.Cache().Read("includes", "common.sh")
	require.NoError(t, err)
	assert.Equal(t, "shared() { :; }\n", string(content))
}

func TestCacheBustURL(t *testing.T) {
	assert.Equal(t, "https://x/a.sh?t=99", cacheBustURL("https://x/a.sh", 99))
	assert.Equal(t, "https://x/a.sh?v=1&t=99", cacheBustURL("https://x/a.sh?v=1", 99))
}

func TestSourceKindFor(t *testing.T) {
	assert.Equal(t, manifest.SourceCustomLocalFile, SourceKindFor("file"))
	assert.Equal(t, manifest.SourceCustomLocalFile, SourceKindFor("custom-local-file"))
	assert.Equal(t, manifest.SourceCustomDirectory, SourceKindFor("DIR"))
	assert.Equal(t, manifest.SourceCustomGit, SourceKindFor("git"))
	assert.Equal(t, manifest.SourceCustomRemote, SourceKindFor(""))
	assert.Equal(t, manifest.SourceCustomRemote, SourceKindFor("https"))
}
