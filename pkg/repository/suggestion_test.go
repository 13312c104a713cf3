package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/scriptdepot/pkg/configstore"
	"github.com/fulmenhq/scriptdepot/pkg/manifest"
)

func localManifestEngine(t *testing.T, manifestBody string) (*Engine, string) {
	t.Helper()
	engine, _, cfg := newTestEngine(t)

	p := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(p, []byte(manifestBody), 0o644))

	require.NoError(t, cfg.Set(configstore.KeyUsePublicRepository, false))
	require.NoError(t, cfg.RegisterCustomManifest("team", configstore.CustomManifest{Kind: "file", Location: p}))
	cfg.Invalidate()

	return engine, p
}

func TestApplySuggestionFlatManifest(t *testing.T) {
	engine, p := localManifestEngine(t, `{
  "repository_version": "1.0",
  "scripts": [
    {"id": "mystery", "category": "custom", "file_name": "mystery.sh", "download_url": "https://x/mystery.sh"}
  ]
}`)

	err := engine.ApplySuggestion(Suggestion{
		ID:          "mystery",
		Category:    "tools",
		Description: "Rotates application logs",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))

	scripts := doc["scripts"].([]interface{})
	entry := scripts[0].(map[string]interface{})
	assert.Equal(t, "tools", entry["category"])
	assert.Equal(t, "Rotates application logs", entry["description"])
}

func TestApplySuggestionNestedManifestMovesCategory(t *testing.T) {
	engine, p := localManifestEngine(t, `{
  "repository_version": "1.0",
  "scripts": {
    "custom": [
      {"id": "mystery", "file_name": "mystery.sh", "download_url": "https://x/mystery.sh"}
    ]
  }
}`)

	err := engine.ApplySuggestion(Suggestion{ID: "mystery", Category: "tools"})
	require.NoError(t, err)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))

	scripts := doc["scripts"].(map[string]interface{})
	assert.Empty(t, scripts["custom"])
	tools := scripts["tools"].([]interface{})
	require.Len(t, tools, 1)
	assert.Equal(t, "mystery", tools[0].(map[string]interface{})["id"])
}

func TestApplySuggestionRejectsRemoteSources(t *testing.T) {
	engine, fetcher, _ := newTestEngine(t)

	fx := scriptEntry("remote", "body")
	fetcher.AddResponse(manifest.PublicManifestURL, 200, manifestJSON(t, fx))

	err := engine.ApplySuggestion(Suggestion{ID: "remote", Category: "tools"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only local-file manifests accept suggestions")
}

func TestApplySuggestionValidation(t *testing.T) {
	engine, _ := localManifestEngine(t, `{"repository_version": "1.0", "scripts": []}`)

	assert.Error(t, engine.ApplySuggestion(Suggestion{Category: "tools"}), "id is required")
	assert.Error(t, engine.ApplySuggestion(Suggestion{ID: "x", Category: "../evil"}), "unsafe category is rejected")

	err := engine.ApplySuggestion(Suggestion{ID: "ghost", Category: "tools"})
	assert.True(t, IsNotFound(err))
}
