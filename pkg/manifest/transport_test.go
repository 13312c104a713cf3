package manifest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/scriptdepot/pkg/configstore"
)

func TestRealFetcherAgainstHTTPServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "scriptdepot/")
		_, _ = w.Write([]byte(testManifestJSON))
	}))
	defer server.Close()

	loader := NewLoaderWithFetcher(configstore.New(t.TempDir()), NewRealHTTPFetcher(server.Client()))
	entries, err := loader.Load(Source{Name: "public", Kind: SourcePublic, Location: server.URL})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestMockFetcherRepeatableBodies(t *testing.T) {
	m := NewMockHTTPFetcher()
	m.AddResponse("https://x/a", 200, "hello")

	for i := 0; i < 2; i++ {
		resp, err := m.Get("https://x/a")
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
	}
	assert.Equal(t, []string{"https://x/a", "https://x/a"}, m.Requests())
}

func TestMockFetcherPrefixResponses(t *testing.T) {
	m := NewMockHTTPFetcher()
	m.AddResponse("https://x/script.sh", 200, "exact")
	m.AddPrefixResponse("https://x/script.sh?", 200, "busted")

	resp, err := m.Get("https://x/script.sh")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "exact", string(body))

	resp, err = m.Get("https://x/script.sh?t=12345")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "busted", string(body))
}

func TestMockFetcherUnknownURLIs404(t *testing.T) {
	m := NewMockHTTPFetcher()
	resp, err := m.Get("https://x/missing")
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}
