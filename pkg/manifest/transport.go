package manifest

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// HTTPFetcher abstracts HTTP calls for testability
type HTTPFetcher interface {
	Get(url string) (*http.Response, error)
	Do(req *http.Request) (*http.Response, error)
}

// RealHTTPFetcher wraps http.Client for production use
type RealHTTPFetcher struct {
	client *http.Client
}

// NewRealHTTPFetcher creates a production HTTP fetcher
func NewRealHTTPFetcher(client *http.Client) HTTPFetcher {
	return &RealHTTPFetcher{client: client}
}

func (f *RealHTTPFetcher) Get(url string) (*http.Response, error) {
	return f.client.Get(url)
}

func (f *RealHTTPFetcher) Do(req *http.Request) (*http.Response, error) {
	return f.client.Do(req)
}

type mockReply struct {
	statusCode int
	body       string
}

// MockHTTPFetcher simulates HTTP responses for testing. Bodies are rebuilt
// per request so a URL can be fetched more than once, and every request URL
// is recorded so tests can assert on request counts (e.g. the cache-busting
// retry must issue exactly two requests).
type MockHTTPFetcher struct {
	mu        sync.Mutex
	responses map[string]mockReply
	prefixes  []struct {
		prefix string
		reply  mockReply
	}
	errors   map[string]error
	requests []string
}

// NewMockHTTPFetcher creates a mock HTTP fetcher
func NewMockHTTPFetcher() *MockHTTPFetcher {
	return &MockHTTPFetcher{
		responses: make(map[string]mockReply),
		errors:    make(map[string]error),
	}
}

// AddResponse registers a mock response for an exact URL
func (m *MockHTTPFetcher) AddResponse(urlStr string, statusCode int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[urlStr] = mockReply{statusCode: statusCode, body: body}
}

// AddPrefixResponse registers a mock response for any URL with the given
// prefix. Useful for cache-busted URLs whose query string carries a
// timestamp.
func (m *MockHTTPFetcher) AddPrefixResponse(prefix string, statusCode int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefixes = append(m.prefixes, struct {
		prefix string
		reply  mockReply
	}{prefix: prefix, reply: reply(statusCode, body)})
}

func reply(statusCode int, body string) mockReply {
	return mockReply{statusCode: statusCode, body: body}
}

// AddError registers a mock error for a URL
func (m *MockHTTPFetcher) AddError(urlStr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[urlStr] = err
}

// Requests returns every URL fetched so far, in order.
func (m *MockHTTPFetcher) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockHTTPFetcher) Get(urlStr string) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, urlStr)

	if err, ok := m.errors[urlStr]; ok {
		m.mu.Unlock()
		return nil, err
	}

	r, ok := m.responses[urlStr]
	if !ok {
		// Exact match first, then longest registered prefix.
		best := -1
		for i, p := range m.prefixes {
			if strings.HasPrefix(urlStr, p.prefix) {
				if best == -1 || len(p.prefix) > len(m.prefixes[best].prefix) {
					best = i
				}
			}
		}
		if best >= 0 {
			r, ok = m.prefixes[best].reply, true
		}
	}
	m.mu.Unlock()

	if !ok {
		r = mockReply{statusCode: 404, body: "Not Found"}
	}

	parsedURL, _ := url.Parse(urlStr)
	return &http.Response{
		StatusCode: r.statusCode,
		Body:       io.NopCloser(strings.NewReader(r.body)),
		Header:     make(http.Header),
		Request: &http.Request{
			URL: parsedURL,
		},
	}, nil
}

func (m *MockHTTPFetcher) Do(req *http.Request) (*http.Response, error) {
	return m.Get(req.URL.String())
}
