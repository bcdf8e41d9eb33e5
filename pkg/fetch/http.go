package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lhorie/fusion-cli/pkg/loader"
	"github.com/lhorie/fusion-cli/pkg/manifest"
)

// DefaultHTTPTimeout bounds a single chunk fetch over HTTP.
//
// Timeouts belong to the fetcher, not the loader: the loader treats a
// timed-out fetch like any other failure.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPFetcher retrieves chunk payloads from a remote asset host.
type HTTPFetcher struct {
	base   string
	client *http.Client
	m      *manifest.Manifest
}

// NewHTTPFetcher creates a fetcher resolving chunks against baseURL using m.
//
// client may be nil, in which case a client with DefaultHTTPTimeout is used.
func NewHTTPFetcher(baseURL string, m *manifest.Manifest, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HTTPFetcher{
		base:   strings.TrimRight(baseURL, "/"),
		client: client,
		m:      m,
	}
}

// Fetch implements loader.Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, id loader.ChunkID) ([]byte, error) {
	c, ok := f.m.Lookup(string(id))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChunkUnknown, id)
	}

	u := f.base + "/" + url.PathEscape(c.File)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for chunk %s: %w", id, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunk %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode, url: u}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %s body: %w", id, err)
	}
	return data, nil
}
