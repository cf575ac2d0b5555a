package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher retrieves the raw bytes of an artifact (script, map, manifest) by URL.
// The resolution engine performs no network I/O of its own; everything goes
// through an injected Fetcher so callers can swap in caching or recording
// implementations.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Error describes a failed artifact fetch. Reason is a short stable label
// (e.g. "timeout", "status 404") suitable for per-frame diagnostics.
type Error struct {
	URL    string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPFetcher is the default Fetcher backed by net/http.
type HTTPFetcher struct {
	client  *http.Client
	maxBody int64
}

// defaultMaxBody caps artifact size; source maps for large bundles run tens
// of megabytes, so the limit is generous.
const defaultMaxBody = 64 << 20

// NewHTTPFetcher creates an HTTPFetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		maxBody: defaultMaxBody,
	}
}

// Fetch retrieves the artifact at url. Non-2xx responses are failures.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, &Error{URL: url, Reason: "empty url"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Reason: "invalid url", Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{URL: url, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, &Error{URL: url, Reason: "read failed", Err: err}
	}

	return body, nil
}
