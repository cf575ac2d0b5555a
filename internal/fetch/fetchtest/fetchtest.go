// Package fetchtest provides a recording in-memory Fetcher for tests.
package fetchtest

import (
	"context"
	"sync"

	"github.com/yousuf/sourcetrace-mcp/internal/fetch"
)

// Fetcher serves canned responses and counts calls per URL. URLs with no
// canned response or error fail with a "not found" fetch error.
type Fetcher struct {
	mu        sync.Mutex
	responses map[string][]byte
	errs      map[string]error
	calls     map[string]int
	// Delay, when non-nil, is received from before every response; tests
	// use it to hold fetches open.
	Delay chan struct{}
}

// New creates an empty Fetcher.
func New() *Fetcher {
	return &Fetcher{
		responses: make(map[string][]byte),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

// Respond registers a canned body for url.
func (f *Fetcher) Respond(url string, body []byte) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = body
	return f
}

// RespondString registers a canned string body for url.
func (f *Fetcher) RespondString(url, body string) *Fetcher {
	return f.Respond(url, []byte(body))
}

// Fail registers an error for url.
func (f *Fetcher) Fail(url string, err error) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
	return f
}

// Calls reports how many times url was fetched.
func (f *Fetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// TotalCalls reports the total number of fetches across all URLs.
func (f *Fetcher) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// Fetch implements fetch.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	body, okBody := f.responses[url]
	err, okErr := f.errs[url]
	delay := f.Delay
	f.mu.Unlock()

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return nil, &fetch.Error{URL: url, Reason: "cancelled", Err: ctx.Err()}
		}
	}

	if okErr {
		return nil, err
	}
	if okBody {
		return append([]byte(nil), body...), nil
	}
	return nil, &fetch.Error{URL: url, Reason: "status 404"}
}
