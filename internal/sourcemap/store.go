package sourcemap

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yousuf/sourcetrace-mcp/internal/fetch"
)

// DefaultCacheCapacity bounds the number of decoded maps a Store retains.
const DefaultCacheCapacity = 32

// Store caches decoded source maps keyed by generated-file URL.
//
// Eviction is FIFO by insertion order: when an insert exceeds capacity, the
// oldest-inserted entry is removed regardless of how recently it was read.
// This is a deliberate simplification over true LRU; lookups are dominated by
// bursts over the same few bundles, where the two policies behave the same.
//
// Concurrent lookups for the same uncached URL are coalesced into a single
// fetch; all waiters receive the same map or the same failure. Failures are
// not cached, so a later lookup retries discovery from scratch.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*SourceMap
	order    []string
	capacity int

	flight  singleflight.Group
	fetcher fetch.Fetcher
	logger  *zap.Logger
}

// NewStore creates a Store with the given fetcher and capacity. A capacity
// of zero or less falls back to DefaultCacheCapacity. logger may be nil.
func NewStore(fetcher fetch.Fetcher, capacity int, logger *zap.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		entries:  make(map[string]*SourceMap),
		capacity: capacity,
		fetcher:  fetcher,
		logger:   logger,
	}
}

// Get returns the decoded map for generatedURL, fetching and parsing it on a
// cache miss. Errors are always *Failure values classifying what went wrong;
// the caller degrades the affected location or frame rather than aborting.
func (s *Store) Get(ctx context.Context, generatedURL string) (*SourceMap, error) {
	if generatedURL == "" {
		return nil, &Failure{Kind: FailNotFound, URL: generatedURL, Err: fmt.Errorf("empty generated URL")}
	}

	s.mu.Lock()
	if m, ok := s.entries[generatedURL]; ok {
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &Failure{Kind: FailFetch, URL: generatedURL, Err: err}
	}

	// Coalesce concurrent misses for the same key into one discovery. The
	// shared fetch is detached from any single caller's deadline so one
	// caller cancelling does not fail its siblings.
	ch := s.flight.DoChan(generatedURL, func() (any, error) {
		m, err := s.discover(context.WithoutCancel(ctx), generatedURL)
		if err != nil {
			return nil, err
		}
		s.insert(m)
		return m, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*SourceMap), nil
	case <-ctx.Done():
		return nil, &Failure{Kind: FailFetch, URL: generatedURL, Err: ctx.Err()}
	}
}

// Invalidate drops the cached map for generatedURL, if any.
func (s *Store) Invalidate(generatedURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[generatedURL]; !ok {
		return
	}
	delete(s.entries, generatedURL)
	for i, key := range s.order {
		if key == generatedURL {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Clear drops every cached map.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*SourceMap)
	s.order = nil
}

// Range calls fn for each cached map in insertion order until fn returns
// false. Maps are immutable, so fn may retain them after Range returns.
func (s *Store) Range(fn func(m *SourceMap) bool) {
	s.mu.Lock()
	snapshot := make([]*SourceMap, 0, len(s.order))
	for _, key := range s.order {
		snapshot = append(snapshot, s.entries[key])
	}
	s.mu.Unlock()

	for _, m := range snapshot {
		if !fn(m) {
			return
		}
	}
}

// Len reports the number of cached maps.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// insert stores a freshly decoded map, evicting the oldest-inserted entry
// when at capacity.
func (s *Store) insert(m *SourceMap) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[m.GeneratedURL]; ok {
		// A concurrent Invalidate+Get race can decode twice; the rebuilt
		// map wins, insertion order is unchanged.
		s.entries[m.GeneratedURL] = m
		return
	}

	for len(s.entries) >= s.capacity && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
		s.logger.Debug("evicted source map", zap.String("generatedUrl", oldest))
	}

	s.entries[m.GeneratedURL] = m
	s.order = append(s.order, m.GeneratedURL)
}

// discover locates, fetches and parses the map for a generated file. It
// tries the `<url>.map` convention first, then fetches the generated file
// once and extracts a sourceMappingURL directive from its tail.
func (s *Store) discover(ctx context.Context, generatedURL string) (*SourceMap, error) {
	if conventional := appendMapExtension(generatedURL); conventional != "" {
		if body, err := s.fetcher.Fetch(ctx, conventional); err == nil {
			m, perr := Parse(generatedURL, body)
			if perr == nil {
				return m, nil
			}
			s.logger.Debug("conventional .map candidate is not a source map",
				zap.String("url", conventional), zap.Error(perr))
		}
	}

	body, err := s.fetcher.Fetch(ctx, generatedURL)
	if err != nil {
		return nil, &Failure{Kind: FailFetch, URL: generatedURL, Err: err}
	}

	directive := extractMappingDirective(string(body))
	if directive == "" {
		return nil, &Failure{Kind: FailNotFound, URL: generatedURL, Err: fmt.Errorf("no sourceMappingURL directive")}
	}

	if strings.HasPrefix(directive, "data:") {
		data, derr := decodeDataURI(directive)
		if derr != nil {
			return nil, &Failure{Kind: FailParse, URL: generatedURL, Err: derr}
		}
		return Parse(generatedURL, data)
	}

	mapURL := resolveRelative(generatedURL, directive)
	mapBody, err := s.fetcher.Fetch(ctx, mapURL)
	if err != nil {
		return nil, &Failure{Kind: FailFetch, URL: mapURL, Err: err}
	}
	return Parse(generatedURL, mapBody)
}

// appendMapExtension derives the conventional map URL by appending ".map" to
// the path, keeping any query string intact. Returns "" for unparsable URLs.
func appendMapExtension(generatedURL string) string {
	u, err := url.Parse(generatedURL)
	if err != nil {
		return ""
	}
	if u.Path == "" {
		return generatedURL + ".map"
	}
	u.Path += ".map"
	return u.String()
}

// extractMappingDirective scans for a `//# sourceMappingURL=` (or the legacy
// `//@` form) comment. Directives conventionally sit on the last line, so the
// scan walks lines from the end of the file backward and returns the first
// hit, which is also the one the browser would honor.
func extractMappingDirective(content string) string {
	end := len(content)
	for end > 0 {
		start := strings.LastIndexByte(content[:end], '\n') + 1
		line := strings.TrimSpace(content[start:end])
		end = start - 1

		for _, prefix := range []string{"//# sourceMappingURL=", "//@ sourceMappingURL=", "/*# sourceMappingURL="} {
			if strings.HasPrefix(line, prefix) {
				value := strings.TrimPrefix(line, prefix)
				value = strings.TrimSuffix(value, "*/")
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

// decodeDataURI extracts the map bytes from an inline data: directive.
func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URI in sourceMappingURL")
	}
	meta, payload := uri[:comma], uri[comma+1:]
	if strings.Contains(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 in inline source map: %w", err)
		}
		return data, nil
	}
	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid URL escaping in inline source map: %w", err)
	}
	return []byte(unescaped), nil
}

// resolveRelative resolves a directive value against the generated file URL.
func resolveRelative(baseURL, ref string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	target, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(target).String()
}
