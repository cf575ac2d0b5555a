package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yousuf/sourcetrace-mcp/internal/bundle"
	"github.com/yousuf/sourcetrace-mcp/internal/errcontext"
	"github.com/yousuf/sourcetrace-mcp/internal/fetch"
	"github.com/yousuf/sourcetrace-mcp/internal/sourcemap"
	"github.com/yousuf/sourcetrace-mcp/internal/stacktrace"
)

// Options configure an Engine instance.
type Options struct {
	// CacheCapacity bounds the source map cache; 0 uses the default.
	CacheCapacity int
	// SnippetRadius is the number of context lines around a resolved
	// position; 0 uses the default, negative disables snippets.
	SnippetRadius int
	// NetworkWindow is the error/network correlation window; 0 uses the
	// default.
	NetworkWindow time.Duration
	// Logger may be nil.
	Logger *zap.Logger
}

// Engine is the source resolution engine facade: one instance owns one map
// cache and exposes the public resolution operations. All network I/O goes
// through the injected fetcher.
type Engine struct {
	fetcher       fetch.Fetcher
	store         *sourcemap.Store
	resolver      *sourcemap.Resolver
	reconstructor *stacktrace.Reconstructor
	aggregator    *errcontext.Aggregator
	logger        *zap.Logger

	mu     sync.Mutex
	graphs map[string]*bundle.Graph
}

// New creates an Engine around the given fetcher.
func New(fetcher fetch.Fetcher, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	radius := opts.SnippetRadius
	if radius == 0 {
		radius = sourcemap.DefaultSnippetRadius
	}

	store := sourcemap.NewStore(fetcher, opts.CacheCapacity, logger)
	resolver := sourcemap.NewResolver(fetcher, radius)

	return &Engine{
		fetcher:       fetcher,
		store:         store,
		resolver:      resolver,
		reconstructor: stacktrace.NewReconstructor(store, resolver, logger),
		aggregator:    errcontext.NewAggregator(opts.NetworkWindow),
		logger:        logger,
		graphs:        make(map[string]*bundle.Graph),
	}
}

// Close releases cached state. The engine holds no persistent resources;
// maps are always re-derivable.
func (e *Engine) Close() {
	e.store.Clear()
	e.mu.Lock()
	e.graphs = make(map[string]*bundle.Graph)
	e.mu.Unlock()
}

// InvalidateMap drops the cached map for a generated URL so the next lookup
// re-fetches it.
func (e *Engine) InvalidateMap(generatedURL string) {
	e.store.Invalidate(generatedURL)
}

// ResolveLocation maps a single 1-based generated coordinate to its original
// source. A nil location with a nil error is a resolution miss (the map was
// available but no segment covers the position); a non-nil error means the
// map itself could not be obtained, or the input was invalid.
func (e *Engine) ResolveLocation(ctx context.Context, url string, line, column int) (*sourcemap.ResolvedLocation, error) {
	if url == "" {
		return nil, fmt.Errorf("url must not be empty")
	}
	if line < 1 || column < 1 {
		return nil, fmt.Errorf("line and column must be positive 1-based coordinates, got %d:%d", line, column)
	}

	m, err := e.store.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	return e.resolver.Resolve(ctx, m, line-1, column-1), nil
}

// ResolveStackTrace parses a raw stack trace and resolves every frame on a
// best-effort basis. Only an empty input is an error; per-frame failures
// surface as unresolved frames inside the result.
func (e *Engine) ResolveStackTrace(ctx context.Context, raw string) (*stacktrace.Result, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("stack trace must not be empty")
	}
	return e.reconstructor.ResolveTrace(ctx, raw), nil
}

// SourceContent is a slice of an original file.
type SourceContent struct {
	File      string   `json:"file"`
	StartLine int      `json:"startLine"`
	Lines     []string `json:"lines"`
	// Embedded reports whether the text came from a cached map's
	// sourcesContent rather than a direct fetch.
	Embedded bool `json:"embedded"`
}

// GetSourceContent returns lines [startLine, endLine] (1-based, inclusive)
// of an original file, preferring text embedded in an already-cached map and
// falling back to fetching the file itself. startLine/endLine of 0 mean the
// whole file.
func (e *Engine) GetSourceContent(ctx context.Context, file string, startLine, endLine int) (*SourceContent, error) {
	if file == "" {
		return nil, fmt.Errorf("file must not be empty")
	}
	if startLine < 0 || endLine < 0 || (endLine > 0 && startLine > endLine) {
		return nil, fmt.Errorf("invalid line range %d-%d", startLine, endLine)
	}

	text, embedded := e.cachedSourceText(file)
	if !embedded {
		body, err := e.fetcher.Fetch(ctx, file)
		if err != nil {
			return nil, err
		}
		text = string(body)
	}

	lines := strings.Split(text, "\n")
	start := 1
	end := len(lines)
	if startLine > 0 {
		start = startLine
	}
	if endLine > 0 && endLine < end {
		end = endLine
	}
	if start > len(lines) {
		return nil, fmt.Errorf("%s has %d lines, requested range starts at %d", file, len(lines), start)
	}

	return &SourceContent{
		File:      file,
		StartLine: start,
		Lines:     lines[start-1 : end],
		Embedded:  embedded,
	}, nil
}

// cachedSourceText looks for the file's text in the sourcesContent of any
// cached map. This is read-only and never triggers a map fetch.
func (e *Engine) cachedSourceText(file string) (string, bool) {
	var text string
	found := false
	e.store.Range(func(m *sourcemap.SourceMap) bool {
		if content, ok := m.SourceContent(file); ok {
			text = content
			found = true
			return false
		}
		return true
	})
	return text, found
}

// manifestCandidates are the conventional manifest locations probed by
// GetBundleManifest, relative to the application base URL.
var manifestCandidates = []string{
	"stats.json",
	".vite/manifest.json",
	"manifest.json",
}

// GetBundleManifest fetches and parses a bundler manifest from conventional
// locations under baseURL, caching the parsed graph per base URL. A direct
// manifest URL (ending in .json) is fetched as-is.
func (e *Engine) GetBundleManifest(ctx context.Context, baseURL string) (*bundle.Graph, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseUrl must not be empty")
	}

	e.mu.Lock()
	if g, ok := e.graphs[baseURL]; ok {
		e.mu.Unlock()
		return g, nil
	}
	e.mu.Unlock()

	var candidates []string
	if strings.HasSuffix(baseURL, ".json") {
		candidates = []string{baseURL}
	} else {
		trimmed := strings.TrimSuffix(baseURL, "/")
		for _, rel := range manifestCandidates {
			candidates = append(candidates, trimmed+"/"+rel)
		}
	}

	var lastErr error
	for _, url := range candidates {
		body, err := e.fetcher.Fetch(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		g, err := bundle.ParseManifest(body, "")
		if err != nil {
			lastErr = err
			continue
		}
		e.logger.Debug("parsed bundle manifest",
			zap.String("url", url), zap.String("format", string(g.Format)), zap.Int("modules", g.Len()))

		e.mu.Lock()
		e.graphs[baseURL] = g
		e.mu.Unlock()
		return g, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no manifest candidates for %s", baseURL)
	}
	return nil, fmt.Errorf("no usable bundle manifest under %s: %w", baseURL, lastErr)
}

// ParseBundleManifest parses caller-supplied manifest bytes without caching.
func (e *Engine) ParseBundleManifest(data []byte, hint bundle.ManifestFormat) (*bundle.Graph, error) {
	return bundle.ParseManifest(data, hint)
}

// BuildErrorContext resolves the raw trace and composes it with the captured
// auxiliary signals into one diagnostic record.
func (e *Engine) BuildErrorContext(ctx context.Context, message, rawTrace string, errorTime time.Time, console []errcontext.ConsoleMessage, network []errcontext.NetworkTrace, state json.RawMessage) (*errcontext.ErrorContext, error) {
	var trace *stacktrace.Result
	if strings.TrimSpace(rawTrace) != "" {
		trace = e.reconstructor.ResolveTrace(ctx, rawTrace)
	}
	if errorTime.IsZero() {
		errorTime = time.Now()
	}
	return e.aggregator.Build(message, errorTime, trace, console, network, state), nil
}
