package sourcemap

import (
	"context"
	"sort"
	"strings"

	"github.com/yousuf/sourcetrace-mcp/internal/fetch"
)

// Find returns the mapping segment covering a 0-based generated (line,
// column): the greatest segment on that line whose column is at or before
// the query column. It
// never picks a following segment; minified code maps sub-expressions to the
// statement that precedes them. The second return is false when no segment
// exists for that line at or before the column (a total resolution miss).
func (m *SourceMap) Find(line, column int) (Segment, bool) {
	segs := m.Segments
	// First segment strictly greater than the query position, then step back.
	i := sort.Search(len(segs), func(i int) bool {
		if segs[i].GeneratedLine != line {
			return segs[i].GeneratedLine > line
		}
		return segs[i].GeneratedColumn > column
	})
	if i == 0 {
		return Segment{}, false
	}
	seg := segs[i-1]
	if seg.GeneratedLine != line {
		return Segment{}, false
	}
	return seg, true
}

// Resolver turns mapping segments into ResolvedLocations and attaches source
// snippets on a best-effort basis. The fetcher is optional; without it,
// snippets come only from embedded sourcesContent.
type Resolver struct {
	fetcher fetch.Fetcher
	radius  int
}

// DefaultSnippetRadius is the number of context lines on each side of the
// resolved line.
const DefaultSnippetRadius = 2

// NewResolver creates a Resolver. fetcher may be nil. A radius of zero or
// less disables snippet attachment.
func NewResolver(fetcher fetch.Fetcher, radius int) *Resolver {
	return &Resolver{fetcher: fetcher, radius: radius}
}

// Resolve maps a 0-based generated (line, column) through m. It returns nil
// when no segment covers the position. A segment without an original
// position yields a location with File set and Line/Column marked -1.
// Snippet retrieval failures degrade to omission, never to a nil result.
func (r *Resolver) Resolve(ctx context.Context, m *SourceMap, line, column int) *ResolvedLocation {
	seg, ok := m.Find(line, column)
	if !ok {
		return nil
	}

	loc := &ResolvedLocation{Line: -1, Column: -1}
	if seg.HasSource() {
		loc.File = m.Sources[seg.SourceIndex]
		loc.Line = seg.OriginalLine
		loc.Column = seg.OriginalColumn
	}
	if seg.HasName() {
		loc.Name = m.Names[seg.NameIndex]
	}

	if loc.File != "" && loc.HasPosition() && r.radius > 0 {
		if content, ok := r.sourceText(ctx, m, loc.File); ok {
			loc.Snippet, loc.SnippetStart = snippetWindow(content, loc.Line, r.radius)
		}
	}

	return loc
}

// sourceText returns the original text for file, preferring embedded
// sourcesContent over an on-demand fetch.
func (r *Resolver) sourceText(ctx context.Context, m *SourceMap, file string) (string, bool) {
	if content, ok := m.SourceContent(file); ok {
		return content, true
	}
	if r.fetcher == nil || !fetchableURL(file) {
		return "", false
	}
	body, err := r.fetcher.Fetch(ctx, file)
	if err != nil {
		return "", false
	}
	return string(body), true
}

// fetchableURL filters out the synthetic identifiers bundlers put in the
// sources table (webpack:///, node_modules paths with loaders, etc.) which
// are not retrievable addresses.
func fetchableURL(file string) bool {
	return strings.HasPrefix(file, "http://") || strings.HasPrefix(file, "https://")
}

// snippetWindow extracts up to 2*radius+1 lines centered on line (0-based),
// clamped to the file bounds. It returns the lines and the 0-based number of
// the first one.
func snippetWindow(content string, line, radius int) ([]string, int) {
	lines := strings.Split(content, "\n")
	if line < 0 || line >= len(lines) {
		return nil, 0
	}
	start := line - radius
	if start < 0 {
		start = 0
	}
	end := line + radius + 1
	if end > len(lines) {
		end = len(lines)
	}
	window := make([]string, end-start)
	copy(window, lines[start:end])
	return window, start
}
