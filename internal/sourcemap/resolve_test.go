package sourcemap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yousuf/sourcetrace-mcp/internal/fetch/fetchtest"
)

// testMap builds a map over a single source a.js with one segment at
// generated (0,0) pointing at original (0,0).
func testMap(t *testing.T) *SourceMap {
	t.Helper()
	m, err := Parse("bundle.js", []byte(`{"version":3,"sources":["a.js"],"names":[],"mappings":"AAAA"}`))
	require.NoError(t, err)
	return m
}

func TestFindExactMatch(t *testing.T) {
	m := testMap(t)

	seg, ok := m.Find(0, 0)
	require.True(t, ok)
	assert.Equal(t, 0, seg.GeneratedColumn)
}

func TestFindNearestPreceding(t *testing.T) {
	m := testMap(t)

	// No segment at column 5; the greatest segment at or before it wins.
	seg, ok := m.Find(0, 5)
	require.True(t, ok)
	assert.Equal(t, 0, seg.GeneratedColumn)
	assert.Equal(t, 0, seg.OriginalLine)
	assert.Equal(t, 0, seg.OriginalColumn)
}

func TestFindMissesOtherLines(t *testing.T) {
	m := testMap(t)

	_, ok := m.Find(1, 0)
	assert.False(t, ok, "segment from line 0 must not cover line 1")

	_, ok = m.Find(5, 100)
	assert.False(t, ok)
}

func TestFindColumnTies(t *testing.T) {
	// Segments at columns 0, 4 and 10 of line 0.
	m, err := Parse("bundle.js", []byte(`{"version":3,"sources":["a.js"],"names":[],"mappings":"AAAA,IAAI,MAAM"}`))
	require.NoError(t, err)
	require.Len(t, m.Segments, 3)

	seg, ok := m.Find(0, 7)
	require.True(t, ok)
	assert.Equal(t, 4, seg.GeneratedColumn, "closest preceding mapping, never the following one")

	seg, ok = m.Find(0, 10)
	require.True(t, ok)
	assert.Equal(t, 10, seg.GeneratedColumn)
}

func TestResolveScenario(t *testing.T) {
	// Map {mappings: [(0,0,0,0,0)]} over one source a.js:
	// resolve(map, 0, 5) yields {file: a.js, line: 0, column: 0}.
	m := testMap(t)
	r := NewResolver(nil, 0)

	loc := r.Resolve(context.Background(), m, 0, 5)
	require.NotNil(t, loc)
	assert.Equal(t, "a.js", loc.File)
	assert.Equal(t, 0, loc.Line)
	assert.Equal(t, 0, loc.Column)
	assert.True(t, loc.HasPosition())
}

func TestResolveTotalMiss(t *testing.T) {
	m := testMap(t)
	r := NewResolver(nil, 0)

	assert.Nil(t, r.Resolve(context.Background(), m, 3, 0))
}

func TestResolveGeneratedOnlySegment(t *testing.T) {
	// "E" is a one-field segment: generated position only.
	m, err := Parse("bundle.js", []byte(`{"version":3,"sources":["a.js"],"names":[],"mappings":"E"}`))
	require.NoError(t, err)

	r := NewResolver(nil, 0)
	loc := r.Resolve(context.Background(), m, 0, 3)
	require.NotNil(t, loc, "a covering segment without an original position is a partial resolution, not a miss")
	assert.False(t, loc.HasPosition())
	assert.Empty(t, loc.File)
}

func TestResolveName(t *testing.T) {
	m, err := Parse("bundle.js", []byte(`{"version":3,"sources":["src/app.ts"],"names":["doWork"],"mappings":"QAIEA"}`))
	require.NoError(t, err)

	r := NewResolver(nil, 0)
	loc := r.Resolve(context.Background(), m, 0, 9)
	require.NotNil(t, loc)
	assert.Equal(t, "src/app.ts", loc.File)
	assert.Equal(t, 4, loc.Line)
	assert.Equal(t, 2, loc.Column)
	assert.Equal(t, "doWork", loc.Name)
}

func TestResolveSnippetFromEmbeddedContent(t *testing.T) {
	data := []byte(`{
		"version": 3,
		"sources": ["src/app.ts"],
		"sourcesContent": ["l0\nl1\nl2\nl3\nl4\nl5\nl6"],
		"names": [],
		"mappings": "AAIA"
	}`)
	m, err := Parse("bundle.js", data)
	require.NoError(t, err)

	r := NewResolver(nil, 2)
	loc := r.Resolve(context.Background(), m, 0, 0)
	require.NotNil(t, loc)
	require.Equal(t, 4, loc.Line)

	assert.Equal(t, []string{"l2", "l3", "l4", "l5", "l6"}, loc.Snippet)
	assert.Equal(t, 2, loc.SnippetStart)
}

func TestResolveSnippetClampedAtFileStart(t *testing.T) {
	data := []byte(`{"version":3,"sources":["src/app.ts"],"sourcesContent":["l0\nl1\nl2"],"names":[],"mappings":"AAAA"}`)
	m, err := Parse("bundle.js", data)
	require.NoError(t, err)

	r := NewResolver(nil, 2)
	loc := r.Resolve(context.Background(), m, 0, 0)
	require.NotNil(t, loc)

	assert.Equal(t, []string{"l0", "l1", "l2"}, loc.Snippet)
	assert.Equal(t, 0, loc.SnippetStart)
}

func TestResolveSnippetFetchedOnDemand(t *testing.T) {
	data := []byte(`{"version":3,"sources":["https://app.example.com/src/app.ts"],"names":[],"mappings":"AAAA"}`)
	m, err := Parse("bundle.js", data)
	require.NoError(t, err)

	fetcher := fetchtest.New().RespondString("https://app.example.com/src/app.ts", "x0\nx1\nx2")
	r := NewResolver(fetcher, 1)

	loc := r.Resolve(context.Background(), m, 0, 0)
	require.NotNil(t, loc)
	assert.Equal(t, []string{"x0", "x1"}, loc.Snippet)
}

func TestResolveSnippetFailureDegradesToOmission(t *testing.T) {
	data := []byte(`{"version":3,"sources":["https://app.example.com/src/app.ts"],"names":[],"mappings":"AAAA"}`)
	m, err := Parse("bundle.js", data)
	require.NoError(t, err)

	// No response registered: the fetch fails, the resolution still succeeds.
	r := NewResolver(fetchtest.New(), 2)
	loc := r.Resolve(context.Background(), m, 0, 0)
	require.NotNil(t, loc)
	assert.Empty(t, loc.Snippet)

	// Non-URL source identifiers are never fetched.
	m2 := testMap(t)
	loc = r.Resolve(context.Background(), m2, 0, 0)
	require.NotNil(t, loc)
	assert.Empty(t, loc.Snippet)
}
