package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yousuf/sourcetrace-mcp/internal/errcontext"
	"github.com/yousuf/sourcetrace-mcp/internal/fetch/fetchtest"
)

const appMapJSON = `{
	"version": 3,
	"sources": ["src/app.ts"],
	"sourcesContent": ["l0\nl1\nl2\nl3\nl4\nl5"],
	"names": ["doWork"],
	"mappings": "QAIEA"
}`

func TestResolveLocation(t *testing.T) {
	fetcher := fetchtest.New().RespondString("https://x/bundle.js.map", appMapJSON)
	eng := New(fetcher, Options{})

	loc, err := eng.ResolveLocation(context.Background(), "https://x/bundle.js", 1, 10)
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "src/app.ts", loc.File)
	assert.Equal(t, 4, loc.Line)
	assert.Equal(t, 2, loc.Column)
	assert.Equal(t, "doWork", loc.Name)
	assert.NotEmpty(t, loc.Snippet, "embedded sourcesContent feeds the snippet")
}

func TestResolveLocationMiss(t *testing.T) {
	fetcher := fetchtest.New().RespondString("https://x/bundle.js.map", appMapJSON)
	eng := New(fetcher, Options{})

	loc, err := eng.ResolveLocation(context.Background(), "https://x/bundle.js", 7, 1)
	require.NoError(t, err)
	assert.Nil(t, loc, "a well-formed map with no covering segment is a miss, not an error")
}

func TestResolveLocationInputValidation(t *testing.T) {
	eng := New(fetchtest.New(), Options{})

	_, err := eng.ResolveLocation(context.Background(), "", 1, 1)
	assert.Error(t, err)

	_, err = eng.ResolveLocation(context.Background(), "https://x/b.js", 0, 1)
	assert.Error(t, err)

	_, err = eng.ResolveLocation(context.Background(), "https://x/b.js", 1, -3)
	assert.Error(t, err)
}

func TestResolveStackTrace(t *testing.T) {
	fetcher := fetchtest.New().RespondString("https://x/bundle.js.map", appMapJSON)
	eng := New(fetcher, Options{})

	result, err := eng.ResolveStackTrace(context.Background(), "Error: boom\n    at f (https://x/bundle.js:1:10)")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ResolvedCount)
	assert.Equal(t, 1, result.TotalCount)

	_, err = eng.ResolveStackTrace(context.Background(), "   \n ")
	assert.Error(t, err, "empty input is a contract violation")
}

func TestGetSourceContentFromCachedMap(t *testing.T) {
	fetcher := fetchtest.New().RespondString("https://x/bundle.js.map", appMapJSON)
	eng := New(fetcher, Options{})

	// Prime the map cache.
	_, err := eng.ResolveLocation(context.Background(), "https://x/bundle.js", 1, 10)
	require.NoError(t, err)

	content, err := eng.GetSourceContent(context.Background(), "src/app.ts", 2, 4)
	require.NoError(t, err)
	assert.True(t, content.Embedded)
	assert.Equal(t, 2, content.StartLine)
	assert.Equal(t, []string{"l1", "l2", "l3"}, content.Lines)
	assert.Equal(t, 0, fetcher.Calls("src/app.ts"), "embedded content short-circuits the fetch")
}

func TestGetSourceContentDirectFetch(t *testing.T) {
	fetcher := fetchtest.New().RespondString("https://x/src/app.ts", "a\nb\nc")
	eng := New(fetcher, Options{})

	content, err := eng.GetSourceContent(context.Background(), "https://x/src/app.ts", 0, 0)
	require.NoError(t, err)
	assert.False(t, content.Embedded)
	assert.Equal(t, []string{"a", "b", "c"}, content.Lines)

	_, err = eng.GetSourceContent(context.Background(), "https://x/src/app.ts", 9, 12)
	assert.Error(t, err, "range beyond the file is reported")

	_, err = eng.GetSourceContent(context.Background(), "", 0, 0)
	assert.Error(t, err)

	_, err = eng.GetSourceContent(context.Background(), "https://x/src/app.ts", 5, 2)
	assert.Error(t, err)
}

func TestGetBundleManifestDiscovery(t *testing.T) {
	manifest := `{"modules":[{"id":1,"name":"./a.js","size":500},{"id":2,"name":"./b.js","size":1500}]}`
	// stats.json 404s; the Vite location has it.
	fetcher := fetchtest.New().RespondString("https://x/.vite/manifest.json", manifest)
	eng := New(fetcher, Options{})

	g, err := eng.GetBundleManifest(context.Background(), "https://x/")
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 1, fetcher.Calls("https://x/stats.json"), "candidates probe in order")

	// Parsed graphs are cached per base URL.
	_, err = eng.GetBundleManifest(context.Background(), "https://x/")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.Calls("https://x/.vite/manifest.json"))

	top := g.LargestModules(1)
	require.Len(t, top, 1)
	assert.Equal(t, "2", top[0].ID)
}

func TestGetBundleManifestDirectURL(t *testing.T) {
	manifest := `{"modules":[{"id":1,"name":"./a.js","size":500}]}`
	fetcher := fetchtest.New().RespondString("https://x/build/stats.json", manifest)
	eng := New(fetcher, Options{})

	g, err := eng.GetBundleManifest(context.Background(), "https://x/build/stats.json")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
}

func TestGetBundleManifestNothingUsable(t *testing.T) {
	eng := New(fetchtest.New(), Options{})

	_, err := eng.GetBundleManifest(context.Background(), "https://x/")
	assert.Error(t, err)

	_, err = eng.GetBundleManifest(context.Background(), "")
	assert.Error(t, err)
}

func TestBuildErrorContext(t *testing.T) {
	fetcher := fetchtest.New().RespondString("https://x/bundle.js.map", appMapJSON)
	eng := New(fetcher, Options{NetworkWindow: 5 * time.Second})

	errorTime := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	network := []errcontext.NetworkTrace{
		{URL: "https://api/x", Timestamp: errorTime.Add(-time.Second)},
		{URL: "https://api/old", Timestamp: errorTime.Add(-time.Hour)},
	}

	ctx, err := eng.BuildErrorContext(context.Background(), "boom",
		"    at f (https://x/bundle.js:1:10)", errorTime, nil, network, nil)
	require.NoError(t, err)
	require.NotNil(t, ctx.Trace)
	assert.Equal(t, 1, ctx.Trace.ResolvedCount)
	require.Len(t, ctx.Network, 1)
	assert.Equal(t, "https://api/x", ctx.Network[0].URL)
}

func TestCloseClearsState(t *testing.T) {
	fetcher := fetchtest.New().RespondString("https://x/bundle.js.map", appMapJSON)
	eng := New(fetcher, Options{})

	_, err := eng.ResolveLocation(context.Background(), "https://x/bundle.js", 1, 10)
	require.NoError(t, err)

	eng.Close()

	_, err = eng.ResolveLocation(context.Background(), "https://x/bundle.js", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.Calls("https://x/bundle.js.map"), "teardown clears the cache")
}

func TestInvalidateMap(t *testing.T) {
	fetcher := fetchtest.New().RespondString("https://x/bundle.js.map", appMapJSON)
	eng := New(fetcher, Options{})

	_, err := eng.ResolveLocation(context.Background(), "https://x/bundle.js", 1, 10)
	require.NoError(t, err)

	eng.InvalidateMap("https://x/bundle.js")

	_, err = eng.ResolveLocation(context.Background(), "https://x/bundle.js", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.Calls("https://x/bundle.js.map"))
}
