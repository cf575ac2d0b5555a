package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildGraph assembles a graph directly: deps maps module id to the ids it
// imports.
func buildGraph(t *testing.T, sizes map[string]int64, deps map[string][]string) *Graph {
	t.Helper()
	g := newGraph(FormatWebpackStats)

	ids := make([]string, 0, len(sizes))
	for id := range sizes {
		ids = append(ids, id)
	}
	// Deterministic insertion order for the test.
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}

	for _, id := range ids {
		g.addNode(&ModuleNode{ID: id, Path: "./" + id, Size: sizes[id]})
	}
	for id, targets := range deps {
		node, ok := g.nodes[id]
		require.True(t, ok)
		for _, target := range targets {
			node.addDependency(target)
		}
	}
	g.finish()
	return g
}

func TestLargestModules(t *testing.T) {
	// Scenario: modules {id:1,size:500} and {id:2,size:1500};
	// largestModules(1) returns module 2.
	g := buildGraph(t, map[string]int64{"1": 500, "2": 1500}, nil)

	top := g.LargestModules(1)
	require.Len(t, top, 1)
	assert.Equal(t, "2", top[0].ID)
	assert.Equal(t, int64(1500), top[0].Size)
}

func TestLargestModulesTieBreak(t *testing.T) {
	g := buildGraph(t, map[string]int64{"zebra": 100, "alpha": 100, "mid": 100}, nil)

	top := g.LargestModules(3)
	require.Len(t, top, 3)
	assert.Equal(t, "./alpha", top[0].Path, "ties break by path lexical order")
	assert.Equal(t, "./mid", top[1].Path)
	assert.Equal(t, "./zebra", top[2].Path)
}

func TestLargestModulesBounds(t *testing.T) {
	g := buildGraph(t, map[string]int64{"a": 1}, nil)

	assert.Len(t, g.LargestModules(10), 1)
	assert.Nil(t, g.LargestModules(0))
	assert.Nil(t, g.LargestModules(-1))
}

func TestDependentsOf(t *testing.T) {
	// main imports util and lib; util imports lib.
	g := buildGraph(t,
		map[string]int64{"main": 10, "util": 20, "lib": 30},
		map[string][]string{"main": {"util", "lib"}, "util": {"lib"}},
	)

	assert.Equal(t, []string{"main", "util"}, g.DependentsOf("lib"))
	assert.Equal(t, []string{"main"}, g.DependentsOf("util"))
	assert.Empty(t, g.DependentsOf("main"))
	assert.Nil(t, g.DependentsOf("missing"))
}

func TestDependentsOfCycle(t *testing.T) {
	// Circular dependency between A and B: the traversal terminates and reports {B}.
	g := buildGraph(t,
		map[string]int64{"A": 1, "B": 2},
		map[string][]string{"A": {"B"}, "B": {"A"}},
	)

	assert.Equal(t, []string{"B"}, g.DependentsOf("A"))
	assert.Equal(t, []string{"A"}, g.DependentsOf("B"))
}

func TestDependentsOfLongerCycle(t *testing.T) {
	g := buildGraph(t,
		map[string]int64{"a": 1, "b": 1, "c": 1, "d": 1},
		map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}, "d": {"c"}},
	)

	// Everyone on the cycle plus d transitively imports c.
	assert.Equal(t, []string{"a", "b", "d"}, g.DependentsOf("c"))
}

func TestFindModule(t *testing.T) {
	g := buildGraph(t, map[string]int64{"1": 10, "2": 20}, nil)

	node, ok := g.FindModule("1")
	require.True(t, ok)
	assert.Equal(t, "1", node.ID)

	node, ok = g.FindModule("./2")
	require.True(t, ok)
	assert.Equal(t, "2", node.ID)

	_, ok = g.FindModule("nope")
	assert.False(t, ok)
}

func TestFindModuleBySuffix(t *testing.T) {
	g := newGraph(FormatViteManifest)
	g.addNode(&ModuleNode{ID: "src/components/Button.tsx", Path: "src/components/Button.tsx"})
	g.addNode(&ModuleNode{ID: "src/pages/Button.tsx", Path: "src/pages/Button.tsx"})
	g.finish()

	node, ok := g.FindModule("Button.tsx")
	require.True(t, ok)
	assert.Equal(t, "src/components/Button.tsx", node.Path, "ambiguity resolves to the lexically smallest path")
}

func TestAnalyzeSize(t *testing.T) {
	g := buildGraph(t, map[string]int64{"small": 100, "big": 5000, "huge": 9000}, nil)

	report := g.AnalyzeSize(4000)
	assert.Equal(t, int64(14100), report.TotalBytes)
	assert.Equal(t, 3, report.ModuleCount)
	require.Len(t, report.OverThreshold, 2)
	assert.Equal(t, "huge", report.OverThreshold[0].ID, "largest first")
	assert.Equal(t, "big", report.OverThreshold[1].ID)
}

func TestAnalyzeSizeDuplicatePathHint(t *testing.T) {
	g := newGraph(FormatWebpackStats)
	g.addNode(&ModuleNode{ID: "1", Path: "./node_modules/lodash/index.js", Size: 100})
	g.addNode(&ModuleNode{ID: "2", Path: "./node_modules/lodash/index.js", Size: 100})
	g.finish()

	report := g.AnalyzeSize(0)
	require.Len(t, report.Hints, 1)
	assert.Contains(t, report.Hints[0], "bundled more than once")
}
