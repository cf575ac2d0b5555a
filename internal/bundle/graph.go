package bundle

import (
	"fmt"
	"sort"
	"strings"
)

// ModuleNode is one module in a bundle's dependency graph.
type ModuleNode struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	// Size in bytes; 0 when the manifest format carries no sizes.
	Size int64 `json:"size"`
	// Dependencies holds the ids of modules this module imports, in
	// first-seen order with duplicates removed.
	Dependencies []string `json:"dependencies,omitempty"`

	depSet map[string]struct{}
}

func (n *ModuleNode) addDependency(id string) {
	if n.depSet == nil {
		n.depSet = make(map[string]struct{})
	}
	if _, ok := n.depSet[id]; ok {
		return
	}
	n.depSet[id] = struct{}{}
	n.Dependencies = append(n.Dependencies, id)
}

// Graph is a directed module dependency graph. Cycles are legal (circular
// imports exist in real bundles); every traversal is visited-set guarded.
type Graph struct {
	Format ManifestFormat

	nodes map[string]*ModuleNode
	// reverse maps a module id to the ids that import it.
	reverse map[string][]string
	order   []string
}

func newGraph(format ManifestFormat) *Graph {
	return &Graph{
		Format:  format,
		nodes:   make(map[string]*ModuleNode),
		reverse: make(map[string][]string),
	}
}

func (g *Graph) addNode(node *ModuleNode) {
	if _, ok := g.nodes[node.ID]; ok {
		return
	}
	g.nodes[node.ID] = node
	g.order = append(g.order, node.ID)
}

// finish builds the reverse-edge index once all nodes and edges are in.
func (g *Graph) finish() {
	for _, id := range g.order {
		for _, dep := range g.nodes[id].Dependencies {
			g.reverse[dep] = append(g.reverse[dep], id)
		}
	}
}

// Len reports the number of modules.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the module with the given id.
func (g *Graph) Node(id string) (*ModuleNode, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// Modules returns all modules in manifest order.
func (g *Graph) Modules() []*ModuleNode {
	out := make([]*ModuleNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// LargestModules returns up to n modules sorted descending by byte size,
// ties broken by path lexical order so output is deterministic.
func (g *Graph) LargestModules(n int) []*ModuleNode {
	if n <= 0 {
		return nil
	}
	modules := g.Modules()
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].Size != modules[j].Size {
			return modules[i].Size > modules[j].Size
		}
		return modules[i].Path < modules[j].Path
	})
	if n > len(modules) {
		n = len(modules)
	}
	return modules[:n]
}

// DependentsOf returns the ids of every module that directly or transitively
// imports moduleId, sorted. The reverse-edge walk is visited-set guarded so
// dependency cycles terminate; the queried module is excluded from its own
// dependents even when it sits on a cycle.
func (g *Graph) DependentsOf(moduleID string) []string {
	if _, ok := g.nodes[moduleID]; !ok {
		return nil
	}

	visited := map[string]struct{}{moduleID: {}}
	var dependents []string
	queue := append([]string(nil), g.reverse[moduleID]...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}
		dependents = append(dependents, id)
		queue = append(queue, g.reverse[id]...)
	}

	sort.Strings(dependents)
	return dependents
}

// FindModule locates a module by exact id, exact path, then path suffix or
// substring. Ambiguous substring matches resolve to the lexically smallest
// path for determinism.
func (g *Graph) FindModule(pathOrID string) (*ModuleNode, bool) {
	if node, ok := g.nodes[pathOrID]; ok {
		return node, true
	}

	var candidates []*ModuleNode
	for _, id := range g.order {
		node := g.nodes[id]
		if node.Path == pathOrID {
			return node, true
		}
		if strings.HasSuffix(node.Path, pathOrID) || strings.Contains(node.Path, pathOrID) {
			candidates = append(candidates, node)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })
	return candidates[0], true
}

// SizeReport summarizes bundle weight for diagnostics.
type SizeReport struct {
	Format        ManifestFormat `json:"format"`
	ModuleCount   int            `json:"moduleCount"`
	TotalBytes    int64          `json:"totalBytes"`
	OverThreshold []*ModuleNode  `json:"overThreshold,omitempty"`
	Hints         []string       `json:"hints,omitempty"`
}

// AnalyzeSize reports total bundle weight, the modules exceeding
// thresholdBytes (largest first), and optimization hints derived from the
// graph alone: duplicate module paths bundled more than once and modules
// with unusually heavy fan-in.
func (g *Graph) AnalyzeSize(thresholdBytes int64) *SizeReport {
	report := &SizeReport{
		Format:      g.Format,
		ModuleCount: len(g.nodes),
	}

	pathCount := make(map[string]int)
	for _, id := range g.order {
		node := g.nodes[id]
		report.TotalBytes += node.Size
		pathCount[node.Path]++
		if thresholdBytes > 0 && node.Size >= thresholdBytes {
			report.OverThreshold = append(report.OverThreshold, node)
		}
	}
	sort.SliceStable(report.OverThreshold, func(i, j int) bool {
		if report.OverThreshold[i].Size != report.OverThreshold[j].Size {
			return report.OverThreshold[i].Size > report.OverThreshold[j].Size
		}
		return report.OverThreshold[i].Path < report.OverThreshold[j].Path
	})

	var dupPaths []string
	for path, count := range pathCount {
		if count > 1 {
			dupPaths = append(dupPaths, path)
		}
	}
	sort.Strings(dupPaths)
	for _, path := range dupPaths {
		report.Hints = append(report.Hints,
			"module "+path+" is bundled more than once; check for mixed import specifiers or duplicated dependency versions")
	}

	const heavyFanIn = 10
	type hub struct {
		path  string
		fanIn int
	}
	var hubs []hub
	for _, id := range g.order {
		if fanIn := len(g.reverse[id]); fanIn >= heavyFanIn {
			hubs = append(hubs, hub{path: g.nodes[id].Path, fanIn: fanIn})
		}
	}
	sort.Slice(hubs, func(i, j int) bool { return hubs[i].path < hubs[j].path })
	for _, h := range hubs {
		report.Hints = append(report.Hints,
			fmt.Sprintf("module %s is imported by %d modules; a change here invalidates most of the bundle", h.path, h.fanIn))
	}

	return report
}
