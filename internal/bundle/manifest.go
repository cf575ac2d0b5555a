package bundle

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ManifestFormat tags which manifest variant a graph was built from.
type ManifestFormat string

const (
	// FormatWebpackStats is a webpack stats object: a "modules" array whose
	// entries carry id, size and reasons/dependencies.
	FormatWebpackStats ManifestFormat = "webpack-stats"
	// FormatViteManifest is a Vite/Rollup build manifest: a path-keyed
	// object whose values carry file, imports and dynamicImports.
	FormatViteManifest ManifestFormat = "vite-manifest"
)

// ParseError is the typed error for manifests that match no supported shape
// or are structurally broken. An unrecognized manifest never yields a
// best-effort graph with silently wrong sizes.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("manifest parse error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("manifest parse error: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseManifest builds a module graph from bundler output. The format is
// always determined by structural probing in fixed priority order (webpack
// stats first, then Vite manifest); the first parser that accepts the
// structure wins. hint is advisory, never trusted on its own: when it
// disagrees with the probed format the manifest is rejected instead of being
// parsed into a graph with wrong sizes. Pass "" to accept whatever probes.
func ParseManifest(data []byte, hint ManifestFormat) (*Graph, error) {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &ParseError{Reason: "invalid JSON", Err: err}
	}

	g, ok := parseWebpackStats(data)
	if !ok {
		g, ok = parseViteManifest(data)
	}
	if !ok {
		return nil, &ParseError{Reason: "unrecognized manifest shape (expected webpack stats or Vite manifest)"}
	}
	if hint != "" && hint != g.Format {
		return nil, &ParseError{Reason: fmt.Sprintf("manifest probes as %s, caller declared %s", g.Format, hint)}
	}
	return g, nil
}

// webpackStats mirrors the subset of a webpack stats object the analyzer
// consumes. Module ids are numbers in older webpack and strings in newer
// ones, so they decode through json.Number-tolerant any values.
type webpackStats struct {
	Modules []webpackModule `json:"modules"`
}

type webpackModule struct {
	ID           any             `json:"id"`
	Identifier   string          `json:"identifier"`
	Name         string          `json:"name"`
	Size         int64           `json:"size"`
	Reasons      []webpackReason `json:"reasons"`
	Dependencies []any           `json:"dependencies"`
}

type webpackReason struct {
	ModuleID   any    `json:"moduleId"`
	ModuleName string `json:"moduleName"`
}

// parseWebpackStats probes data as a webpack stats object. ok is false when
// the structure does not look like one at all; a present-but-empty modules
// array is still a valid (empty) graph.
func parseWebpackStats(data []byte) (*Graph, bool) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, false
	}
	rawModules, ok := shape["modules"]
	if !ok {
		return nil, false
	}

	var stats webpackStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, false
	}
	// Distinguish "modules": [] from "modules" of the wrong type.
	var asArray []json.RawMessage
	if err := json.Unmarshal(rawModules, &asArray); err != nil {
		return nil, false
	}

	g := newGraph(FormatWebpackStats)
	for _, m := range stats.Modules {
		id := moduleIDString(m.ID)
		if id == "" {
			id = m.Identifier
		}
		if id == "" {
			id = m.Name
		}
		if id == "" {
			continue
		}
		path := m.Name
		if path == "" {
			path = m.Identifier
		}
		if path == "" {
			path = id
		}
		g.addNode(&ModuleNode{ID: id, Path: path, Size: m.Size})
	}

	// Reasons record who imports a module, so each reason contributes an
	// importer-to-module edge. A "dependencies" array records the forward
	// direction directly.
	for _, m := range stats.Modules {
		id := moduleIDString(m.ID)
		if id == "" {
			id = m.Identifier
		}
		if id == "" {
			id = m.Name
		}
		node, ok := g.nodes[id]
		if !ok {
			continue
		}
		for _, reason := range m.Reasons {
			importer := moduleIDString(reason.ModuleID)
			if importer == "" {
				importer = reason.ModuleName
			}
			if parent, ok := g.nodes[importer]; ok && importer != id {
				parent.addDependency(id)
			}
		}
		for _, dep := range m.Dependencies {
			depID := moduleIDString(dep)
			if _, ok := g.nodes[depID]; ok && depID != id {
				node.addDependency(depID)
			}
		}
	}

	g.finish()
	return g, true
}

// viteChunk mirrors one entry of a Vite/Rollup build manifest. The manifest
// carries no byte sizes; those nodes report Size 0 and size-ranking callers
// see them last.
type viteChunk struct {
	File           string   `json:"file"`
	Src            string   `json:"src"`
	IsEntry        bool     `json:"isEntry"`
	Imports        []string `json:"imports"`
	DynamicImports []string `json:"dynamicImports"`
}

// parseViteManifest probes data as a path-keyed Vite manifest: every value
// must be an object carrying a "file" string.
func parseViteManifest(data []byte) (*Graph, bool) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, false
	}
	if len(shape) == 0 {
		return nil, false
	}

	chunks := make(map[string]viteChunk, len(shape))
	for key, raw := range shape {
		var chunk viteChunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return nil, false
		}
		if chunk.File == "" {
			return nil, false
		}
		chunks[key] = chunk
	}

	g := newGraph(FormatViteManifest)

	keys := make([]string, 0, len(chunks))
	for key := range chunks {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		chunk := chunks[key]
		path := chunk.Src
		if path == "" {
			path = key
		}
		g.addNode(&ModuleNode{ID: key, Path: path})
	}
	for _, key := range keys {
		node := g.nodes[key]
		for _, imp := range append(chunks[key].Imports, chunks[key].DynamicImports...) {
			if _, ok := g.nodes[imp]; ok && imp != key {
				node.addDependency(imp)
			}
		}
	}

	g.finish()
	return g, true
}

// moduleIDString canonicalizes a webpack module id (number or string).
func moduleIDString(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
