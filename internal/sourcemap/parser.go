package sourcemap

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawMap mirrors the source map v3 JSON structure.
type rawMap struct {
	Version        int             `json:"version"`
	File           string          `json:"file"`
	SourceRoot     string          `json:"sourceRoot"`
	Sources        []string        `json:"sources"`
	SourcesContent []*string       `json:"sourcesContent"`
	Names          []string        `json:"names"`
	Mappings       string          `json:"mappings"`
	Sections       json.RawMessage `json:"sections"`
}

// Parse decodes a source map artifact into an immutable SourceMap.
// generatedURL identifies the minified file the map describes and becomes the
// cache key. Malformed structure, an unsupported version, or a segment index
// pointing outside sources/names all yield a *Failure tagged FailParse.
func Parse(generatedURL string, data []byte) (*SourceMap, error) {
	var raw rawMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &Failure{Kind: FailParse, URL: generatedURL, Err: fmt.Errorf("invalid JSON: %w", err)}
	}

	if raw.Version != 3 {
		return nil, &Failure{Kind: FailParse, URL: generatedURL, Err: fmt.Errorf("unsupported source map version %d", raw.Version)}
	}
	if len(raw.Sections) > 0 {
		return nil, &Failure{Kind: FailParse, URL: generatedURL, Err: fmt.Errorf("indexed (sectioned) source maps are not supported")}
	}

	segments, err := decodeMappings(raw.Mappings)
	if err != nil {
		return nil, &Failure{Kind: FailParse, URL: generatedURL, Err: fmt.Errorf("invalid mappings: %w", err)}
	}

	sources := make([]string, len(raw.Sources))
	for i, src := range raw.Sources {
		sources[i] = joinSourceRoot(raw.SourceRoot, src)
	}

	content := make([]string, len(sources))
	for i := range raw.SourcesContent {
		if i >= len(content) {
			break
		}
		if raw.SourcesContent[i] != nil {
			content[i] = *raw.SourcesContent[i]
		}
	}

	// Every segment index must land inside the tables it references.
	for _, seg := range segments {
		if seg.HasSource() && seg.SourceIndex >= len(sources) {
			return nil, &Failure{Kind: FailParse, URL: generatedURL,
				Err: fmt.Errorf("segment at %d:%d references source %d of %d", seg.GeneratedLine, seg.GeneratedColumn, seg.SourceIndex, len(sources))}
		}
		if seg.HasName() && seg.NameIndex >= len(raw.Names) {
			return nil, &Failure{Kind: FailParse, URL: generatedURL,
				Err: fmt.Errorf("segment at %d:%d references name %d of %d", seg.GeneratedLine, seg.GeneratedColumn, seg.NameIndex, len(raw.Names))}
		}
	}

	return &SourceMap{
		GeneratedURL:   generatedURL,
		Sources:        sources,
		SourcesContent: content,
		Names:          raw.Names,
		Segments:       segments,
	}, nil
}

// joinSourceRoot prefixes a source identifier with the map's sourceRoot.
func joinSourceRoot(root, src string) string {
	if root == "" {
		return src
	}
	return strings.TrimSuffix(root, "/") + "/" + strings.TrimPrefix(src, "/")
}
