package sourcemap

import "fmt"

// Segment is one decoded mapping record with absolute positions.
// All coordinates are 0-based. SourceIndex, OriginalLine, OriginalColumn and
// NameIndex are -1 when the segment does not carry them (a "generated-only"
// segment, common for whitespace and punctuation regions).
type Segment struct {
	GeneratedLine   int
	GeneratedColumn int
	SourceIndex     int
	OriginalLine    int
	OriginalColumn  int
	NameIndex       int
}

// HasSource reports whether the segment maps back to an original position.
func (s Segment) HasSource() bool {
	return s.SourceIndex >= 0
}

// HasName reports whether the segment references a symbol name.
func (s Segment) HasName() bool {
	return s.NameIndex >= 0
}

// SourceMap is a decoded map artifact. It is immutable once constructed;
// a re-fetch builds a new value, it never mutates an existing one.
type SourceMap struct {
	// GeneratedURL identifies the minified file this map describes.
	GeneratedURL string
	// Sources lists original file identifiers, unique within the map.
	Sources []string
	// SourcesContent holds embedded original text aligned with Sources;
	// entries are "" when the map did not embed that source.
	SourcesContent []string
	// Names lists symbol names referenced by segments.
	Names []string
	// Segments is sorted by (GeneratedLine, GeneratedColumn).
	Segments []Segment
}

// SourceContent returns the embedded original text for a source identifier.
func (m *SourceMap) SourceContent(file string) (string, bool) {
	for i, src := range m.Sources {
		if src == file && i < len(m.SourcesContent) && m.SourcesContent[i] != "" {
			return m.SourcesContent[i], true
		}
	}
	return "", false
}

// ResolvedLocation is the outcome of resolving one generated coordinate.
// Line/Column are -1 when the covering segment carried no original position
// (partial resolution); a total miss is signaled by the caller receiving no
// location at all.
type ResolvedLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	// Name is the original symbol name, "" when the segment had none.
	Name string `json:"name,omitempty"`
	// Snippet is a window of original source lines centered on Line,
	// present only when original text was available.
	Snippet []string `json:"snippet,omitempty"`
	// SnippetStart is the 0-based line number of Snippet[0].
	SnippetStart int `json:"snippetStart,omitempty"`
}

// HasPosition reports whether the location carries an original line/column.
func (l *ResolvedLocation) HasPosition() bool {
	return l.Line >= 0
}

// FailureKind classifies why a map could not be produced for a generated URL.
type FailureKind int

const (
	// FailFetch means the artifact was unreachable (network error, timeout,
	// non-2xx status) or the caller's deadline expired.
	FailFetch FailureKind = iota + 1
	// FailParse means the artifact was fetched but is not a usable source
	// map (malformed JSON, unsupported version, invalid indices).
	FailParse
	// FailNotFound means no map reference could be discovered for the
	// generated file (no .map convention hit, no sourceMappingURL directive).
	FailNotFound
)

func (k FailureKind) String() string {
	switch k {
	case FailFetch:
		return "fetch failure"
	case FailParse:
		return "parse error"
	case FailNotFound:
		return "map not found"
	default:
		return "unknown failure"
	}
}

// Failure is the typed error returned when a source map cannot be obtained.
// It degrades the affected location or frame to an unresolved result; it is
// never meant to abort a batch operation.
type Failure struct {
	Kind FailureKind
	URL  string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s for %s: %v", f.Kind, f.URL, f.Err)
	}
	return fmt.Sprintf("%s for %s", f.Kind, f.URL)
}

func (f *Failure) Unwrap() error { return f.Err }
