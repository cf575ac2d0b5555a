package stacktrace

import "github.com/yousuf/sourcetrace-mcp/internal/sourcemap"

// Frame is one line of a stack trace. Parsed frames carry a generated
// location; opaque frames (error messages, framework noise, anything that
// matched no pattern) keep only Raw so the input trace is always recoverable
// line for line.
type Frame struct {
	// Raw is the original line, preserved verbatim.
	Raw string `json:"raw"`
	// FunctionName is the generated-code function name, "" when anonymous
	// or opaque.
	FunctionName string `json:"functionName,omitempty"`
	// FileURL is the generated file the frame points into.
	FileURL string `json:"fileUrl,omitempty"`
	// Line and Column are 1-based trace coordinates; 0 when unknown.
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`
	// Native marks `at fn (native)` frames, which carry no location.
	Native bool `json:"native,omitempty"`
	// Opaque marks lines that matched no frame pattern.
	Opaque bool `json:"opaque,omitempty"`
	// Resolved is the original-source location, nil when resolution failed
	// or was never attempted (opaque and native frames stay nil).
	Resolved *sourcemap.ResolvedLocation `json:"resolved,omitempty"`
}

// HasLocation reports whether the frame parsed to a resolvable coordinate.
func (f *Frame) HasLocation() bool {
	return !f.Opaque && !f.Native && f.FileURL != "" && f.Line > 0
}

// Result is a reconstructed trace. Frames preserves input order, innermost
// call first; ResolvedCount over TotalCount is the caller's confidence
// signal.
type Result struct {
	Frames []Frame `json:"frames"`
	// ResolvedCount is the number of frames mapped to an original location.
	ResolvedCount int `json:"resolvedCount"`
	// TotalCount is the number of frames that carried a resolvable
	// location (opaque and native lines are excluded).
	TotalCount int `json:"totalCount"`
}
