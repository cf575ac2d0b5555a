package stacktrace

import (
	"fmt"
	"strings"
)

// FormatTrace renders a resolved trace back into the conventional textual
// form. Resolved frames are rewritten with their original file, position and
// symbol name; unresolved, native and opaque frames are emitted verbatim so
// the output always has the same number of lines as the input.
func FormatTrace(result *Result) string {
	lines := make([]string, len(result.Frames))
	for i := range result.Frames {
		lines[i] = formatFrame(&result.Frames[i])
	}
	return strings.Join(lines, "\n")
}

// FormatTraceAnnotated renders the trace with a per-frame resolution marker
// and a trailing confidence summary, for diagnostic output.
func FormatTraceAnnotated(result *Result) string {
	var b strings.Builder
	for i := range result.Frames {
		frame := &result.Frames[i]
		b.WriteString(formatFrame(frame))
		switch {
		case frame.Opaque || frame.Native:
		case frame.Resolved != nil:
			b.WriteString(" [mapped]")
		default:
			b.WriteString(" [unmapped]")
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%d/%d frames resolved", result.ResolvedCount, result.TotalCount)
	return b.String()
}

// formatFrame renders one frame, preserving the raw line's indentation.
func formatFrame(frame *Frame) string {
	loc := frame.Resolved
	if loc == nil || !loc.HasPosition() {
		return frame.Raw
	}

	name := frame.FunctionName
	if loc.Name != "" {
		name = loc.Name
	}

	indent := frame.Raw[:len(frame.Raw)-len(strings.TrimLeft(frame.Raw, " \t"))]

	// Back to the 1-based convention traces are written in.
	if name == "" {
		return fmt.Sprintf("%sat %s:%d:%d", indent, loc.File, loc.Line+1, loc.Column+1)
	}
	return fmt.Sprintf("%sat %s (%s:%d:%d)", indent, name, loc.File, loc.Line+1, loc.Column+1)
}
