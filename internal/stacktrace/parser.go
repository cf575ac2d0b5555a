package stacktrace

import (
	"regexp"
	"strconv"
	"strings"
)

// Frame line patterns, tried in order:
//   - at functionName (file:line:column)
//   - at file:line:column
//   - bare file:line:column
//   - at functionName (native)
var (
	namedFramePattern  = regexp.MustCompile(`^at\s+(.+?)\s+\((.+?):(\d+):(\d+)\)$`)
	anonFramePattern   = regexp.MustCompile(`^at\s+(.+?):(\d+):(\d+)$`)
	bareFramePattern   = regexp.MustCompile(`^(.+?):(\d+):(\d+)$`)
	nativeFramePattern = regexp.MustCompile(`^at\s+(.+?)\s+\(native\)$`)
)

// ParseTrace splits a raw stack trace into frames, one per input line. Lines
// matching no pattern become opaque frames rather than being dropped; a
// single trailing newline is tolerated without producing a phantom frame.
func ParseTrace(raw string) []Frame {
	raw = strings.TrimSuffix(raw, "\n")
	if raw == "" {
		return nil
	}

	lines := strings.Split(raw, "\n")
	frames := make([]Frame, 0, len(lines))
	for _, line := range lines {
		frames = append(frames, parseLine(line))
	}
	return frames
}

// parseLine classifies one trace line.
func parseLine(line string) Frame {
	trimmed := strings.TrimSpace(line)

	if m := namedFramePattern.FindStringSubmatch(trimmed); m != nil {
		lineNum, _ := strconv.Atoi(m[3])
		colNum, _ := strconv.Atoi(m[4])
		return Frame{
			Raw:          line,
			FunctionName: m[1],
			FileURL:      m[2],
			Line:         lineNum,
			Column:       colNum,
		}
	}

	if m := anonFramePattern.FindStringSubmatch(trimmed); m != nil {
		lineNum, _ := strconv.Atoi(m[2])
		colNum, _ := strconv.Atoi(m[3])
		return Frame{
			Raw:     line,
			FileURL: m[1],
			Line:    lineNum,
			Column:  colNum,
		}
	}

	if m := bareFramePattern.FindStringSubmatch(trimmed); m != nil {
		lineNum, _ := strconv.Atoi(m[2])
		colNum, _ := strconv.Atoi(m[3])
		return Frame{
			Raw:     line,
			FileURL: m[1],
			Line:    lineNum,
			Column:  colNum,
		}
	}

	if m := nativeFramePattern.FindStringSubmatch(trimmed); m != nil {
		return Frame{
			Raw:          line,
			FunctionName: m[1],
			Native:       true,
		}
	}

	return Frame{Raw: line, Opaque: true}
}
