package errcontext

import (
	"encoding/json"
	"time"

	"github.com/yousuf/sourcetrace-mcp/internal/stacktrace"
)

// ConsoleMessage is one console entry captured around the error.
type ConsoleMessage struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NetworkTrace is one network request captured around the error. The
// initiator stack, when the capture layer recorded one, lets the aggregator
// tie the request to the failing code path.
type NetworkTrace struct {
	Method         string    `json:"method"`
	URL            string    `json:"url"`
	Status         int       `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	InitiatorStack string    `json:"initiatorStack,omitempty"`
}

// ErrorContext is the assembled diagnostic record: a resolved trace plus
// whatever auxiliary signals were available. Absent inputs produce empty or
// omitted fields, never an error.
type ErrorContext struct {
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Trace     *stacktrace.Result     `json:"trace,omitempty"`
	Console   []ConsoleMessage       `json:"console,omitempty"`
	Network   []NetworkTrace         `json:"network,omitempty"`
	State     json.RawMessage        `json:"state,omitempty"`
}

// DefaultNetworkWindow is how far before the error a network request may
// have started and still be considered related.
const DefaultNetworkWindow = 5 * time.Second

// Aggregator composes error contexts. It holds no resolution logic; the
// trace arrives already resolved.
type Aggregator struct {
	window time.Duration
}

// NewAggregator creates an Aggregator with the given correlation window.
// A window of zero or less falls back to DefaultNetworkWindow.
func NewAggregator(window time.Duration) *Aggregator {
	if window <= 0 {
		window = DefaultNetworkWindow
	}
	return &Aggregator{window: window}
}

// Build assembles an ErrorContext. Network traces are kept when they fall
// inside the window ending at errorTime and, if they carry an initiator
// stack, when that stack shares a file with the resolved trace. Console
// messages pass through unfiltered; chronology there is the caller's signal.
func (a *Aggregator) Build(message string, errorTime time.Time, trace *stacktrace.Result, console []ConsoleMessage, network []NetworkTrace, state json.RawMessage) *ErrorContext {
	ctx := &ErrorContext{
		Message:   message,
		Timestamp: errorTime,
		Trace:     trace,
		State:     state,
	}
	if len(console) > 0 {
		ctx.Console = append([]ConsoleMessage(nil), console...)
	}

	traceFiles := filesInTrace(trace)
	for _, nt := range network {
		if !withinWindow(nt.Timestamp, errorTime, a.window) {
			continue
		}
		if nt.InitiatorStack != "" && len(traceFiles) > 0 && !sharesFile(nt.InitiatorStack, traceFiles) {
			continue
		}
		ctx.Network = append(ctx.Network, nt)
	}

	return ctx
}

// withinWindow reports whether ts falls inside [errorTime-window, errorTime].
func withinWindow(ts, errorTime time.Time, window time.Duration) bool {
	if ts.IsZero() {
		return false
	}
	if ts.After(errorTime) {
		return false
	}
	return errorTime.Sub(ts) <= window
}

// filesInTrace collects the generated and resolved file identifiers a trace
// touches.
func filesInTrace(trace *stacktrace.Result) map[string]struct{} {
	if trace == nil {
		return nil
	}
	files := make(map[string]struct{})
	for i := range trace.Frames {
		frame := &trace.Frames[i]
		if frame.FileURL != "" {
			files[frame.FileURL] = struct{}{}
		}
		if frame.Resolved != nil && frame.Resolved.File != "" {
			files[frame.Resolved.File] = struct{}{}
		}
	}
	return files
}

// sharesFile reports whether any frame of an initiator stack references one
// of the given files.
func sharesFile(initiatorStack string, files map[string]struct{}) bool {
	for _, frame := range stacktrace.ParseTrace(initiatorStack) {
		if frame.FileURL == "" {
			continue
		}
		if _, ok := files[frame.FileURL]; ok {
			return true
		}
	}
	return false
}
