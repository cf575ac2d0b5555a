package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/yousuf/sourcetrace-mcp/internal/bundle"
	"github.com/yousuf/sourcetrace-mcp/internal/errcontext"
	"github.com/yousuf/sourcetrace-mcp/internal/session"
	"github.com/yousuf/sourcetrace-mcp/internal/stacktrace"
)

// ResolveStackTraceArgs represents the arguments for the resolve_stack_trace tool
type ResolveStackTraceArgs struct {
	StackTrace string `json:"stackTrace" jsonschema:"Required. Raw stack trace text copied from the browser console or an error report."`
	Annotated  bool   `json:"annotated,omitempty" jsonschema:"Append per-frame mapped/unmapped markers and a confidence summary (default: false)"`
}

// ResolveLocationArgs represents the arguments for the resolve_location tool
type ResolveLocationArgs struct {
	URL    string `json:"url" jsonschema:"Required. URL of the generated (minified) file, e.g. 'https://app.example.com/assets/main.js'"`
	Line   int    `json:"line" jsonschema:"Required. 1-based line number in the generated file"`
	Column int    `json:"column" jsonschema:"Required. 1-based column number in the generated file"`
}

// GetSourceContentArgs represents the arguments for the get_source_content tool
type GetSourceContentArgs struct {
	File      string `json:"file" jsonschema:"Required. Original source identifier as reported by resolve_stack_trace/resolve_location"`
	StartLine int    `json:"startLine,omitempty" jsonschema:"First line to return, 1-based inclusive. Defaults to the start of the file."`
	EndLine   int    `json:"endLine,omitempty" jsonschema:"Last line to return, 1-based inclusive. Defaults to the end of the file."`
}

// AnalyzeBundleArgs represents the arguments for the analyze_bundle tool
type AnalyzeBundleArgs struct {
	BaseURL        string `json:"baseUrl" jsonschema:"Required. Application base URL (manifest discovered at stats.json, .vite/manifest.json or manifest.json) or a direct manifest URL ending in .json"`
	ThresholdBytes int64  `json:"thresholdBytes,omitempty" jsonschema:"Report modules at or above this size in bytes (default: 102400)"`
	TopModules     int    `json:"topModules,omitempty" jsonschema:"How many of the largest modules to list (default: 10)"`
}

// FindModuleArgs represents the arguments for the find_module tool
type FindModuleArgs struct {
	BaseURL string `json:"baseUrl" jsonschema:"Required. Application base URL or direct manifest URL, as for analyze_bundle"`
	Query   string `json:"query" jsonschema:"Required. Module id, exact path, or path fragment to look up"`
}

// BuildErrorContextArgs represents the arguments for the build_error_context tool
type BuildErrorContextArgs struct {
	Message    string                       `json:"message,omitempty" jsonschema:"Error message"`
	StackTrace string                       `json:"stackTrace,omitempty" jsonschema:"Raw stack trace of the error"`
	ErrorTime  string                       `json:"errorTime,omitempty" jsonschema:"RFC3339 timestamp of the error (default: now)"`
	Console    []errcontext.ConsoleMessage  `json:"console,omitempty" jsonschema:"Console messages captured around the error"`
	Network    []errcontext.NetworkTrace    `json:"network,omitempty" jsonschema:"Network requests captured around the error"`
	State      json.RawMessage              `json:"state,omitempty" jsonschema:"Application state snapshot, passed through verbatim"`
}

// NewMcpServer creates and configures the MCP server
func NewMcpServer(sessionMgr *session.Manager, logger *zap.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "sourcetrace-mcp",
		Version: "1.0.0",
	}, &mcp.ServerOptions{
		Instructions: `
Source Resolution for Deployed Web Applications

sourcetrace maps locations and stack traces from minified/bundled production
code back to original sources using the application's source maps, and
analyzes bundler manifests for size and dependency questions.

Available Tools:
1. "resolve_stack_trace" - Rewrite a raw browser stack trace with original files, lines and symbol names
2. "resolve_location" - Map one generated (url, line, column) to its original source, with a code snippet
3. "get_source_content" - Read original source text (embedded in a source map, or fetched directly)
4. "analyze_bundle" - Fetch the bundler manifest and report module sizes and optimization hints
5. "find_module" - Locate a module in the bundle graph and list everything that depends on it
6. "build_error_context" - Combine a resolved trace with console/network/state captured around an error

Notes:
- Source maps are discovered via the '<url>.map' convention or the file's sourceMappingURL directive
- Resolution is best-effort: frames without a usable map keep their generated coordinates
- Results report how many frames resolved so you can gauge confidence
- Nothing is executed or instrumented; the tools only read deployed artifacts
`,
	})

	server.AddReceivingMiddleware(createSessionInjectionMiddleware(sessionMgr))
	server.AddReceivingMiddleware(createLoggingMiddleware(logger))

	// Register resolve_stack_trace tool
	mcp.AddTool(server, &mcp.Tool{
		Name: "resolve_stack_trace",
		Description: `Resolve a production stack trace back to original sources.

Paste the stack trace exactly as captured; every line is preserved, including
the error message and any lines that are not frames. Frames whose source map
cannot be found or parsed keep their generated coordinates.

The response ends with a "N/M frames resolved" confidence line when
"annotated" is set.`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ResolveStackTraceArgs) (*mcp.CallToolResult, any, error) {
		sessionCtx, err := getSessionFromContext(ctx)
		if err != nil {
			return nil, nil, err
		}

		result, err := sessionCtx.Engine.ResolveStackTrace(ctx, args.StackTrace)
		if err != nil {
			return nil, nil, err
		}

		var text string
		if args.Annotated {
			text = stacktrace.FormatTraceAnnotated(result)
		} else {
			text = fmt.Sprintf("%s\n\n%d/%d frames resolved",
				stacktrace.FormatTrace(result), result.ResolvedCount, result.TotalCount)
		}

		return textResult(text), nil, nil
	})

	// Register resolve_location tool
	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_location",
		Description: "Map a single generated (url, line, column) coordinate to its original file, line, column and symbol name, with a few lines of surrounding source when available.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ResolveLocationArgs) (*mcp.CallToolResult, any, error) {
		sessionCtx, err := getSessionFromContext(ctx)
		if err != nil {
			return nil, nil, err
		}

		loc, err := sessionCtx.Engine.ResolveLocation(ctx, args.URL, args.Line, args.Column)
		if err != nil {
			return nil, nil, err
		}
		if loc == nil {
			return textResult(fmt.Sprintf("no mapping covers %s:%d:%d", args.URL, args.Line, args.Column)), nil, nil
		}

		return jsonResult(loc)
	})

	// Register get_source_content tool
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_source_content",
		Description: "Read original source text for a file identifier, preferring content embedded in an already-fetched source map over a direct fetch.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetSourceContentArgs) (*mcp.CallToolResult, any, error) {
		sessionCtx, err := getSessionFromContext(ctx)
		if err != nil {
			return nil, nil, err
		}

		content, err := sessionCtx.Engine.GetSourceContent(ctx, args.File, args.StartLine, args.EndLine)
		if err != nil {
			return nil, nil, err
		}

		return jsonResult(content)
	})

	// Register analyze_bundle tool
	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_bundle",
		Description: "Fetch the application's bundler manifest (webpack stats or Vite manifest), then report total size, the largest modules, modules over a size threshold, and optimization hints.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args AnalyzeBundleArgs) (*mcp.CallToolResult, any, error) {
		sessionCtx, err := getSessionFromContext(ctx)
		if err != nil {
			return nil, nil, err
		}

		graph, err := sessionCtx.Engine.GetBundleManifest(ctx, args.BaseURL)
		if err != nil {
			return nil, nil, err
		}

		threshold := args.ThresholdBytes
		if threshold <= 0 {
			threshold = 100 * 1024
		}
		top := args.TopModules
		if top <= 0 {
			top = 10
		}

		report := struct {
			*bundle.SizeReport
			Largest []*bundle.ModuleNode `json:"largest"`
		}{
			SizeReport: graph.AnalyzeSize(threshold),
			Largest:    graph.LargestModules(top),
		}

		return jsonResult(report)
	})

	// Register find_module tool
	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_module",
		Description: "Find a module in the bundle dependency graph by id or path and list its direct dependencies and every module that transitively depends on it. Dependency cycles are handled.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args FindModuleArgs) (*mcp.CallToolResult, any, error) {
		sessionCtx, err := getSessionFromContext(ctx)
		if err != nil {
			return nil, nil, err
		}
		if args.Query == "" {
			return nil, nil, fmt.Errorf("query must not be empty")
		}

		graph, err := sessionCtx.Engine.GetBundleManifest(ctx, args.BaseURL)
		if err != nil {
			return nil, nil, err
		}

		node, ok := graph.FindModule(args.Query)
		if !ok {
			return textResult(fmt.Sprintf("no module matching %q in a graph of %d modules", args.Query, graph.Len())), nil, nil
		}

		result := struct {
			Module     *bundle.ModuleNode `json:"module"`
			Dependents []string           `json:"dependents,omitempty"`
		}{
			Module:     node,
			Dependents: graph.DependentsOf(node.ID),
		}

		return jsonResult(result)
	})

	// Register build_error_context tool
	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_error_context",
		Description: "Compose a single diagnostic record from an error: the resolved stack trace plus console messages, related network requests (filtered to a window before the error), and an optional state snapshot.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args BuildErrorContextArgs) (*mcp.CallToolResult, any, error) {
		sessionCtx, err := getSessionFromContext(ctx)
		if err != nil {
			return nil, nil, err
		}

		var errorTime time.Time
		if args.ErrorTime != "" {
			errorTime, err = time.Parse(time.RFC3339, args.ErrorTime)
			if err != nil {
				return nil, nil, fmt.Errorf("errorTime must be RFC3339: %w", err)
			}
		}

		errCtx, err := sessionCtx.Engine.BuildErrorContext(ctx, args.Message, args.StackTrace, errorTime, args.Console, args.Network, args.State)
		if err != nil {
			return nil, nil, err
		}

		return jsonResult(errCtx)
	})

	return server
}

// textResult wraps plain text in a tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// jsonResult marshals v as indented JSON into a tool result.
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return textResult(string(data)), nil, nil
}
