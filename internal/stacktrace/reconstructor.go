package stacktrace

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yousuf/sourcetrace-mcp/internal/sourcemap"
)

// Reconstructor resolves parsed stack traces back to original sources. Each
// frame is resolved independently through the map cached for its own file;
// a failure on one frame never aborts the rest of the trace.
type Reconstructor struct {
	store    *sourcemap.Store
	resolver *sourcemap.Resolver
	logger   *zap.Logger
}

// NewReconstructor creates a Reconstructor. logger may be nil.
func NewReconstructor(store *sourcemap.Store, resolver *sourcemap.Resolver, logger *zap.Logger) *Reconstructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconstructor{store: store, resolver: resolver, logger: logger}
}

// maxConcurrentFrameLookups bounds parallel map fetches for one trace. Frames
// sharing a file coalesce inside the store anyway.
const maxConcurrentFrameLookups = 4

// ResolveTrace parses raw and resolves every frame. Frames are written back
// positionally, so output order always equals input order no matter which
// per-frame map fetch completes first. Cancellation of ctx degrades pending
// frames to unresolved; the returned Result is always non-nil.
func (r *Reconstructor) ResolveTrace(ctx context.Context, raw string) *Result {
	frames := ParseTrace(raw)
	result := &Result{Frames: frames}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFrameLookups)

	for i := range frames {
		if !frames[i].HasLocation() {
			continue
		}
		result.TotalCount++

		g.Go(func() error {
			r.resolveFrame(gctx, &result.Frames[i])
			return nil
		})
	}
	// Workers never return errors; degradation happens per frame.
	_ = g.Wait()

	for i := range result.Frames {
		if result.Frames[i].Resolved != nil {
			result.ResolvedCount++
		}
	}

	r.logger.Debug("resolved stack trace",
		zap.Int("resolved", result.ResolvedCount),
		zap.Int("total", result.TotalCount))

	return result
}

// resolveFrame maps one frame through its file's source map. Trace
// coordinates are 1-based; the mapping table is 0-based.
func (r *Reconstructor) resolveFrame(ctx context.Context, frame *Frame) {
	m, err := r.store.Get(ctx, frame.FileURL)
	if err != nil {
		r.logger.Debug("frame left unresolved",
			zap.String("fileUrl", frame.FileURL),
			zap.Int("line", frame.Line),
			zap.Int("column", frame.Column),
			zap.Error(err))
		return
	}

	frame.Resolved = r.resolver.Resolve(ctx, m, frame.Line-1, frame.Column-1)
}
