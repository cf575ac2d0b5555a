package server

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/yousuf/sourcetrace-mcp/internal/session"
)

// contextKey is the context key type for storing session context
type contextKey string

const sessionContextKey contextKey = "session"

// getSessionFromContext retrieves the session context from the request context.
// The session context is stored as a value to keep request lifecycle separate
// from session lifecycle.
func getSessionFromContext(ctx context.Context) (*session.Context, error) {
	sessionCtx, ok := ctx.Value(sessionContextKey).(*session.Context)
	if !ok || sessionCtx == nil {
		return nil, fmt.Errorf("session context not found in request context")
	}
	return sessionCtx, nil
}

// createSessionInjectionMiddleware creates middleware that automatically manages
// session lifecycle. It stores the session Context as a value in the request
// context, keeping request and session lifecycles separate.
func createSessionInjectionMiddleware(sessionMgr *session.Manager) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(
			ctx context.Context,
			method string,
			req mcp.Request,
		) (mcp.Result, error) {
			sessionID := req.GetSession().ID()

			sessionCtx, err := sessionMgr.GetOrCreateSession(sessionID)
			if err != nil {
				return nil, fmt.Errorf("failed to get/create session: %w", err)
			}

			ctx = context.WithValue(ctx, sessionContextKey, sessionCtx)

			// Pass request context (can be cancelled without affecting session)
			return next(ctx, method, req)
		}
	}
}

// createLoggingMiddleware creates middleware that logs all MCP method calls.
func createLoggingMiddleware(logger *zap.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(
			ctx context.Context,
			method string,
			req mcp.Request,
		) (mcp.Result, error) {
			start := time.Now()
			sessionID := req.GetSession().ID()

			logger.Debug("request",
				zap.String("session", sessionID),
				zap.String("method", method))

			result, err := next(ctx, method, req)

			duration := time.Since(start)
			if err != nil {
				logger.Warn("request failed",
					zap.String("session", sessionID),
					zap.String("method", method),
					zap.Duration("duration", duration),
					zap.Error(err))
			} else {
				logger.Info("request ok",
					zap.String("session", sessionID),
					zap.String("method", method),
					zap.Duration("duration", duration))
			}

			return result, err
		}
	}
}
