package session

import (
	"github.com/yousuf/sourcetrace-mcp/internal/engine"
)

// Context represents a session context with its associated resources. Each
// MCP session gets its own engine, and with it its own bounded map cache;
// one client's lookups never evict another's maps.
type Context struct {
	SessionID string
	Engine    *engine.Engine
}

// NewContext creates a new session context.
func NewContext(sessionID string, eng *engine.Engine) *Context {
	return &Context{
		SessionID: sessionID,
		Engine:    eng,
	}
}
