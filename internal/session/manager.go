package session

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yousuf/sourcetrace-mcp/internal/config"
	"github.com/yousuf/sourcetrace-mcp/internal/engine"
	"github.com/yousuf/sourcetrace-mcp/internal/fetch"
)

// Manager manages session contexts.
type Manager struct {
	sessions map[string]*Context
	mu       sync.RWMutex
	config   *config.Config
	fetcher  fetch.Fetcher
	logger   *zap.Logger
}

// NewManager creates a new session manager. fetcher is shared across
// sessions (it is stateless); engines and their caches are per session.
func NewManager(cfg *config.Config, fetcher fetch.Fetcher, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Context),
		config:   cfg,
		fetcher:  fetcher,
		logger:   logger,
	}
}

// GetOrCreateSession gets an existing session or creates a new one.
func (m *Manager) GetOrCreateSession(sessionID string) (*Context, error) {
	// Try to get existing session
	m.mu.RLock()
	session, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if exists {
		return session, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if session, exists := m.sessions[sessionID]; exists {
		return session, nil
	}

	eng := engine.New(m.fetcher, engine.Options{
		CacheCapacity: m.config.CacheCapacity,
		SnippetRadius: m.config.SnippetRadius,
		NetworkWindow: m.config.NetworkWindow(),
		Logger:        m.logger.With(zap.String("session", sessionID)),
	})

	session = NewContext(sessionID, eng)
	m.sessions[sessionID] = session
	m.logger.Info("created session", zap.String("session", sessionID))

	return session, nil
}

// GetSession retrieves an existing session.
func (m *Manager) GetSession(sessionID string) *Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// DeleteSession removes a session and clears its caches.
func (m *Manager) DeleteSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return fmt.Errorf("session %q not found", sessionID)
	}

	session.Engine.Close()
	delete(m.sessions, sessionID)
	return nil
}

// CloseAll tears down every session. Caches are in-memory only, so this is
// always clean.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, session := range m.sessions {
		session.Engine.Close()
	}
	m.sessions = make(map[string]*Context)
}
