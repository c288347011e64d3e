// Package storage provides the local session catalog cache.
package storage

import (
	"sync"

	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
)

// MemoryCatalog is an ordered, in-memory copy of the remote session list.
// Index 0 is the most recent session. Safe for concurrent access. Values
// are copied in and out so callers never share state with the cache.
type MemoryCatalog struct {
	mu       sync.RWMutex
	sessions []domain.Session
	log      *logger.Logger
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog(log *logger.Logger) *MemoryCatalog {
	return &MemoryCatalog{log: log}
}

// Replace installs a freshly listed catalog.
func (c *MemoryCatalog) Replace(sessions []domain.Session) {
	cp := make([]domain.Session, len(sessions))
	copy(cp, sessions)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = cp
	c.log.Debug("catalog replaced, count=%d", len(cp))
}

// Prepend puts a session at the head. An existing entry with the same id
// is moved rather than duplicated.
func (c *MemoryCatalog) Prepend(s domain.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Session, 0, len(c.sessions)+1)
	out = append(out, s)
	for _, existing := range c.sessions {
		if existing.ID != s.ID {
			out = append(out, existing)
		}
	}
	c.sessions = out
	c.log.Debug("catalog prepended %s, count=%d", s.ID, len(out))
}

// Get returns a session by id.
func (c *MemoryCatalog) Get(id string) (domain.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, s := range c.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Session{}, domain.ErrNotFound
}

// Patch applies fn to the entry with the given id in place. It reports
// whether the entry existed.
func (c *MemoryCatalog) Patch(id string, fn func(*domain.Session)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.sessions {
		if c.sessions[i].ID == id {
			fn(&c.sessions[i])
			return true
		}
	}
	c.log.Debug("patch skipped, session %s not cached", id)
	return false
}

// Delete removes a session by id.
func (c *MemoryCatalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.sessions {
		if s.ID == id {
			c.sessions = append(c.sessions[:i:i], c.sessions[i+1:]...)
			c.log.Debug("deleted session %s from catalog", id)
			return nil
		}
	}
	return domain.ErrNotFound
}

// Clear empties the catalog.
func (c *MemoryCatalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = nil
}

// List returns a copy of the catalog in display order.
func (c *MemoryCatalog) List() []domain.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// Len returns the number of cached sessions.
func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}
