// Package session manages the remote conversation threads: the cached
// catalog, which session is current, and keeping the transcript in step
// with it.
//
// Overlapping operations are allowed. Each operation that decides the
// current session takes a ticket when it is issued; only the response to
// the most recently issued one may change the current session. Renames
// and deletes take a per-session ticket the same way, so an older write's
// response never overrides a newer one. Nothing is applied optimistically.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
	"github.com/hammamikhairi/ottochat/internal/storage"
	"github.com/hammamikhairi/ottochat/internal/transcript"
)

// PreviewLength caps LastMessagePreview.
const PreviewLength = 100

// Option configures the Manager.
type Option func(*Manager)

// WithClock overrides the time source used for placeholder titles and
// preview timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the Session Manager.
type Manager struct {
	api        domain.SessionAPI
	tokens     domain.TokenProvider
	transcript *transcript.Store
	catalog    *storage.MemoryCatalog
	now        func() time.Time
	log        *logger.Logger

	mu            sync.Mutex
	current       *domain.Session
	currentTicket uint64
	writeTickets  map[string]uint64
	writeSeq      uint64
	listIssued    uint64
	listApplied   uint64
	mutations     uint64
	loading       int
	lastErr       string
}

// New creates a session manager. tokens may be nil, which means the user
// is always anonymous.
func New(api domain.SessionAPI, tokens domain.TokenProvider, ts *transcript.Store, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		api:          api,
		tokens:       tokens,
		transcript:   ts,
		catalog:      storage.NewMemoryCatalog(log),
		now:          time.Now,
		log:          log,
		writeTickets: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Authenticated reports whether a bearer token is currently available.
func (m *Manager) Authenticated() bool {
	if m.tokens == nil {
		return false
	}
	_, ok := m.tokens.Token()
	return ok
}

// ── Reads ────────────────────────────────────────────────────────

// Current returns the current session, if any. There is none while
// unauthenticated, even before AuthChanged has run.
func (m *Manager) Current() (domain.Session, bool) {
	if !m.Authenticated() {
		return domain.Session{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return domain.Session{}, false
	}
	return *m.current, true
}

// CurrentID returns the current session id, or "" while unauthenticated.
func (m *Manager) CurrentID() string {
	if !m.Authenticated() {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.ID
}

// Known reports whether id is in the cached catalog.
func (m *Manager) Known(id string) bool {
	_, err := m.catalog.Get(id)
	return err == nil
}

// Sessions returns the cached catalog, most recent first.
func (m *Manager) Sessions() []domain.Session {
	return m.catalog.List()
}

// LastError returns the normalized message of the most recent failed
// session operation. It is cleared by the next successful one.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Loading reports whether a catalog listing is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading > 0
}

// ── Catalog ──────────────────────────────────────────────────────

// ListSessions refreshes the catalog from the backend. It returns an
// empty list when unauthenticated. A listing that was overtaken by a
// newer listing, or by a local create/delete/rename, is returned to the
// caller but not written to the cache.
func (m *Manager) ListSessions(ctx context.Context) ([]domain.Session, error) {
	if !m.Authenticated() {
		return nil, nil
	}

	m.mu.Lock()
	m.listIssued++
	ticket := m.listIssued
	mutationsAtIssue := m.mutations
	m.loading++
	m.mu.Unlock()

	sessions, err := m.api.ListSessions(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading--

	if err != nil {
		return nil, m.failLocked("list sessions", err)
	}
	m.lastErr = ""

	if ticket < m.listApplied || m.mutations != mutationsAtIssue {
		m.log.Debug("session: discarding stale listing #%d", ticket)
		return sessions, nil
	}
	m.listApplied = ticket
	m.catalog.Replace(sessions)

	if m.current != nil {
		if fresh, err := m.catalog.Get(m.current.ID); err == nil {
			m.current = &fresh
		}
	}
	m.log.Info("session: catalog refreshed, %d sessions", len(sessions))
	return sessions, nil
}

// ── Current session ──────────────────────────────────────────────

// CreateSession creates a remote session and makes it current. An empty
// title gets a timestamp placeholder. The transcript is cleared.
func (m *Manager) CreateSession(ctx context.Context, title string) (*domain.Session, error) {
	if !m.Authenticated() {
		return nil, m.fail("create session", domain.ErrAuthRequired)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = m.PlaceholderTitle()
	}

	ticket := m.issueCurrent()

	created, err := m.api.CreateSession(ctx, title)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		return nil, m.failLocked("create session", err)
	}
	m.lastErr = ""
	m.mutations++
	m.catalog.Prepend(*created)

	if ticket != m.currentTicket {
		m.log.Debug("session: created %s but a newer selection won", created.ID)
		return created, nil
	}
	cur := *created
	m.current = &cur
	m.transcript.DeleteAll()
	m.log.Info("session: created %s (%q)", created.ID, created.Title)
	return created, nil
}

// SwitchSession makes a cached session current and loads its messages.
// Ids that are not in the cache fail with ErrSessionNotFound without a
// network call. The transcript is replaced in one step.
func (m *Manager) SwitchSession(ctx context.Context, id string) error {
	if !m.Authenticated() {
		return m.fail("switch session", domain.ErrAuthRequired)
	}
	target, err := m.catalog.Get(id)
	if err != nil {
		return m.fail("switch session", fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id))
	}

	ticket := m.issueCurrent()

	remote, err := m.api.SessionMessages(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		return m.failLocked("switch session", err)
	}
	m.lastErr = ""

	if ticket != m.currentTicket {
		m.log.Debug("session: switch to %s overtaken, discarding %d messages", id, len(remote))
		return nil
	}
	if fresh, err := m.catalog.Get(id); err == nil {
		target = fresh
	} else {
		m.log.Debug("session: %s deleted while loading, not switching", id)
		return nil
	}

	m.transcript.ReplaceAll(toMessages(remote))
	m.current = &target
	m.log.Info("session: switched to %s (%d messages)", id, len(remote))
	return nil
}

// StartNewSession is purely local: it clears the current session and the
// transcript. The next authenticated send creates the session remotely and
// its id is adopted through RecordReply.
func (m *Manager) StartNewSession() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentTicket++
	m.current = nil
	m.transcript.DeleteAll()
	m.log.Info("session: started new conversation")
}

// DeleteSession removes a session remotely and then from the cache. When
// it was current, the current session and the transcript are cleared.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	if !m.Authenticated() {
		return m.fail("delete session", domain.ErrAuthRequired)
	}

	m.issueWrite(id)

	err := m.api.DeleteSession(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		return m.failLocked("delete session", err)
	}
	m.lastErr = ""
	m.mutations++

	if err := m.catalog.Delete(id); err != nil {
		m.log.Debug("session: %s was not cached", id)
	}
	if m.current != nil && m.current.ID == id {
		m.currentTicket++
		m.current = nil
		m.transcript.DeleteAll()
	}
	m.log.Info("session: deleted %s", id)
	return nil
}

// UpdateTitle renames a session remotely and then patches the cache and
// the current session. A response for a session deleted in the meantime
// changes nothing.
func (m *Manager) UpdateTitle(ctx context.Context, id, title string) error {
	if !m.Authenticated() {
		return m.fail("update title", domain.ErrAuthRequired)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return m.fail("update title", errors.New("title must not be empty"))
	}

	ticket := m.issueWrite(id)

	updated, err := m.api.UpdateSessionTitle(ctx, id, title)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		return m.failLocked("update title", err)
	}
	m.lastErr = ""

	if ticket != m.writeTickets[id] {
		m.log.Debug("session: rename of %s overtaken by a newer write", id)
		return nil
	}
	m.mutations++

	patch := func(s *domain.Session) {
		s.Title = updated.Title
		if !updated.UpdatedAt.IsZero() {
			s.UpdatedAt = updated.UpdatedAt
		}
	}
	if !m.catalog.Patch(id, patch) {
		m.log.Debug("session: renamed %s is no longer cached", id)
	}
	if m.current != nil && m.current.ID == id {
		patch(m.current)
	}
	m.log.Info("session: renamed %s to %q", id, updated.Title)
	return nil
}

// RecordReply is called after a successful bot reply. When there is no
// current session and the backend returned an id, that id becomes current
// (taken from the cache, or a stub prepended to it). The matching cache
// entry gets the reply as its preview.
func (m *Manager) RecordReply(sessionID, text string) {
	if sessionID == "" || !m.Authenticated() {
		return
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		s, err := m.catalog.Get(sessionID)
		if err != nil {
			s = domain.Session{
				ID:        sessionID,
				Title:     m.PlaceholderTitle(),
				CreatedAt: now,
				UpdatedAt: now,
			}
			m.catalog.Prepend(s)
		}
		m.currentTicket++
		m.current = &s
		m.log.Info("session: adopted %s from first reply", sessionID)
	}

	preview := Preview(text)
	patch := func(s *domain.Session) {
		s.LastMessagePreview = preview
		s.UpdatedAt = now
	}
	m.catalog.Patch(sessionID, patch)
	if m.current.ID == sessionID {
		patch(m.current)
	}
}

// AuthChanged re-reads the token provider. Without a token the current
// session and the catalog are cleared. It reports whether a token exists.
func (m *Manager) AuthChanged() bool {
	if m.Authenticated() {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentTicket++
	m.mutations++
	m.current = nil
	m.catalog.Clear()
	m.lastErr = ""
	m.log.Info("session: signed out, catalog cleared")
	return false
}

// PlaceholderTitle returns the default title for an unnamed session.
func (m *Manager) PlaceholderTitle() string {
	return "Chat " + m.now().Format("Jan 2, 2006 15:04")
}

// ── Helpers ──────────────────────────────────────────────────────

func (m *Manager) issueCurrent() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTicket++
	return m.currentTicket
}

func (m *Manager) issueWrite(id string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeSeq++
	m.writeTickets[id] = m.writeSeq
	return m.writeSeq
}

func (m *Manager) fail(op string, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failLocked(op, err)
}

func (m *Manager) failLocked(op string, err error) error {
	if _, cancelled := domain.IsCancelled(err); cancelled || errors.Is(err, context.Canceled) {
		m.log.Debug("session: %s cancelled", op)
		return err
	}
	m.lastErr = domain.Detail(err)
	m.log.Error("session: %s failed: %v", op, err)
	return fmt.Errorf("%s: %w", op, err)
}

func toMessages(remote []domain.BackendMessage) []domain.Message {
	out := make([]domain.Message, 0, len(remote))
	for _, bm := range remote {
		out = append(out, domain.Message{
			ID:        bm.ID,
			Text:      bm.Content,
			Author:    bm.Author,
			CreatedAt: bm.CreatedAt,
		})
	}
	return out
}

// Preview shortens text to a single-line catalog preview.
func Preview(text string) string {
	p := strings.Join(strings.Fields(text), " ")
	r := []rune(p)
	if len(r) <= PreviewLength {
		return p
	}
	return string(r[:PreviewLength-3]) + "..."
}
