package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/hammamikhairi/ottochat/internal/domain"
)

// ── Wire types ───────────────────────────────────────────────────

type sessionJSON struct {
	ID          string     `json:"id"`
	UserID      *string    `json:"user_id"`
	Title       string     `json:"title"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
	LastMessage *string    `json:"last_message"`
}

func (s sessionJSON) toDomain() domain.Session {
	out := domain.Session{ID: s.ID, Title: s.Title}
	if s.CreatedAt != nil {
		out.CreatedAt = *s.CreatedAt
	}
	if s.UpdatedAt != nil {
		out.UpdatedAt = *s.UpdatedAt
	} else {
		out.UpdatedAt = out.CreatedAt
	}
	if s.LastMessage != nil {
		out.LastMessagePreview = *s.LastMessage
	}
	return out
}

type messageJSON struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	CreatedAt *time.Time `json:"created_at"`
}

type titlePayload struct {
	Title string `json:"title"`
}

func sessionPath(id string) string {
	return "/sessions/" + url.PathEscape(id)
}

// ── Session catalog ──────────────────────────────────────────────

// ListSessions returns the caller's sessions. It returns an empty list
// without a network call when no token is available.
func (c *Client) ListSessions(ctx context.Context) ([]domain.Session, error) {
	if !c.Authenticated() {
		return nil, nil
	}

	var raw []sessionJSON
	if _, err := c.call(ctx, request{
		op:       "list sessions",
		method:   http.MethodGet,
		path:     "/sessions",
		needAuth: true,
	}, &raw); err != nil {
		return nil, err
	}

	out := make([]domain.Session, 0, len(raw))
	for _, s := range raw {
		out = append(out, s.toDomain())
	}
	return out, nil
}

// CreateSession creates a session. The server assigns the id.
func (c *Client) CreateSession(ctx context.Context, title string) (*domain.Session, error) {
	body, err := jsonBody(titlePayload{Title: title})
	if err != nil {
		return nil, err
	}

	var raw sessionJSON
	if _, err := c.call(ctx, request{
		op:          "create session",
		method:      http.MethodPost,
		path:        "/sessions",
		body:        body,
		contentType: "application/json",
		needAuth:    true,
	}, &raw); err != nil {
		return nil, err
	}
	if raw.ID == "" {
		return nil, &domain.APIError{Op: "create session", Detail: "malformed response: missing id"}
	}

	s := raw.toDomain()
	if s.Title == "" {
		s.Title = title
	}
	return &s, nil
}

// SessionMessages fetches a session's full message log in server order.
func (c *Client) SessionMessages(ctx context.Context, id string) ([]domain.BackendMessage, error) {
	var raw []messageJSON
	if _, err := c.call(ctx, request{
		op:       "fetch session messages",
		method:   http.MethodGet,
		path:     sessionPath(id) + "/messages",
		needAuth: true,
	}, &raw); err != nil {
		return nil, err
	}

	out := make([]domain.BackendMessage, 0, len(raw))
	for _, m := range raw {
		bm := domain.BackendMessage{
			ID:        m.ID,
			SessionID: m.SessionID,
			Author:    domain.AuthorFromRole(m.Role),
			Content:   m.Content,
		}
		if m.CreatedAt != nil {
			bm.CreatedAt = *m.CreatedAt
		}
		out = append(out, bm)
	}
	return out, nil
}

// DeleteSession removes a session remotely.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	_, err := c.call(ctx, request{
		op:       "delete session",
		method:   http.MethodDelete,
		path:     sessionPath(id),
		needAuth: true,
	}, nil)
	return err
}

// UpdateSessionTitle renames a session and returns the server's copy.
// Backends that answer with an empty body get a session carrying only the
// id and the requested title.
func (c *Client) UpdateSessionTitle(ctx context.Context, id, title string) (*domain.Session, error) {
	body, err := jsonBody(titlePayload{Title: title})
	if err != nil {
		return nil, err
	}

	var raw sessionJSON
	if _, err := c.call(ctx, request{
		op:          "update session title",
		method:      http.MethodPut,
		path:        sessionPath(id) + "/title",
		body:        body,
		contentType: "application/json",
		needAuth:    true,
	}, &raw); err != nil {
		return nil, err
	}

	if raw.ID == "" {
		raw.ID = id
	}
	if raw.Title == "" {
		raw.Title = title
	}
	s := raw.toDomain()
	return &s, nil
}
