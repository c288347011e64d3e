package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hammamikhairi/ottochat/internal/domain"
)

// ── Wire types ───────────────────────────────────────────────────

type chatPayload struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Response  *string `json:"response"`
	SessionID string  `json:"session_id"`
	MessageID string  `json:"message_id"`
}

// Chat sends one bot query. The session id is only forwarded when a token
// is present; anonymous queries never carry one. Non-2xx statuses and
// malformed bodies fail with BotResponseError. A cancelled ctx returns the
// context error unchanged.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (*domain.Reply, error) {
	const op = "chat"

	payload := chatPayload{Query: req.Query}
	if c.Authenticated() {
		payload.SessionID = req.SessionID
	}

	body, err := jsonBody(payload)
	if err != nil {
		return nil, &domain.BotResponseError{Detail: "encoding request: " + err.Error()}
	}

	resp, err := c.do(ctx, request{
		op:          op,
		method:      http.MethodPost,
		path:        "/chat",
		body:        body,
		contentType: "application/json",
		auth:        true,
	})
	if err != nil {
		return nil, err
	}

	if resp.status < 200 || resp.status > 299 {
		return nil, &domain.BotResponseError{
			Status: resp.status,
			Detail: normalizeError(resp.status, resp.body),
		}
	}

	var cr chatResponse
	if err := json.Unmarshal(resp.body, &cr); err != nil {
		return nil, &domain.BotResponseError{
			Status: resp.status,
			Detail: "malformed response: " + err.Error(),
		}
	}
	if cr.Response == nil {
		return nil, &domain.BotResponseError{
			Status: resp.status,
			Detail: "malformed response: missing response field",
		}
	}

	c.log.Debug("api: chat reply (%d chars): %s", len(*cr.Response), truncate(*cr.Response, 120))

	return &domain.Reply{
		Text:      *cr.Response,
		SessionID: cr.SessionID,
		MessageID: cr.MessageID,
	}, nil
}
