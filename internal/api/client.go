// Package api is the HTTP adapter for the inference backend: chat queries,
// the session catalog, speech synthesis and transcription. Every error that
// leaves this package is a domain error; raw transport errors never escape.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.BotClient   = (*Client)(nil)
	_ domain.SessionAPI  = (*Client)(nil)
	_ domain.Synthesizer = (*Client)(nil)
	_ domain.Transcriber = (*Client)(nil)
)

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRequestTimeout bounds every non-chat call. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// Client talks to the backend. The bearer token is read from the provider
// on every call and never cached.
type Client struct {
	baseURL        string
	tokens         domain.TokenProvider
	http           *http.Client
	requestTimeout time.Duration
	userAgent      string
	log            *logger.Logger
}

// New creates a backend client. tokens may be nil for anonymous use.
func New(baseURL string, tokens domain.TokenProvider, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		tokens:         tokens,
		http:           &http.Client{},
		requestTimeout: 30 * time.Second,
		userAgent:      "OttoChat/1.0",
		log:            log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticated reports whether a bearer token is currently available.
func (c *Client) Authenticated() bool {
	_, ok := c.token()
	return ok
}

func (c *Client) token() (string, bool) {
	if c.tokens == nil {
		return "", false
	}
	return c.tokens.Token()
}

// ── Request plumbing ─────────────────────────────────────────────

// request is one outgoing call.
type request struct {
	op          string
	method      string
	path        string
	body        io.Reader
	contentType string
	auth        bool // send the bearer token when one exists
	needAuth    bool // fail with ErrAuthRequired when no token exists
}

// response is a fully read reply.
type response struct {
	status int
	body   []byte
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// do sends r and reads the whole body. It returns a NetworkError when the
// request never produced a response, and the caller's context error
// unchanged when ctx was cancelled. Status codes are left to the caller.
func (c *Client) do(ctx context.Context, r request) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", r.op, err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if r.auth || r.needAuth {
		tok, ok := c.token()
		switch {
		case ok:
			req.Header.Set("Authorization", "Bearer "+tok)
		case r.needAuth:
			return nil, fmt.Errorf("%s: %w", r.op, domain.ErrAuthRequired)
		}
	}

	c.log.Debug("api: %s %s", r.method, r.path)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.NetworkError{Op: r.op, Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.NetworkError{Op: r.op, Err: err}
	}

	c.log.Debug("api: %s %s -> %d (%d bytes)", r.method, r.path, resp.StatusCode, len(body))
	return &response{status: resp.StatusCode, body: body}, nil
}

// bounded applies the request timeout to non-chat calls.
func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

// call runs a non-chat request and decodes a 2xx JSON body into out
// (when out is non-nil). Failures become APIError or NetworkError.
func (c *Client) call(ctx context.Context, r request, out any) (int, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	resp, err := c.do(ctx, r)
	if err != nil {
		return 0, transportError(r.op, err)
	}

	if resp.status < 200 || resp.status > 299 {
		return resp.status, &domain.APIError{
			Op:     r.op,
			Status: resp.status,
			Detail: normalizeError(resp.status, resp.body),
		}
	}

	if out == nil || resp.status == http.StatusNoContent || len(bytes.TrimSpace(resp.body)) == 0 {
		return resp.status, nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return resp.status, &domain.APIError{
			Op:     r.op,
			Status: resp.status,
			Detail: "malformed response: " + err.Error(),
		}
	}
	return resp.status, nil
}

// transportError turns an expired request timeout into a NetworkError.
// The caller's own cancellation passes through unchanged.
func transportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.NetworkError{Op: op, Err: err}
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
