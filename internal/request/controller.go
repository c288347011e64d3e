// Package request owns the lifecycle of bot queries: at most one query is
// in flight, a newer send supersedes the older one, and anything that
// settles after it was cancelled is discarded.
package request

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
)

// errTimedOut is the context cause used when the chat timeout fires.
var errTimedOut = errors.New("chat request timed out")

// Option configures the Controller.
type Option func(*Controller)

// WithTimeout bounds every query. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// handle is the cancellation token of one in-flight query.
type handle struct {
	seq       uint64
	cancel    context.CancelCauseFunc
	cancelled bool
	reason    domain.CancelReason
}

// Controller serializes bot queries.
type Controller struct {
	bot     domain.BotClient
	timeout time.Duration
	log     *logger.Logger

	mu       sync.Mutex
	seq      uint64
	inflight *handle
}

// New creates a controller around bot.
func New(bot domain.BotClient, log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{bot: bot, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call is one registered query. It is created by Begin and settled by
// Wait, exactly once.
type Call struct {
	h       *handle
	req     domain.ChatRequest
	parent  context.Context
	ctx     context.Context
	release func()
}

// Send issues a query and blocks until it settles. It is Begin followed
// by Wait.
//
// Errors are always typed: *domain.CancelledError when this query was
// cancelled (its settlement, success or failure, is discarded),
// *domain.BotResponseError for bad responses and timeouts, and
// *domain.NetworkError for transport failures.
func (c *Controller) Send(ctx context.Context, req domain.ChatRequest) (*domain.Reply, error) {
	return c.Wait(c.Begin(ctx, req))
}

// Begin registers a query as the one in flight without issuing it. Any
// query already in flight is cancelled first with reason CancelSuperseded,
// so the order of Begin calls decides which query survives.
func (c *Controller) Begin(ctx context.Context, req domain.ChatRequest) *Call {
	rctx, cancel := context.WithCancelCause(ctx)
	callCtx, stop := rctx, context.CancelFunc(func() {})
	if c.timeout > 0 {
		callCtx, stop = context.WithTimeoutCause(rctx, c.timeout, errTimedOut)
	}

	c.mu.Lock()
	if c.inflight != nil {
		c.log.Debug("request: superseding query #%d", c.inflight.seq)
		c.abortLocked(domain.CancelSuperseded)
	}
	c.seq++
	h := &handle{seq: c.seq, cancel: cancel}
	c.inflight = h
	c.mu.Unlock()

	return &Call{
		h:       h,
		req:     req,
		parent:  ctx,
		ctx:     callCtx,
		release: func() { stop(); cancel(nil) },
	}
}

// Wait issues a query registered by Begin and blocks until it settles.
func (c *Controller) Wait(call *Call) (*domain.Reply, error) {
	h := call.h
	c.log.Debug("request: query #%d started (session=%q, %d chars)", h.seq, call.req.SessionID, len(call.req.Query))
	reply, err := c.bot.Chat(call.ctx, call.req)

	c.mu.Lock()
	cancelled, reason := h.cancelled, h.reason
	if c.inflight == h {
		c.inflight = nil
	}
	c.mu.Unlock()

	if cancelled {
		call.release()
		c.log.Debug("request: query #%d settled after cancel (%s), discarding", h.seq, reason)
		return nil, &domain.CancelledError{Reason: reason}
	}

	if err != nil {
		err = c.classify(call.ctx, call.parent, h.seq, err)
		call.release()
		return nil, err
	}
	call.release()

	if reply == nil {
		c.log.Error("request: query #%d returned no reply", h.seq)
		return nil, &domain.BotResponseError{Detail: "empty reply"}
	}
	c.log.Debug("request: query #%d settled (%d chars)", h.seq, len(reply.Text))
	return reply, nil
}

// classify maps a failure onto the typed errors callers rely on.
func (c *Controller) classify(callCtx, parent context.Context, seq uint64, err error) error {
	switch {
	case errors.Is(context.Cause(callCtx), errTimedOut):
		c.log.Warn("request: query #%d timed out after %s", seq, c.timeout)
		return &domain.BotResponseError{Detail: fmt.Sprintf("request timed out after %s", c.timeout)}
	case parent.Err() != nil:
		c.log.Debug("request: query #%d abandoned by caller: %v", seq, parent.Err())
		return &domain.CancelledError{Reason: domain.CancelByUser}
	}

	var bre *domain.BotResponseError
	var ne *domain.NetworkError
	switch {
	case errors.As(err, &bre), errors.As(err, &ne):
		c.log.Error("request: query #%d failed: %v", seq, err)
		return err
	default:
		c.log.Error("request: query #%d failed: %v", seq, err)
		return &domain.NetworkError{Op: "chat", Err: err}
	}
}

// Cancel aborts the in-flight query, if any, with the given reason. It is
// idempotent and reports whether a query was actually cancelled.
func (c *Controller) Cancel(reason domain.CancelReason) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == nil {
		return false
	}
	c.log.Debug("request: cancelling query #%d (%s)", c.inflight.seq, reason)
	c.abortLocked(reason)
	return true
}

// InFlight reports whether a query is outstanding.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

func (c *Controller) abortLocked(reason domain.CancelReason) {
	h := c.inflight
	h.cancelled = true
	h.reason = reason
	h.cancel(&domain.CancelledError{Reason: reason})
	c.inflight = nil
}
