package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across layers.
var (
	ErrNotFound            = errors.New("not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrAuthRequired        = errors.New("authentication required")
	ErrNothingToRegenerate = errors.New("nothing to regenerate")
	ErrInvalidTransition   = errors.New("invalid mode transition")
	ErrEmptyMessage        = errors.New("message is empty")
)

// NetworkError is a transport-level failure: the request never produced an
// HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BotResponseError is a non-2xx or malformed response from the chat endpoint.
// Status is 0 when the failure was not an HTTP status (bad body, timeout).
type BotResponseError struct {
	Status int
	Detail string
}

func (e *BotResponseError) Error() string {
	if e.Status == 0 {
		return "bot response error: " + e.Detail
	}
	return fmt.Sprintf("bot response error (status %d): %s", e.Status, e.Detail)
}

// APIError is a non-2xx or malformed response from any non-chat endpoint.
type APIError struct {
	Op     string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Detail)
}

// CancelReason says why an in-flight request was abandoned.
type CancelReason int

const (
	// CancelByUser is an explicit stop-generating request.
	CancelByUser CancelReason = iota
	// CancelSuperseded means a newer send replaced this one.
	CancelSuperseded
	// CancelSessionChange means the active conversation changed underneath it.
	CancelSessionChange
)

// String returns a human-readable cancel reason.
func (r CancelReason) String() string {
	switch r {
	case CancelByUser:
		return "user"
	case CancelSuperseded:
		return "superseded"
	case CancelSessionChange:
		return "session_change"
	default:
		return "unknown"
	}
}

// CancelledError reports that a request was abandoned. It is not a failure.
type CancelledError struct {
	Reason CancelReason
}

func (e *CancelledError) Error() string {
	return "request cancelled (" + e.Reason.String() + ")"
}

// IsCancelled reports whether err is a CancelledError and returns its reason.
func IsCancelled(err error) (CancelReason, bool) {
	var ce *CancelledError
	if errors.As(err, &ce) {
		return ce.Reason, true
	}
	return 0, false
}

// Detail extracts the human-readable detail from any error returned by the
// backend adapters, falling back to err.Error().
func Detail(err error) string {
	var bre *BotResponseError
	if errors.As(err, &bre) {
		return bre.Detail
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Detail
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Err.Error()
	}
	return err.Error()
}
