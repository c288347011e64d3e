// Package engine is the conversation session engine. It owns the
// transcript, the input mode, the in-flight bot query and the session
// bookkeeping, and exposes them to the presentation layer as commands plus
// an observable snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
	"github.com/hammamikhairi/ottochat/internal/request"
	"github.com/hammamikhairi/ottochat/internal/session"
	"github.com/hammamikhairi/ottochat/internal/transcript"
)

// SpeechControl is the engine's handle on the speech side channel.
type SpeechControl interface {
	SetEnabled(on bool)
	Enabled() bool
	Stop()
}

// Option configures the engine.
type Option func(*Engine)

// WithSpeech attaches the speech side channel.
func WithSpeech(s SpeechControl) Option {
	return func(e *Engine) { e.speech = s }
}

// WithTranscriber enables Transcribe.
func WithTranscriber(t domain.Transcriber) Option {
	return func(e *Engine) { e.transcriber = t }
}

// State is a consistent copy of everything the presentation layer shows.
type State struct {
	Mode            domain.Mode
	Messages        []domain.Message
	Sessions        []domain.Session
	CurrentSession  *domain.Session
	SessionsLoading bool
	SessionError    string
	Authenticated   bool
	SpeechEnabled   bool
	Sending         bool
}

// Engine is the conversation session engine. Send blocks until the query
// settles; the other commands may be called from other goroutines while it
// does.
type Engine struct {
	transcript  *transcript.Store
	mode        *Mode
	requests    *request.Controller
	sessions    *session.Manager
	speech      SpeechControl
	transcriber domain.Transcriber
	log         *logger.Logger

	// mu serializes the local half of every command (transcript edits and
	// mode changes) so they are observed in command order. It is never held
	// across a network call.
	mu      sync.Mutex
	sendSeq uint64
	changes chan struct{}
}

// New wires an engine from its components.
func New(ts *transcript.Store, requests *request.Controller, sessions *session.Manager, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		transcript: ts,
		mode:       NewMode(),
		requests:   requests,
		sessions:   sessions,
		log:        log,
		changes:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ── Observation ──────────────────────────────────────────────────

// Changes signals that the snapshot may have changed. Signals coalesce:
// read Snapshot after each one.
func (e *Engine) Changes() <-chan struct{} {
	return e.changes
}

func (e *Engine) notify() {
	select {
	case e.changes <- struct{}{}:
	default:
	}
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		Mode:            e.mode.Current(),
		Messages:        e.transcript.Messages(),
		Sessions:        e.sessions.Sessions(),
		SessionsLoading: e.sessions.Loading(),
		SessionError:    e.sessions.LastError(),
		Authenticated:   e.sessions.Authenticated(),
		Sending:         e.requests.InFlight(),
	}
	if cur, ok := e.sessions.Current(); ok {
		st.CurrentSession = &cur
	}
	if e.speech != nil {
		st.SpeechEnabled = e.speech.Enabled()
	}
	return st
}

// Mode returns the current input mode.
func (e *Engine) Mode() domain.Mode {
	return e.mode.Current()
}

// ── Sending ──────────────────────────────────────────────────────

// Send appends the user's message, enters LOADING and blocks until the bot
// query settles. The reply, or an apology on failure, is appended and the
// mode returns to INPUT. A send issued while another is in flight
// supersedes it; the older one returns a CancelledError and appends
// nothing.
func (e *Engine) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyMessage
	}

	e.mu.Lock()
	p := e.beginSendLocked(ctx, text)
	e.mu.Unlock()
	e.notify()

	return e.dispatch(p)
}

// Regenerate drops the last USER/ASSISTANT pair and resends the user's
// text. It fails with ErrNothingToRegenerate, touching nothing, unless the
// transcript ends in exactly such a pair.
func (e *Engine) Regenerate(ctx context.Context) error {
	e.mu.Lock()
	msgs := e.transcript.Messages()
	n := len(msgs)
	if n < 2 || msgs[n-1].Author != domain.AuthorAssistant || msgs[n-2].Author != domain.AuthorUser {
		e.mu.Unlock()
		return domain.ErrNothingToRegenerate
	}
	text := msgs[n-2].Text
	e.transcript.DeleteLast()
	e.transcript.DeleteLast()
	p := e.beginSendLocked(ctx, text)
	e.mu.Unlock()
	e.notify()

	e.log.Debug("engine: regenerating reply for %q", truncate(text, 60))
	return e.dispatch(p)
}

// pendingSend is a send whose local half is done.
type pendingSend struct {
	seq  uint64
	gen  uint64
	call *request.Call
}

// beginSendLocked performs the local half of a send: user append, then
// LOADING, then registering the query with the controller. Registering
// under e.mu keeps the controller's notion of the newest query in step
// with sendSeq. Must be called with e.mu held.
func (e *Engine) beginSendLocked(ctx context.Context, text string) pendingSend {
	e.mode.CloseSettings()
	e.transcript.Append(text, domain.AuthorUser)
	if err := e.mode.BeginLoading(); err != nil {
		e.log.Warn("engine: %v, forcing reset", err)
		e.mode.Reset()
		_ = e.mode.BeginLoading()
	}
	e.sendSeq++
	call := e.requests.Begin(ctx, domain.ChatRequest{
		Query:     text,
		SessionID: e.sessions.CurrentID(),
	})
	return pendingSend{seq: e.sendSeq, gen: e.transcript.Generation(), call: call}
}

// dispatch runs the network half of a send and applies its settlement.
// A send that is still the newest one always settles the mode, whatever
// the outcome. Stop, session changes and newer sends bump sendSeq when
// they cancel it, and then own the transcript and the mode.
func (e *Engine) dispatch(p pendingSend) error {
	reply, err := e.requests.Wait(p.call)

	e.mu.Lock()
	defer e.notify()
	defer e.mu.Unlock()

	if p.seq != e.sendSeq {
		e.log.Debug("engine: discarding settlement of superseded send")
		if _, cancelled := domain.IsCancelled(err); cancelled {
			return err
		}
		return &domain.CancelledError{Reason: domain.CancelSuperseded}
	}
	defer e.mode.Settle()

	if reason, cancelled := domain.IsCancelled(err); cancelled {
		// Nobody else took over: the caller abandoned the send.
		e.log.Debug("engine: send abandoned by caller (%s)", reason)
		e.sendSeq++
		e.transcript.AppendIf(p.gen, LineCancelled, domain.AuthorAssistant)
		return err
	}

	if err != nil {
		e.log.Error("engine: send failed: %v", err)
		e.transcript.AppendIf(p.gen, LineApology(err), domain.AuthorAssistant)
		return err
	}

	if _, ok := e.transcript.AppendIf(p.gen, reply.Text, domain.AuthorAssistant); !ok {
		e.log.Debug("engine: transcript changed under the reply, dropped")
		return nil
	}
	e.sessions.RecordReply(reply.SessionID, reply.Text)
	return nil
}

// Stop cancels the in-flight query on the user's behalf. The cancellation
// notice is appended and the mode returns to INPUT. Speech playback is
// interrupted as well. Stopping when nothing is in flight only silences
// speech.
func (e *Engine) Stop() {
	if e.speech != nil {
		e.speech.Stop()
	}

	e.mu.Lock()
	defer e.notify()
	defer e.mu.Unlock()

	if !e.requests.Cancel(domain.CancelByUser) {
		return
	}
	e.sendSeq++
	e.transcript.Append(LineCancelled, domain.AuthorAssistant)
	e.mode.Settle()
	e.log.Info("engine: generation stopped by user")
}

// abortForSessionChange cancels an in-flight query without a notice.
// Must be called with e.mu held.
func (e *Engine) abortForSessionChangeLocked() {
	if e.requests.Cancel(domain.CancelSessionChange) {
		e.sendSeq++
		e.mode.Settle()
		e.log.Debug("engine: in-flight send cancelled by session change")
	}
}

// ── Transcript edits ─────────────────────────────────────────────

// DeleteLast removes the last message. No-op on an empty transcript.
func (e *Engine) DeleteLast() {
	e.mu.Lock()
	e.transcript.DeleteLast()
	e.mu.Unlock()
	e.notify()
}

// DeleteAll clears the transcript. A reply still in flight is dropped when
// it arrives.
func (e *Engine) DeleteAll() {
	e.mu.Lock()
	e.transcript.DeleteAll()
	e.mu.Unlock()
	e.notify()
}

// ── Settings ─────────────────────────────────────────────────────

// OpenSettings enters SETTINGS. It is a no-op unless the mode is INPUT.
func (e *Engine) OpenSettings() bool {
	ok := e.mode.OpenSettings()
	e.notify()
	return ok
}

// CloseSettings returns to INPUT.
func (e *Engine) CloseSettings() bool {
	ok := e.mode.CloseSettings()
	e.notify()
	return ok
}

// SetSpeechEnabled toggles speech output.
func (e *Engine) SetSpeechEnabled(on bool) {
	if e.speech == nil {
		return
	}
	e.speech.SetEnabled(on)
	e.notify()
}

// SpeechEnabled reports whether speech output is on.
func (e *Engine) SpeechEnabled() bool {
	return e.speech != nil && e.speech.Enabled()
}

// SpeechAvailable reports whether a speech channel is attached.
func (e *Engine) SpeechAvailable() bool {
	return e.speech != nil
}

// ── Sessions ─────────────────────────────────────────────────────

// ListSessions refreshes the session catalog.
func (e *Engine) ListSessions(ctx context.Context) ([]domain.Session, error) {
	e.notify()
	defer e.notify()
	return e.sessions.ListSessions(ctx)
}

// CreateSession creates a session and makes it current. An in-flight send
// is cancelled first, unless the create cannot start because the user is
// anonymous.
func (e *Engine) CreateSession(ctx context.Context, title string) (*domain.Session, error) {
	if !e.sessions.Authenticated() {
		defer e.notify()
		return e.sessions.CreateSession(ctx, title)
	}
	e.mu.Lock()
	e.abortForSessionChangeLocked()
	e.mu.Unlock()
	defer e.notify()
	return e.sessions.CreateSession(ctx, title)
}

// SwitchSession loads a cached session. Switching to an unknown id fails
// with ErrSessionNotFound and changes nothing, not even an in-flight send.
// Otherwise an in-flight send is cancelled before the switch starts.
func (e *Engine) SwitchSession(ctx context.Context, id string) error {
	defer e.notify()
	if !e.sessions.Known(id) {
		return e.sessions.SwitchSession(ctx, id)
	}

	e.mu.Lock()
	e.abortForSessionChangeLocked()
	e.mu.Unlock()
	e.notify()

	return e.sessions.SwitchSession(ctx, id)
}

// DeleteSession deletes a session. Deleting the current session cancels an
// in-flight send first.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	defer e.notify()
	if id != "" && id == e.sessions.CurrentID() {
		e.mu.Lock()
		e.abortForSessionChangeLocked()
		e.mu.Unlock()
	}
	return e.sessions.DeleteSession(ctx, id)
}

// RenameSession updates a session's title.
func (e *Engine) RenameSession(ctx context.Context, id, title string) error {
	defer e.notify()
	return e.sessions.UpdateTitle(ctx, id, title)
}

// StartNewSession clears the current session and the transcript. An
// in-flight send is cancelled first.
func (e *Engine) StartNewSession() {
	e.mu.Lock()
	e.abortForSessionChangeLocked()
	e.sessions.StartNewSession()
	e.mu.Unlock()
	e.notify()
}

// AuthChanged re-reads the token provider after a sign-in or sign-out.
// Signing in refreshes the catalog.
func (e *Engine) AuthChanged(ctx context.Context) error {
	defer e.notify()
	if !e.sessions.AuthChanged() {
		return nil
	}
	_, err := e.sessions.ListSessions(ctx)
	return err
}

// Sessions returns the cached catalog.
func (e *Engine) Sessions() []domain.Session {
	return e.sessions.Sessions()
}

// ── Transcription ────────────────────────────────────────────────

// Transcribe converts recorded audio to text for the input line. Nothing
// is appended to the transcript.
func (e *Engine) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if e.transcriber == nil {
		return "", errors.New("transcription is not configured")
	}
	text, err := e.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		e.log.Error("engine: transcription failed: %v", err)
		return "", fmt.Errorf("transcribing %s: %w", filename, err)
	}
	return strings.TrimSpace(text), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
