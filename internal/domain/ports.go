package domain

import (
	"context"
	"io"
)

// BotClient issues chat queries. Implementations must honour ctx
// cancellation by aborting the underlying request.
type BotClient interface {
	Chat(ctx context.Context, req ChatRequest) (*Reply, error)
}

// SessionAPI is the remote session catalog.
type SessionAPI interface {
	ListSessions(ctx context.Context) ([]Session, error)
	CreateSession(ctx context.Context, title string) (*Session, error)
	SessionMessages(ctx context.Context, id string) ([]BackendMessage, error)
	DeleteSession(ctx context.Context, id string) error
	UpdateSessionTitle(ctx context.Context, id, title string) (*Session, error)
}

// Synthesizer turns text into audio bytes. A nil or empty result with a nil
// error means there is nothing to play.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// TokenProvider supplies the bearer token owned by the external auth
// collaborator. ok is false when the user is anonymous.
type TokenProvider interface {
	Token() (token string, ok bool)
}

// AudioPlayer plays synthesized audio. Play blocks until playback
// finishes, ctx is done or Stop is called.
type AudioPlayer interface {
	Play(ctx context.Context, audio []byte) error
	Stop()
}
