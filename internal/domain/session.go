package domain

import "time"

// Mode gates which commands the presentation layer may invoke.
type Mode int

const (
	ModeInput Mode = iota
	ModeLoading
	ModeSettings
)

// String returns a human-readable mode.
func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeLoading:
		return "loading"
	case ModeSettings:
		return "settings"
	default:
		return "unknown"
	}
}

// Session is a server-persisted conversation thread.
type Session struct {
	ID                 string
	Title              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastMessagePreview string
}

// BackendMessage is one entry of a session's remote message log.
type BackendMessage struct {
	ID        string
	SessionID string
	Author    Author
	Content   string
	CreatedAt time.Time
}
