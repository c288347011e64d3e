// Package domain defines the core types and interfaces for the chat client.
// All other packages depend on domain; domain depends on nothing.
package domain

import "time"

// Author identifies who wrote a transcript message.
type Author int

const (
	AuthorUser Author = iota
	AuthorAssistant
)

// String returns the wire name of the author.
func (a Author) String() string {
	switch a {
	case AuthorUser:
		return "user"
	case AuthorAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// AuthorFromRole converts a backend role name to an Author. Anything that is
// not "user" is treated as the assistant.
func AuthorFromRole(role string) Author {
	switch role {
	case "user", "USER", "User":
		return AuthorUser
	default:
		return AuthorAssistant
	}
}

// Message is a single transcript entry. Messages are immutable once created.
type Message struct {
	ID        string
	Text      string
	Author    Author
	CreatedAt time.Time
}

// IsUser reports whether the message was written by the user.
func (m Message) IsUser() bool { return m.Author == AuthorUser }

// Reply is the settled result of a bot query.
type Reply struct {
	Text      string
	SessionID string
	MessageID string
}

// ChatRequest is what the request controller hands to the backend.
// SessionID is empty for anonymous use and for the first authenticated send
// of a new conversation.
type ChatRequest struct {
	Query     string
	SessionID string
}
