// Package auth provides read-only bearer token sources. Acquiring and
// refreshing tokens is owned by an external collaborator; these providers
// only read what it left behind.
package auth

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hammamikhairi/ottochat/internal/domain"
)

// EnvToken is the environment variable consulted by Env.
const EnvToken = "OTTOCHAT_TOKEN"

// Compile-time interface checks.
var (
	_ domain.TokenProvider = (*Static)(nil)
	_ domain.TokenProvider = Env("")
	_ domain.TokenProvider = (*File)(nil)
	_ domain.TokenProvider = Chain(nil)
)

// Static is a fixed token that can be swapped at runtime (e.g. after the
// user signs in or out through another surface).
type Static struct {
	mu    sync.RWMutex
	token string
}

// NewStatic creates a static provider. An empty token means anonymous.
func NewStatic(token string) *Static {
	return &Static{token: strings.TrimSpace(token)}
}

// Token returns the current token.
func (s *Static) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Set replaces the token. Pass "" to become anonymous.
func (s *Static) Set(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

// Env reads the named environment variable on every call.
type Env string

// Token returns the variable's value.
func (e Env) Token() (string, bool) {
	name := string(e)
	if name == "" {
		name = EnvToken
	}
	t := strings.TrimSpace(os.Getenv(name))
	return t, t != ""
}

// File reads a token file on every call so tokens rewritten by the auth
// collaborator are picked up without a restart.
type File struct {
	path string
}

// NewFile creates a file provider.
func NewFile(path string) *File {
	return &File{path: path}
}

// DefaultTokenPath returns $XDG_CONFIG_HOME/ottochat/token, falling back to
// ~/.config/ottochat/token. Returns "" when no home directory is known.
func DefaultTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "ottochat", "token")
}

// Token returns the file's trimmed contents.
func (f *File) Token() (string, bool) {
	if f.path == "" {
		return "", false
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", false
	}
	t := strings.TrimSpace(string(data))
	return t, t != ""
}

// Chain returns the first token found.
type Chain []domain.TokenProvider

// Token walks the chain in order.
func (c Chain) Token() (string, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if t, ok := p.Token(); ok {
			return t, true
		}
	}
	return "", false
}
