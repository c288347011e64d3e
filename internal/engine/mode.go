package engine

import (
	"sync"

	"github.com/hammamikhairi/ottochat/internal/domain"
)

// Mode is the input mode state machine:
//
//	INPUT    -> LOADING   (send)
//	LOADING  -> LOADING   (a newer send supersedes)
//	LOADING  -> INPUT     (settlement)
//	INPUT   <-> SETTINGS  (explicit open/close)
//	any      -> INPUT     (hard reset)
//
// No other transitions exist. Opening settings while LOADING is a no-op.
type Mode struct {
	mu   sync.Mutex
	mode domain.Mode
}

// NewMode returns a machine in INPUT.
func NewMode() *Mode {
	return &Mode{mode: domain.ModeInput}
}

// Current returns the current mode.
func (m *Mode) Current() domain.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// BeginLoading enters LOADING. It fails from SETTINGS.
func (m *Mode) BeginLoading() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == domain.ModeSettings {
		return domain.ErrInvalidTransition
	}
	m.mode = domain.ModeLoading
	return nil
}

// Settle leaves LOADING. It reports whether the mode changed.
func (m *Mode) Settle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != domain.ModeLoading {
		return false
	}
	m.mode = domain.ModeInput
	return true
}

// OpenSettings enters SETTINGS from INPUT. From any other mode it is a
// no-op and reports false.
func (m *Mode) OpenSettings() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != domain.ModeInput {
		return false
	}
	m.mode = domain.ModeSettings
	return true
}

// CloseSettings returns from SETTINGS to INPUT.
func (m *Mode) CloseSettings() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != domain.ModeSettings {
		return false
	}
	m.mode = domain.ModeInput
	return true
}

// Reset forces INPUT from any state.
func (m *Mode) Reset() {
	m.mu.Lock()
	m.mode = domain.ModeInput
	m.mu.Unlock()
}
