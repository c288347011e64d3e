package engine

import (
	"testing"

	"github.com/hammamikhairi/ottochat/internal/domain"
)

func TestModeTransitions(t *testing.T) {
	tests := []struct {
		name  string
		steps func(m *Mode)
		want  domain.Mode
	}{
		{"initial", func(m *Mode) {}, domain.ModeInput},
		{"send", func(m *Mode) { _ = m.BeginLoading() }, domain.ModeLoading},
		{"supersede stays loading", func(m *Mode) { _ = m.BeginLoading(); _ = m.BeginLoading() }, domain.ModeLoading},
		{"settle", func(m *Mode) { _ = m.BeginLoading(); m.Settle() }, domain.ModeInput},
		{"open settings", func(m *Mode) { m.OpenSettings() }, domain.ModeSettings},
		{"close settings", func(m *Mode) { m.OpenSettings(); m.CloseSettings() }, domain.ModeInput},
		{"settings while loading is a no-op", func(m *Mode) { _ = m.BeginLoading(); m.OpenSettings() }, domain.ModeLoading},
		{"settle outside loading is a no-op", func(m *Mode) { m.OpenSettings(); m.Settle() }, domain.ModeSettings},
		{"reset from settings", func(m *Mode) { m.OpenSettings(); m.Reset() }, domain.ModeInput},
		{"reset from loading", func(m *Mode) { _ = m.BeginLoading(); m.Reset() }, domain.ModeInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMode()
			tt.steps(m)
			if got := m.Current(); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestModeBeginLoadingFromSettingsFails(t *testing.T) {
	m := NewMode()
	m.OpenSettings()

	if err := m.BeginLoading(); err != domain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if m.Current() != domain.ModeSettings {
		t.Fatalf("mode changed on rejected transition: %s", m.Current())
	}
}

func TestModeReportsChange(t *testing.T) {
	m := NewMode()
	if m.Settle() {
		t.Fatal("settle from INPUT must report no change")
	}
	if !m.OpenSettings() {
		t.Fatal("open settings from INPUT must succeed")
	}
	if m.OpenSettings() {
		t.Fatal("open settings twice must report no change")
	}
	if !m.CloseSettings() || m.CloseSettings() {
		t.Fatal("close settings must succeed exactly once")
	}
}
