// Package display provides the terminal UI using Bubble Tea.
//
// The [UI] type manages a persistent status bar and an input prompt at
// the bottom of the terminal. Transcript lines are printed above the
// rendered area via Program.Println / Printf, so concurrent writes never
// garble the display.
package display

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/ottochat/internal/domain"
)

// ── Styles ───────────────────────────────────────────────────────

var (
	barBg = lipgloss.NewStyle().
		Background(lipgloss.Color("#27272a")).
		Foreground(lipgloss.Color("#a1a1aa"))

	modeInputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	modeLoadingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#fde68a"))

	modeSettingsStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#bae6fd"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa"))

	sepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#52525b"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	// BannerStyle is the muted slate used for the startup banner.
	BannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bae6fd"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	primaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8"))

	secondaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))

	urgentOutputStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#fca5a5"))

	userInputEchoStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#a1a1aa"))
)

// Status is what the status bar shows.
type Status struct {
	Mode            domain.Mode
	SessionTitle    string
	Authenticated   bool
	SpeechAvailable bool
	SpeechEnabled   bool
	SessionsLoading bool
	SessionError    string
}

// Key bindings that emit command lines instead of editing the input.
const (
	LineStop     = "/stop"
	LineSettings = "/settings"
	LineRegen    = "/regen"
	LineUndo     = "/undo"
	LineClear    = "/clear"
)

// ── UI ───────────────────────────────────────────────────────────

// UI manages the terminal through Bubble Tea.
//
// Call [NewUI] then [UI.Run] (blocking). Other goroutines may safely
// call the print helpers, [UI.SetStatus] and read from [UI.InputChan]
// at any time after [UI.WaitReady] returns.
type UI struct {
	program *tea.Program
	inputCh chan string
	readyCh chan struct{}
	quitCh  chan struct{}
	done    atomic.Bool
}

// NewUI creates the display. Call Run() to start.
func NewUI() *UI {
	return &UI{
		inputCh: make(chan string, 16),
		readyCh: make(chan struct{}),
		quitCh:  make(chan struct{}),
	}
}

// Println prints a line above the prompt. Thread-safe. Before the
// program starts it falls back to fmt.Println.
func (u *UI) Println(a ...interface{}) {
	if u.program != nil && !u.done.Load() {
		u.program.Println(a...)
	} else {
		fmt.Println(a...)
	}
}

// Printf prints formatted text above the prompt. Thread-safe.
func (u *UI) Printf(format string, a ...interface{}) {
	if u.program != nil && !u.done.Load() {
		u.program.Printf(format, a...)
	} else {
		fmt.Printf(format+"\n", a...)
	}
}

// InputChan returns completed user-input lines.
func (u *UI) InputChan() <-chan string { return u.inputCh }

// SetStatus updates the status bar.
func (u *UI) SetStatus(st Status) {
	if u.program != nil && !u.done.Load() {
		u.program.Send(statusMsg(st))
	}
}

// SetInput replaces the contents of the input line.
func (u *UI) SetInput(text string) {
	if u.program != nil && !u.done.Load() {
		u.program.Send(fillMsg(text))
	}
}

// ── Styled print helpers ─────────────────────────────────────────

// PrintUser prints a user message from the transcript.
func (u *UI) PrintUser(text string) {
	u.Println(promptStyle.Render("you") + secondaryStyle.Render("> ") + userInputEchoStyle.Render(text))
}

// PrintAssistant prints an assistant message from the transcript.
func (u *UI) PrintAssistant(text string) {
	u.Println(assistantStyle.Render(indent(text)))
}

// PrintHeader prints a section header.
func (u *UI) PrintHeader(text string) {
	u.Println(headerStyle.Render("  " + text))
}

// PrintLine prints a plain line of primary text.
func (u *UI) PrintLine(text string) {
	u.Println(primaryStyle.Render("  " + text))
}

// PrintHint prints a secondary/dimmed line.
func (u *UI) PrintHint(text string) {
	u.Println(secondaryStyle.Render("  " + text))
}

// PrintUrgent prints an error line.
func (u *UI) PrintUrgent(text string) {
	u.Println(urgentOutputStyle.Render("  " + text))
}

// WaitReady blocks until the Bubble Tea event loop is running.
func (u *UI) WaitReady() { <-u.readyCh }

// Quit tells Bubble Tea to exit.
func (u *UI) Quit() {
	if u.program != nil {
		u.program.Quit()
	}
}

// QuitChan is closed when Run returns.
func (u *UI) QuitChan() <-chan struct{} { return u.quitCh }

// Run starts the Bubble Tea event loop. Blocks until quit.
func (u *UI) Run() error {
	u.program = tea.NewProgram(newModel(u.inputCh, u.readyCh))
	_, err := u.program.Run()
	u.done.Store(true)
	close(u.quitCh)
	return err
}

// ── Bubble Tea model ─────────────────────────────────────────────

type statusMsg Status

type fillMsg string

type model struct {
	input   textinput.Model
	spinner spinner.Model
	inputCh chan<- string
	readyCh chan struct{}
	status  Status
	width   int
}

func newModel(inputCh chan<- string, readyCh chan struct{}) model {
	ti := textinput.New()
	// A plain-text prompt keeps the textinput width math correct; styled
	// prompts add ANSI bytes that break its offset calculations.
	ti.Prompt = "you> "
	ti.PromptStyle = promptStyle
	ti.TextStyle = userInputEchoStyle
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 60 // updated on first WindowSizeMsg

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = modeLoadingStyle

	return model{
		input:   ti,
		spinner: sp,
		inputCh: inputCh,
		readyCh: readyCh,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		signalReady(m.readyCh),
		tea.SetWindowTitle("OttoChat"),
	)
}

func signalReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if ch != nil {
			close(ch)
		}
		return nil
	}
}

func (m model) emit(line string) {
	select {
	case m.inputCh <- line:
	default:
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.status.Mode == domain.ModeSettings {
			return m.updateSettings(msg)
		}
		switch msg.Type {
		case tea.KeyEsc:
			if m.status.Mode == domain.ModeLoading {
				m.emit(LineStop)
			}
			return m, nil
		case tea.KeyEnter:
			v := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if v != "" {
				m.emit(v)
			}
			return m, nil
		}

	case statusMsg:
		m.status = Status(msg)
		if m.status.Mode == domain.ModeSettings {
			m.input.Blur()
		} else {
			m.input.Focus()
		}
		return m, tea.SetWindowTitle(m.titleStr())

	case fillMsg:
		m.input.SetValue(string(msg))
		m.input.CursorEnd()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		promptLen := len(m.input.Prompt)
		if msg.Width > promptLen {
			m.input.Width = msg.Width - promptLen
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// updateSettings maps the settings panel keys to command lines.
func (m model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.emit(LineSettings)
		return m, nil
	case tea.KeyRunes:
		switch strings.ToLower(string(msg.Runes)) {
		case "r":
			m.emit(LineRegen)
		case "u":
			m.emit(LineUndo)
		case "x":
			m.emit(LineClear)
		case "q":
			m.emit(LineSettings)
		}
	}
	return m, nil
}

func (m model) titleStr() string {
	if m.status.SessionTitle == "" {
		return "OttoChat"
	}
	return "OttoChat | " + m.status.SessionTitle
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(m.renderBar())
	b.WriteByte('\n')
	b.WriteByte('\n')

	switch m.status.Mode {
	case domain.ModeLoading:
		b.WriteString(m.spinner.View() + secondaryStyle.Render(" Generating... (esc to stop)"))
	case domain.ModeSettings:
		b.WriteString(renderSettings())
	default:
		b.WriteString(m.input.View())
	}
	return b.String()
}

func renderSettings() string {
	keys := []string{
		labelStyle.Render("[r] ") + primaryStyle.Render("Regenerate last reply"),
		labelStyle.Render("[u] ") + primaryStyle.Render("Delete last message"),
		labelStyle.Render("[x] ") + primaryStyle.Render("Delete all messages"),
		labelStyle.Render("[esc] ") + primaryStyle.Render("Back"),
	}
	return " " + strings.Join(keys, sepStyle.Render("  │  "))
}

func (m model) renderBar() string {
	parts := []string{m.renderMode()}

	title := m.status.SessionTitle
	switch {
	case !m.status.Authenticated:
		title = "anonymous"
	case title == "":
		title = "new conversation"
	}
	parts = append(parts, labelStyle.Render("session: ")+primaryStyle.Render(title))

	if m.status.SpeechAvailable {
		voice := "off"
		if m.status.SpeechEnabled {
			voice = "on"
		}
		parts = append(parts, labelStyle.Render("voice: ")+primaryStyle.Render(voice))
	}
	if m.status.SessionsLoading {
		parts = append(parts, secondaryStyle.Render("syncing sessions"))
	}
	if m.status.SessionError != "" {
		parts = append(parts, urgentOutputStyle.Render(truncate(m.status.SessionError, 48)))
	}

	content := " " + strings.Join(parts, sepStyle.Render("  │  ")) + " "

	w := m.width
	if w <= 0 {
		w = 80
	}
	return barBg.Width(w).Render(content)
}

func (m model) renderMode() string {
	switch m.status.Mode {
	case domain.ModeLoading:
		return modeLoadingStyle.Render("LOADING")
	case domain.ModeSettings:
		return modeSettingsStyle.Render("SETTINGS")
	default:
		return modeInputStyle.Render("INPUT")
	}
}

// ── Helpers ──────────────────────────────────────────────────────

func indent(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
