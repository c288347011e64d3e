package speech

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
	"github.com/hammamikhairi/ottochat/internal/transcript"
)

// Sayer is the part of Speaker the coordinator drives.
type Sayer interface {
	Say(text string)
	Interrupt()
}

// Coordinator speaks assistant messages as they are appended to the
// transcript. A message is spoken only when speech is enabled and its
// text differs from the last text spoken. Loaded history (a session
// switch) is never spoken.
type Coordinator struct {
	store *transcript.Store
	out   Sayer
	log   *logger.Logger

	mu         sync.Mutex
	enabled    bool
	lastSpoken string
}

// NewCoordinator creates a coordinator. It does nothing until Run.
func NewCoordinator(store *transcript.Store, out Sayer, enabled bool, log *logger.Logger) *Coordinator {
	return &Coordinator{store: store, out: out, enabled: enabled, log: log}
}

// Run subscribes to the transcript and returns once subscribed. Events
// are handled on a background goroutine until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	events, _ := c.store.Subscribe(ctx)
	go func() {
		for ev := range events {
			c.handle(ev)
		}
		c.log.Debug("speech coordinator stopped")
	}()
}

// SetEnabled toggles speech. Disabling interrupts anything playing.
func (c *Coordinator) SetEnabled(on bool) {
	c.mu.Lock()
	was := c.enabled
	c.enabled = on
	c.mu.Unlock()

	if was && !on {
		c.out.Interrupt()
	}
	c.log.Info("speech enabled=%t", on)
}

// Enabled reports whether speech is on.
func (c *Coordinator) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Stop interrupts current playback without changing the enabled state.
func (c *Coordinator) Stop() {
	c.out.Interrupt()
}

func (c *Coordinator) handle(ev transcript.Event) {
	if ev.Kind != transcript.EventAppended || ev.Message.Author != domain.AuthorAssistant {
		return
	}
	text := cleanForSpeech(ev.Message.Text)
	if text == "" {
		return
	}

	c.mu.Lock()
	if !c.enabled || text == c.lastSpoken {
		c.mu.Unlock()
		return
	}
	c.lastSpoken = text
	c.mu.Unlock()

	c.out.Say(text)
}

var (
	ansiCodes     = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	codeFence     = regexp.MustCompile("(?s)```.*?```")
	markdownMarks = regexp.MustCompile("[*_`#>]+")
	markdownLink  = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
)

// cleanForSpeech strips formatting that should not be read aloud.
func cleanForSpeech(msg string) string {
	s := ansiCodes.ReplaceAllString(msg, "")
	s = codeFence.ReplaceAllString(s, " ")
	s = markdownLink.ReplaceAllString(s, "$1")
	s = markdownMarks.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
