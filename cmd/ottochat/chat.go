package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hammamikhairi/ottochat/internal/conversation"
	"github.com/hammamikhairi/ottochat/internal/display"
	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/engine"
	"github.com/hammamikhairi/ottochat/internal/logger"
	"github.com/hammamikhairi/ottochat/internal/transcript"
)

// runChat starts the interactive terminal chat.
func runChat(parent context.Context, f *flags) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	d, err := wire(ctx, f, true)
	if err != nil {
		return err
	}
	defer d.Close()

	ui := display.NewUI()
	app := &cliApp{
		engine: d.engine,
		store:  d.store,
		parser: conversation.NewParser(d.log.With("parser")),
		ui:     ui,
		log:    d.log.With("app"),
	}

	fmt.Println(display.RenderBanner())

	// Run app logic in a background goroutine.
	go func() {
		ui.WaitReady()
		app.run(ctx)
		ui.Quit()
	}()

	// Bubble Tea owns the terminal and blocks until quit.
	if err := ui.Run(); err != nil {
		d.log.Error("display: %v", err)
	}
	cancel()
	return nil
}

type cliApp struct {
	engine *engine.Engine
	store  *transcript.Store
	parser *conversation.Parser
	ui     *display.UI
	log    *logger.Logger
}

func (a *cliApp) run(ctx context.Context) {
	events, subID := a.store.Subscribe(ctx)
	defer a.store.Unsubscribe(subID)

	go a.watchState(ctx)

	a.ui.Println(display.RenderFront())
	a.ui.Println("")

	if a.engine.Snapshot().Authenticated {
		go a.refreshSessions(ctx)
	}

	inputs := a.ui.InputChan()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.render(ev)
		case input, ok := <-inputs:
			if !ok {
				return
			}
			if a.handle(ctx, input) {
				return
			}
		}
	}
}

// watchState mirrors engine snapshots into the status bar. A token that
// appears or disappears between snapshots runs the engine's sign-in or
// sign-out path.
func (a *cliApp) watchState(ctx context.Context) {
	authed := a.engine.Snapshot().Authenticated
	push := func() {
		st := a.engine.Snapshot()
		if st.Authenticated != authed {
			authed = st.Authenticated
			a.log.Info("authentication changed (authenticated=%t)", authed)
			go func() {
				if err := a.engine.AuthChanged(ctx); err != nil {
					a.log.Warn("auth refresh failed: %v", err)
				}
			}()
		}
		status := display.Status{
			Mode:            st.Mode,
			Authenticated:   st.Authenticated,
			SpeechAvailable: a.engine.SpeechAvailable(),
			SpeechEnabled:   st.SpeechEnabled,
			SessionsLoading: st.SessionsLoading,
			SessionError:    st.SessionError,
		}
		if st.CurrentSession != nil {
			status.SessionTitle = st.CurrentSession.Title
		}
		a.ui.SetStatus(status)
	}

	push()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.engine.Changes():
			push()
		}
	}
}

// render prints transcript changes above the prompt.
func (a *cliApp) render(ev transcript.Event) {
	switch ev.Kind {
	case transcript.EventAppended:
		if ev.Message.IsUser() {
			a.ui.PrintUser(ev.Message.Text)
		} else {
			a.ui.PrintAssistant(ev.Message.Text)
		}
	case transcript.EventDeletedLast:
		a.ui.PrintHint("(removed: " + truncateStr(ev.Message.Text, 60) + ")")
	case transcript.EventCleared:
		a.ui.PrintHint("(transcript cleared)")
	case transcript.EventReplaced:
		a.ui.PrintHint(fmt.Sprintf("(loaded %d messages)", len(ev.Messages)))
		for _, m := range ev.Messages {
			if m.IsUser() {
				a.ui.PrintUser(m.Text)
			} else {
				a.ui.PrintAssistant(m.Text)
			}
		}
	}
}

// handle dispatches one input line. It reports whether the app should exit.
func (a *cliApp) handle(ctx context.Context, input string) bool {
	cmd, err := a.parser.Parse(input)
	if err != nil {
		a.ui.PrintUrgent(err.Error())
		return false
	}
	a.log.Debug("command: %s (target=%q arg=%q)", cmd.Kind, cmd.Target, cmd.Arg)

	switch cmd.Kind {
	case conversation.KindMessage:
		if cmd.Arg != "" {
			a.send(ctx, cmd.Arg)
		}
	case conversation.KindSample:
		n, _ := strconv.Atoi(cmd.Arg)
		if q, ok := display.SampleInquiry(n); ok {
			a.send(ctx, q)
		} else {
			a.ui.PrintUrgent(fmt.Sprintf("no sample #%d", n))
		}
	case conversation.KindRegenerate:
		a.engine.CloseSettings()
		go func() { a.report(a.engine.Regenerate(ctx)) }()
	case conversation.KindStop:
		a.engine.Stop()
	case conversation.KindUndo:
		a.engine.DeleteLast()
	case conversation.KindClear:
		a.engine.DeleteAll()
	case conversation.KindSettings:
		if a.engine.Mode() == domain.ModeSettings {
			a.engine.CloseSettings()
		} else if !a.engine.OpenSettings() {
			a.ui.PrintHint("settings are unavailable while a reply is generating")
		}
	case conversation.KindVoice:
		if !a.engine.SpeechAvailable() {
			a.ui.PrintUrgent("speech is not available")
			break
		}
		a.engine.SetSpeechEnabled(cmd.Arg == "on")
		a.ui.PrintHint("voice " + cmd.Arg)
	case conversation.KindNew:
		a.engine.StartNewSession()
		a.ui.PrintHint("started a new conversation")
	case conversation.KindSessions:
		go a.listSessions(ctx)
	case conversation.KindSwitch:
		if id, ok := a.resolve(cmd.Target); ok {
			go func() { a.report(a.engine.SwitchSession(ctx, id)) }()
		}
	case conversation.KindDelete:
		if id, ok := a.resolve(cmd.Target); ok {
			go func() {
				if err := a.engine.DeleteSession(ctx, id); err != nil {
					a.report(err)
					return
				}
				a.ui.PrintHint("deleted " + id)
			}()
		}
	case conversation.KindRename:
		if id, ok := a.resolve(cmd.Target); ok {
			go func() { a.report(a.engine.RenameSession(ctx, id, cmd.Arg)) }()
		}
	case conversation.KindTranscribe:
		go a.transcribe(ctx, cmd.Arg)
	case conversation.KindHelp:
		a.showHelp()
	case conversation.KindQuit:
		a.engine.Stop()
		a.ui.PrintHint("bye")
		// Brief pause so the goodbye line reaches the terminal.
		time.Sleep(100 * time.Millisecond)
		return true
	}
	return false
}

// send runs the blocking query in the background; transcript events
// render the outcome.
func (a *cliApp) send(ctx context.Context, text string) {
	go func() {
		err := a.engine.Send(ctx, text)
		if _, cancelled := domain.IsCancelled(err); cancelled {
			return
		}
		if errors.Is(err, domain.ErrEmptyMessage) {
			return
		}
		if err != nil {
			a.log.Error("send: %v", err)
		}
	}()
}

func (a *cliApp) report(err error) {
	if err == nil {
		return
	}
	if _, cancelled := domain.IsCancelled(err); cancelled {
		return
	}
	a.ui.PrintUrgent(domain.Detail(err))
}

func (a *cliApp) resolve(target string) (string, bool) {
	id, err := conversation.ResolveSession(target, a.engine.Sessions())
	if err != nil {
		a.ui.PrintUrgent(err.Error() + " (try /sessions)")
		return "", false
	}
	return id, true
}

func (a *cliApp) refreshSessions(ctx context.Context) {
	if _, err := a.engine.ListSessions(ctx); err != nil {
		a.log.Warn("initial session listing failed: %v", err)
	}
}

func (a *cliApp) listSessions(ctx context.Context) {
	list, err := a.engine.ListSessions(ctx)
	if err != nil {
		a.report(err)
		return
	}
	if len(list) == 0 {
		a.ui.PrintHint("no saved conversations")
		return
	}

	current := ""
	if cur := a.engine.Snapshot().CurrentSession; cur != nil {
		current = cur.ID
	}
	a.ui.PrintHeader("Conversations:")
	for i, s := range list {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		a.ui.PrintLine(fmt.Sprintf("%s %2d. %s  %s", marker, i+1, s.Title, formatAge(s.UpdatedAt)))
		if s.LastMessagePreview != "" {
			a.ui.PrintHint("       " + truncateStr(s.LastMessagePreview, 70))
		}
	}
}

func (a *cliApp) transcribe(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		a.ui.PrintUrgent(err.Error())
		return
	}
	defer f.Close()

	text, err := a.engine.Transcribe(ctx, f, path)
	if err != nil {
		a.report(err)
		return
	}
	if text == "" {
		a.ui.PrintHint("nothing was heard")
		return
	}
	a.ui.SetInput(text)
}

func (a *cliApp) showHelp() {
	a.ui.PrintHeader("Commands:")
	for _, u := range conversation.Usage() {
		a.ui.PrintLine(fmt.Sprintf("  %-24s %s", u[0], u[1]))
	}
	a.ui.Println("")
	a.ui.PrintHint("Esc stops a reply while it is generating. In settings: r regenerate, u undo, x clear.")
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t).Round(time.Minute)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
