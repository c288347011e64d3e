// Package conversation turns typed input lines into chat commands.
package conversation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
)

// Kind identifies a parsed command.
type Kind int

const (
	KindMessage Kind = iota
	KindNew
	KindSessions
	KindSwitch
	KindDelete
	KindRename
	KindRegenerate
	KindUndo
	KindClear
	KindStop
	KindSettings
	KindVoice
	KindTranscribe
	KindHelp
	KindQuit
	KindSample
)

var kindNames = map[Kind]string{
	KindMessage:    "message",
	KindNew:        "new",
	KindSessions:   "sessions",
	KindSwitch:     "switch",
	KindDelete:     "delete",
	KindRename:     "rename",
	KindRegenerate: "regen",
	KindUndo:       "undo",
	KindClear:      "clear",
	KindStop:       "stop",
	KindSettings:   "settings",
	KindVoice:      "voice",
	KindTranscribe: "transcribe",
	KindHelp:       "help",
	KindQuit:       "quit",
	KindSample:     "sample",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Command is one parsed input line. Target is a session reference (a
// 1-based list number or an id). Arg carries the rest of the line: the
// message text, a new title, a file path or on/off.
type Command struct {
	Kind   Kind
	Target string
	Arg    string
}

// ErrUsage is returned for a known command with bad arguments.
var ErrUsage = errors.New("usage")

// ErrUnknownCommand is returned for a slash word that is not a command.
var ErrUnknownCommand = errors.New("unknown command")

type rule struct {
	regex *regexp.Regexp
	kind  Kind
	usage string
}

// Parser matches slash commands with simple patterns. Input that does not
// start with a slash is a message.
type Parser struct {
	log   *logger.Logger
	rules []rule
}

// NewParser creates a command parser.
func NewParser(log *logger.Logger) *Parser {
	p := &Parser{log: log}
	p.rules = []rule{
		{regexp.MustCompile(`(?i)^/(new|n)$`), KindNew, "/new"},
		{regexp.MustCompile(`(?i)^/(sessions|ls)$`), KindSessions, "/sessions"},
		{regexp.MustCompile(`(?i)^/(switch|s)\s+(\S+)$`), KindSwitch, "/switch <n|id>"},
		{regexp.MustCompile(`(?i)^/(delete|rm)\s+(\S+)$`), KindDelete, "/delete <n|id>"},
		{regexp.MustCompile(`(?i)^/rename\s+(\S+)\s+(.+)$`), KindRename, "/rename <n|id> <title>"},
		{regexp.MustCompile(`(?i)^/(regen|regenerate|retry)$`), KindRegenerate, "/regen"},
		{regexp.MustCompile(`(?i)^/(undo|u)$`), KindUndo, "/undo"},
		{regexp.MustCompile(`(?i)^/(clear|cls)$`), KindClear, "/clear"},
		{regexp.MustCompile(`(?i)^/stop$`), KindStop, "/stop"},
		{regexp.MustCompile(`(?i)^/(settings|set)$`), KindSettings, "/settings"},
		{regexp.MustCompile(`(?i)^/voice\s+(on|off)$`), KindVoice, "/voice on|off"},
		{regexp.MustCompile(`(?i)^/transcribe\s+(.+)$`), KindTranscribe, "/transcribe <file>"},
		{regexp.MustCompile(`(?i)^/(help|h|\?)$`), KindHelp, "/help"},
		{regexp.MustCompile(`(?i)^/(quit|exit|q)$`), KindQuit, "/quit"},
		{regexp.MustCompile(`^/([1-9])$`), KindSample, "/<n>"},
	}
	return p
}

// Parse converts one input line into a command. Blank input is an empty
// message; callers skip it.
func (p *Parser) Parse(input string) (Command, error) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return Command{Kind: KindMessage, Arg: trimmed}, nil
	}
	// "//text" sends a message that starts with a slash.
	if strings.HasPrefix(trimmed, "//") {
		return Command{Kind: KindMessage, Arg: trimmed[1:]}, nil
	}

	p.log.Debug("parsing command: %q", trimmed)

	for _, r := range p.rules {
		m := r.regex.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		p.log.Debug("matched command: %s", r.kind)
		switch r.kind {
		case KindSwitch, KindDelete:
			return Command{Kind: r.kind, Target: m[2]}, nil
		case KindRename:
			return Command{Kind: r.kind, Target: m[1], Arg: strings.TrimSpace(m[2])}, nil
		case KindSample:
			return Command{Kind: r.kind, Arg: m[1]}, nil
		case KindVoice:
			return Command{Kind: r.kind, Arg: strings.ToLower(m[1])}, nil
		case KindTranscribe:
			return Command{Kind: r.kind, Arg: strings.TrimSpace(m[1])}, nil
		default:
			return Command{Kind: r.kind}, nil
		}
	}

	word := strings.ToLower(strings.Fields(trimmed)[0])
	for _, r := range p.rules {
		if strings.HasPrefix(r.usage, word+" ") || r.usage == word {
			return Command{}, fmt.Errorf("%w: %s", ErrUsage, r.usage)
		}
	}
	return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, word)
}

// Usage lists every command with a one-line description.
func Usage() [][2]string {
	return [][2]string{
		{"/new", "Start a new conversation"},
		{"/sessions", "List your saved conversations"},
		{"/switch <n|id>", "Open a saved conversation"},
		{"/delete <n|id>", "Delete a saved conversation"},
		{"/rename <n|id> <title>", "Rename a saved conversation"},
		{"/regen", "Regenerate the last reply"},
		{"/undo", "Remove the last message"},
		{"/clear", "Clear the transcript"},
		{"/stop", "Stop generating and silence speech"},
		{"/settings", "Show settings"},
		{"/voice on|off", "Toggle spoken replies"},
		{"/transcribe <file>", "Transcribe a recording into the input line"},
		{"/help", "Show this message"},
		{"/quit", "Exit"},
		{"/<n>", "Ask sample inquiry n"},
	}
}

// ResolveSession maps a session reference to an id. A number picks from
// sessions by 1-based position; anything else must be a listed id.
func ResolveSession(target string, sessions []domain.Session) (string, error) {
	if isDigits(target) {
		n, err := strconv.Atoi(target)
		if err != nil || n < 1 || n > len(sessions) {
			return "", fmt.Errorf("%w: no session #%s", domain.ErrSessionNotFound, target)
		}
		return sessions[n-1].ID, nil
	}
	for _, s := range sessions {
		if s.ID == target {
			return s.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrSessionNotFound, target)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
