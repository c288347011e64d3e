package display

import (
	_ "embed"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
)

//go:embed banner.txt
var bannerRaw string

// Greeting is the assistant's opening line on the front page.
const Greeting = "Hello! How may I help you today?"

// SampleInquiries are suggested first questions shown on the front page.
var SampleInquiries = []string{
	"When is the application for school year 2025-2026?",
	"Give me some recommended learning materials on Operating Systems.",
	"Who should I contact for more information?",
}

// RenderBanner returns the banner art horizontally centred for the
// current terminal width. To change the banner just replace banner.txt.
func RenderBanner() string {
	return centre(bannerRaw, termWidth())
}

// RenderFront returns the front page shown before the first message:
// the greeting and the numbered sample inquiries.
func RenderFront() string {
	var b strings.Builder
	b.WriteString(assistantStyle.Render("  " + Greeting))
	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render("  Sample inquiries"))
	b.WriteByte('\n')
	for i, q := range SampleInquiries {
		b.WriteString(labelStyle.Render("  " + string(rune('1'+i)) + ". "))
		b.WriteString(primaryStyle.Render(q))
		b.WriteByte('\n')
	}
	b.WriteString(secondaryStyle.Render("  Type a question, /1 to /3 to ask a sample, or /help for commands."))
	return b.String()
}

// SampleInquiry returns the n-th (1-based) sample inquiry.
func SampleInquiry(n int) (string, bool) {
	if n < 1 || n > len(SampleInquiries) {
		return "", false
	}
	return SampleInquiries[n-1], true
}

func centre(raw string, width int) string {
	lines := strings.Split(strings.TrimRight(raw, "\n"), "\n")
	if len(lines) == 0 {
		return ""
	}

	// Find the widest line.
	maxW := 0
	for _, l := range lines {
		if len(l) > maxW {
			maxW = len(l)
		}
	}

	var b strings.Builder
	for _, l := range lines {
		pad := 0
		if width > maxW {
			pad = (width - maxW) / 2
		}
		if pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteString(BannerStyle.Render(l))
		b.WriteByte('\n')
	}
	return b.String()
}

// termWidth returns the current terminal column count, or 80 as fallback.
func termWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 80
}
