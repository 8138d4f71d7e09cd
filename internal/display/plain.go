package display

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/speakdrill/internal/drill"
)

// Plain writes the drill as a stream of lines. Colours follow the writer's
// capabilities, so redirected output stays free of escape codes.
//
// Interim transcripts repeat the previous line's text often; only changes are
// written.
type Plain struct {
	mu sync.Mutex
	w  io.Writer

	lastTranscript string
	lastCountdown  string

	prompt   lipgloss.Style
	muted    lipgloss.Style
	success  lipgloss.Style
	warning  lipgloss.Style
	failure  lipgloss.Style
	emphasis lipgloss.Style
}

var _ drill.Display = (*Plain)(nil)

// NewPlain returns a Plain sink writing to w.
func NewPlain(w io.Writer) *Plain {
	r := lipgloss.NewRenderer(w)
	return &Plain{
		w:        w,
		prompt:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0")),
		muted:    r.NewStyle().Foreground(lipgloss.Color("#8C8C8C")),
		success:  r.NewStyle().Foreground(lipgloss.Color("#52C41A")),
		warning:  r.NewStyle().Foreground(lipgloss.Color("#C89A3A")),
		failure:  r.NewStyle().Foreground(lipgloss.Color("#FF4D4F")),
		emphasis: r.NewStyle().Bold(true),
	}
}

func (p *Plain) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}

// ShowPrompt implements drill.Display.
func (p *Plain) ShowPrompt(text string) {
	p.mu.Lock()
	p.lastTranscript = ""
	p.lastCountdown = ""
	p.mu.Unlock()
	p.println(p.prompt.Render("> " + text))
}

// ShowTranscript implements drill.Display.
func (p *Plain) ShowTranscript(text string) {
	p.mu.Lock()
	if text == p.lastTranscript {
		p.mu.Unlock()
		return
	}
	p.lastTranscript = text
	p.mu.Unlock()
	p.println(p.muted.Render("  heard: " + text))
}

// ShowFeedback implements drill.Display.
func (p *Plain) ShowFeedback(fb drill.Feedback) {
	style := p.success
	switch fb.Kind {
	case drill.FeedbackWarning:
		style = p.warning
	case drill.FeedbackError:
		style = p.failure
	}
	p.println(style.Render("  " + FormatFeedback(fb)))
}

// ClearFeedback implements drill.Display. Lines already written stay.
func (p *Plain) ClearFeedback() {}

// ShowScore implements drill.Display. Placeholders are not written.
func (p *Plain) ShowScore(score int, ok bool) {
	if !ok {
		return
	}
	p.println("  score: " + p.emphasis.Render(FormatScore(score, ok)))
}

// ShowCountdown implements drill.Display.
func (p *Plain) ShowCountdown(remaining time.Duration) {
	s := FormatCountdown(remaining)
	p.mu.Lock()
	if s == p.lastCountdown {
		p.mu.Unlock()
		return
	}
	p.lastCountdown = s
	p.mu.Unlock()
	p.println(p.muted.Render("  " + s))
}

// ShowComplete implements drill.Display.
func (p *Plain) ShowComplete() {
	p.println(p.muted.Render("Press Enter to " + LabelRestart + "."))
}
