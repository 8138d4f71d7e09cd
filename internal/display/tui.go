package display

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/speakdrill/internal/drill"
)

// Answerer accepts typed answers in place of speech. It is satisfied by
// speech.TextRecognizer.
type Answerer interface {
	Listening() bool
	Type(text string)
	Submit(text string) bool
}

// TUIOption configures a [TUI].
type TUIOption func(*TUI)

// WithAnswerInput shows an answer field whose contents are fed to a.
func WithAnswerInput(a Answerer) TUIOption {
	return func(t *TUI) { t.answers = a }
}

// WithProgramOptions appends Bubble Tea program options, e.g. custom input
// and output for tests.
func WithProgramOptions(opts ...tea.ProgramOption) TUIOption {
	return func(t *TUI) { t.programOpts = append(t.programOpts, opts...) }
}

// board is what the drill last told the display.
type board struct {
	prompt       string
	transcript   string
	feedback     string
	feedbackKind drill.FeedbackKind
	score        string
	remaining    time.Duration
	limit        time.Duration
	started      bool
	complete     bool
}

// TUI is a full-screen [drill.Display]. The drill's calls only update a
// board and flag it dirty; the Bubble Tea program re-renders from the board,
// so the drill never waits on the terminal.
type TUI struct {
	mu    sync.Mutex
	board board

	dirty chan struct{}

	start       func() error
	answers     Answerer
	programOpts []tea.ProgramOption
}

var _ drill.Display = (*TUI)(nil)

// NewTUI returns a TUI. start is invoked for the Start and Restart actions.
func NewTUI(start func() error, opts ...TUIOption) *TUI {
	t := &TUI{
		board: board{score: ScorePlaceholder},
		dirty: make(chan struct{}, 1),
		start: start,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *TUI) update(f func(b *board)) {
	t.mu.Lock()
	f(&t.board)
	t.mu.Unlock()
	select {
	case t.dirty <- struct{}{}:
	default:
	}
}

func (t *TUI) snapshot() board {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.board
}

// ShowPrompt implements drill.Display.
func (t *TUI) ShowPrompt(text string) {
	t.update(func(b *board) {
		b.prompt = text
		b.limit = 0
		b.remaining = 0
	})
}

// ShowTranscript implements drill.Display.
func (t *TUI) ShowTranscript(text string) {
	t.update(func(b *board) { b.transcript = text })
}

// ShowFeedback implements drill.Display.
func (t *TUI) ShowFeedback(fb drill.Feedback) {
	t.update(func(b *board) {
		b.feedback = FormatFeedback(fb)
		b.feedbackKind = fb.Kind
	})
}

// ClearFeedback implements drill.Display.
func (t *TUI) ClearFeedback() {
	t.update(func(b *board) { b.feedback = "" })
}

// ShowScore implements drill.Display.
func (t *TUI) ShowScore(score int, ok bool) {
	t.update(func(b *board) { b.score = FormatScore(score, ok) })
}

// ShowCountdown implements drill.Display. The largest value seen since the
// last prompt is taken as the full bar.
func (t *TUI) ShowCountdown(remaining time.Duration) {
	t.update(func(b *board) {
		b.remaining = remaining
		if remaining > b.limit {
			b.limit = remaining
		}
	})
}

// ShowComplete implements drill.Display.
func (t *TUI) ShowComplete() {
	t.update(func(b *board) {
		b.complete = true
		b.remaining = 0
	})
}

// Run drives the terminal until the learner quits or ctx is cancelled.
func (t *TUI) Run(ctx context.Context) error {
	opts := append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, t.programOpts...)
	p := tea.NewProgram(newModel(t), opts...)

	fwdCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for {
			select {
			case <-fwdCtx.Done():
				return
			case <-t.dirty:
				p.Send(refreshMsg{})
			}
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// ─── Bubble Tea model ────────────────────────────────────────────────────────

type refreshMsg struct{}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))
	promptStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0"))
	transcriptStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#B0B0B0"))
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	successStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	warningStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle       = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
)

const (
	defaultBarWidth = 40
	maxBarWidth     = 60
)

type model struct {
	t     *TUI
	input textinput.Model
	bar   progress.Model

	width  int
	height int
}

func newModel(t *TUI) *model {
	input := textinput.New()
	input.Prompt = "answer> "
	input.Placeholder = "type your answer and press enter"
	input.CharLimit = 200
	input.Focus()

	return &model{
		t:     t,
		input: input,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(defaultBarWidth)),
	}
}

// Init implements tea.Model.
func (m *model) Init() tea.Cmd {
	if m.t.answers != nil {
		return textinput.Blink
	}
	return nil
}

// Update implements tea.Model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(max(msg.Width-16, 10), maxBarWidth)
		return m, nil
	case refreshMsg:
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			m.handleEnter()
			return m, nil
		}
		return m, m.handleInput(msg)
	}
	if m.t.answers != nil {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) handleEnter() {
	if a := m.t.answers; a != nil && a.Listening() {
		if text := strings.TrimSpace(m.input.Value()); text != "" {
			a.Submit(text)
			m.input.Reset()
			return
		}
	}
	b := m.t.snapshot()
	if b.started && !b.complete {
		return
	}
	m.t.update(func(b *board) {
		b.started = true
		b.complete = false
	})
	if err := m.t.start(); err != nil {
		slog.Debug("display: start rejected", "err", err)
		m.t.update(func(b *board) { b.started = false })
	}
}

func (m *model) handleInput(msg tea.KeyMsg) tea.Cmd {
	a := m.t.answers
	if a == nil {
		return nil
	}
	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before && a.Listening() {
		a.Type(after)
	}
	return cmd
}

// View implements tea.Model.
func (m *model) View() string {
	b := m.t.snapshot()

	lines := []string{titleStyle.Render("speakdrill"), ""}
	if b.prompt != "" {
		lines = append(lines, promptStyle.Render(b.prompt))
	} else {
		lines = append(lines, mutedStyle.Render("Press enter to begin."))
	}
	if b.transcript != "" {
		lines = append(lines, transcriptStyle.Render(b.transcript))
	}
	lines = append(lines, "", m.renderCountdown(b), "Score: "+b.score)
	if b.feedback != "" {
		lines = append(lines, "", feedbackStyle(b.feedbackKind).Render(b.feedback))
	}
	if m.t.answers != nil && b.started && !b.complete {
		lines = append(lines, "", m.input.View())
	}

	content := cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	footer := mutedStyle.Render(m.footer(b))
	if m.width == 0 || m.height == 0 {
		return content + "\n" + footer
	}
	if m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	return body + "\n" + lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
}

func (m *model) renderCountdown(b board) string {
	percent := 0.0
	if b.limit > 0 {
		percent = float64(b.remaining) / float64(b.limit)
	}
	return m.bar.ViewAs(percent) + " " + FormatCountdown(b.remaining)
}

func (m *model) footer(b board) string {
	segments := make([]string, 0, 2)
	switch {
	case b.complete:
		segments = append(segments, "enter: "+LabelRestart)
	case !b.started:
		segments = append(segments, "enter: "+LabelStart)
	}
	segments = append(segments, "esc: quit")
	return strings.Join(segments, " · ")
}

func feedbackStyle(kind drill.FeedbackKind) lipgloss.Style {
	switch kind {
	case drill.FeedbackWarning:
		return warningStyle
	case drill.FeedbackError:
		return errorStyle
	default:
		return successStyle
	}
}
