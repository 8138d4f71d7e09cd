// Package drill implements the timed spoken-answer drill: a session state
// machine that prompts the learner, listens for an answer while a countdown
// runs, grades the answer and either advances or repeats the prompt.
//
// The [Controller] is a single-goroutine actor. Every input (start requests,
// recognizer events, countdown ticks, speaker completion, delayed
// continuations) is posted to its [Mailbox] and handled in arrival order, so
// the session [State] needs no locking. Each turn carries a token; events
// from an earlier turn, or events that arrive after the turn was resolved,
// are dropped. That makes the first of {final transcript, recognition error,
// recognition end, countdown expiry} the only one with any effect.
package drill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/speakdrill/internal/clock"
	"github.com/MrWong99/speakdrill/internal/countdown"
	"github.com/MrWong99/speakdrill/internal/lexicon"
	"github.com/MrWong99/speakdrill/internal/observe"
	"github.com/MrWong99/speakdrill/internal/scoring"
)

// ErrRecognitionUnavailable is returned by [Controller.Start] when no
// speech-to-text backend is configured. The condition is permanent.
var ErrRecognitionUnavailable = errors.New("drill: speech recognition unavailable")

// Default timing, matching the classroom pace the drill is modelled on.
const (
	DefaultTimeLimit    = 5 * time.Second
	DefaultTick         = time.Second
	DefaultAdvanceDelay = 1400 * time.Millisecond
	DefaultRetryDelay   = 2000 * time.Millisecond
	DefaultLanguage     = "en-US"
)

// Config holds the drill timing. Zero fields take the defaults above.
type Config struct {
	// TimeLimit is how long the learner has to answer.
	TimeLimit time.Duration

	// Tick is the countdown display interval.
	Tick time.Duration

	// AdvanceDelay is the pause after a correct answer.
	AdvanceDelay time.Duration

	// RetryDelay is the pause before a prompt is repeated.
	RetryDelay time.Duration

	// Language is passed to the recognizer.
	Language string
}

func (c Config) withDefaults() Config {
	if c.TimeLimit <= 0 {
		c.TimeLimit = DefaultTimeLimit
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.AdvanceDelay <= 0 {
		c.AdvanceDelay = DefaultAdvanceDelay
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	return c
}

// Option is a functional option for [New].
type Option func(*Controller)

// WithConfig sets the drill timing.
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// WithClock replaces the wall clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithMailbox supplies the mailbox. Tests pass their own and drive it with
// [Mailbox.RunPending] instead of calling [Controller.Run].
func WithMailbox(m *Mailbox) Option {
	return func(c *Controller) { c.mailbox = m }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithHinter sets the pronunciation hinter used on mismatches.
func WithHinter(h *scoring.Hinter) Option {
	return func(c *Controller) { c.hinter = h }
}

// Controller runs drill sessions over a lexicon.
type Controller struct {
	lex        *lexicon.Lexicon
	recognizer Recognizer
	speaker    Speaker
	display    Display

	clock   clock.Clock
	mailbox *Mailbox
	metrics *observe.Metrics
	hinter  *scoring.Hinter
	spawn   func(func())

	// Everything below is owned by the mailbox goroutine.
	ctx         context.Context
	cfg         Config
	newCfg      *Config
	countdown   *countdown.Scheduler
	state       State
	recognition Recognition
	lastInterim string
	next        clock.Timer
	turnCtx     context.Context
	turnSpan    trace.Span
	active      bool
	reported    bool

	snapshot atomic.Pointer[State]
}

// New returns a Controller drilling lex. A nil recognizer makes every start
// fail with [ErrRecognitionUnavailable]. A nil speaker skips speaking and
// listens immediately.
func New(lex *lexicon.Lexicon, recognizer Recognizer, speaker Speaker, display Display, opts ...Option) *Controller {
	c := &Controller{
		lex:        lex,
		recognizer: recognizer,
		speaker:    speaker,
		display:    display,
		clock:      clock.Real{},
		ctx:        context.Background(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.mailbox == nil {
		c.mailbox = NewMailbox()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.hinter == nil {
		c.hinter = scoring.NewHinter()
	}
	if c.spawn == nil {
		c.spawn = func(f func()) { go f() }
	}
	c.cfg = c.cfg.withDefaults()
	c.countdown = c.newScheduler()
	c.publish()
	return c
}

func (c *Controller) newScheduler() *countdown.Scheduler {
	return countdown.New(countdown.WithClock(c.clock), countdown.WithUnit(c.cfg.Tick))
}

// Run processes events until ctx is cancelled, then stops any open listening
// session and pending timers.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	err := c.mailbox.Run(ctx)
	c.abortTurn()
	if c.active {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
		c.active = false
	}
	c.publish()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start begins a new session at the first lexicon entry. A running session
// is abandoned. It returns [ErrRecognitionUnavailable] if no recognizer is
// configured; the display is told once.
func (c *Controller) Start() error {
	if c.recognizer == nil {
		c.post(c.reportUnavailable)
		return ErrRecognitionUnavailable
	}
	c.post(c.start)
	return nil
}

// Restart is the same as [Controller.Start].
func (c *Controller) Restart() error {
	return c.Start()
}

// UpdateConfig replaces the timing. It takes effect at the next prompt.
func (c *Controller) UpdateConfig(cfg Config) {
	cfg = cfg.withDefaults()
	c.post(func() { c.newCfg = &cfg })
}

// Snapshot returns a copy of the session state. It is safe to call from any
// goroutine.
func (c *Controller) Snapshot() State {
	return *c.snapshot.Load()
}

func (c *Controller) post(f func()) {
	c.mailbox.Post(func() {
		f()
		c.publish()
	})
}

func (c *Controller) publish() {
	s := c.state
	c.snapshot.Store(&s)
}

func (c *Controller) logger() *slog.Logger {
	return slog.With(
		"session_id", c.state.SessionID,
		"turn", c.state.Turn,
		"index", c.state.Index,
	)
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (c *Controller) reportUnavailable() {
	if c.reported {
		return
	}
	c.reported = true
	slog.Warn("drill: no speech recognizer configured")
	c.display.ShowFeedback(Feedback{Kind: FeedbackError, Message: MsgUnavailable})
}

func (c *Controller) start() {
	c.abortTurn()
	c.state = State{
		SessionID: uuid.NewString(),
		Phase:     PhaseIdle,
		Turn:      c.state.Turn,
	}
	if !c.active {
		c.active = true
		c.metrics.ActiveSessions.Add(c.ctx, 1)
	}
	c.logger().Info("drill: session started", "lexicon", c.lex.Name(), "entries", c.lex.Len())
	c.prompt()
}

// prompt shows and speaks the current entry and opens a new turn.
func (c *Controller) prompt() {
	if c.newCfg != nil {
		c.cfg = *c.newCfg
		c.newCfg = nil
		c.countdown.Cancel()
		c.countdown = c.newScheduler()
	}

	entry := c.lex.At(c.state.Index)
	c.state.Turn++
	c.state.Phase = PhasePrompting
	c.state.PendingEvaluation = false
	c.state.TurnStart = time.Time{}
	c.lastInterim = ""

	c.display.ClearFeedback()
	c.display.ShowScore(0, false)
	c.display.ShowTranscript(MsgListening)
	c.display.ShowPrompt(entry.Prompt)

	turn := c.state.Turn
	if c.speaker == nil {
		c.post(func() { c.onPrompted(turn) })
		return
	}
	c.speaker.Speak(c.ctx, entry.Prompt, func() {
		c.post(func() { c.onPrompted(turn) })
	})
}

// onPrompted opens the listening session once the prompt has been spoken.
func (c *Controller) onPrompted(turn uint64) {
	if turn != c.state.Turn || c.state.Phase != PhasePrompting {
		return
	}
	c.state.Phase = PhaseAwaitingResponse
	c.state.PendingEvaluation = true
	c.state.TurnStart = c.clock.Now()

	c.turnCtx, c.turnSpan = observe.StartSpan(c.ctx, "drill.turn",
		trace.WithAttributes(
			attribute.String("drill.session_id", c.state.SessionID),
			attribute.Int("drill.index", c.state.Index),
			attribute.Int64("drill.turn", int64(turn)),
		),
	)

	c.display.ShowCountdown(c.cfg.TimeLimit)
	c.countdown.Arm(c.cfg.TimeLimit,
		func(remaining time.Duration) {
			c.post(func() { c.onTick(turn, remaining) })
		},
		func() {
			c.post(func() { c.onTimeout(turn) })
		},
	)

	// Opening may dial a streaming provider; the mailbox keeps serving
	// ticks and callbacks meanwhile.
	ctx := c.turnCtx
	opts := RecognitionOptions{Language: c.cfg.Language, Interim: true}
	c.spawn(func() {
		rec, err := c.recognizer.Open(ctx, opts, turnHandler{c: c, turn: turn})
		c.post(func() { c.onRecognitionOpened(turn, rec, err) })
	})
}

// onRecognitionOpened adopts the session opened for turn. A session that
// arrives after its turn resolved is stopped straight away.
func (c *Controller) onRecognitionOpened(turn uint64, rec Recognition, err error) {
	if err != nil {
		c.onRecognitionError(turn, fmt.Errorf("drill: open recognition: %w", err))
		return
	}
	if !c.live(turn) {
		if err := rec.Stop(); err != nil {
			c.logger().Debug("drill: stop late recognition", "err", err)
		}
		return
	}
	c.recognition = rec
}

func (c *Controller) onTick(turn uint64, remaining time.Duration) {
	if !c.live(turn) {
		return
	}
	c.display.ShowCountdown(remaining)
}

func (c *Controller) onTranscript(turn uint64, text string, final bool) {
	if !c.live(turn) {
		return
	}
	text = strings.TrimSpace(text)
	c.lastInterim = text
	c.display.ShowTranscript(text)
	if final {
		c.resolve(text)
	}
}

func (c *Controller) onRecognitionError(turn uint64, err error) {
	if !c.live(turn) {
		return
	}
	c.logger().Warn("drill: recognition failed", "err", err)
	if c.turnSpan != nil {
		c.turnSpan.RecordError(err)
	}
	c.resolve("")
}

func (c *Controller) onRecognitionEnded(turn uint64) {
	if !c.live(turn) {
		return
	}
	c.resolve(c.lastInterim)
}

func (c *Controller) onTimeout(turn uint64) {
	if !c.live(turn) {
		return
	}
	c.state.PendingEvaluation = false
	c.countdown.Cancel()
	c.stopRecognition()

	c.display.ShowFeedback(Feedback{Kind: FeedbackWarning, Outcome: OutcomeTimeout, Message: MsgTimeUp})
	c.display.ShowTranscript(MsgNoResponse)
	c.finishTurn(OutcomeTimeout, 0)
	c.retry()
}

// live reports whether an event for turn may still resolve it.
func (c *Controller) live(turn uint64) bool {
	return turn == c.state.Turn && c.state.PendingEvaluation
}

// resolve closes the turn and grades text. It is the single path from
// AwaitingResponse to Evaluating.
func (c *Controller) resolve(text string) {
	c.state.PendingEvaluation = false
	c.countdown.Cancel()
	c.stopRecognition()
	c.state.Phase = PhaseEvaluating
	c.evaluate(text)
}

func (c *Controller) evaluate(text string) {
	entry := c.lex.At(c.state.Index)
	limit := c.cfg.TimeLimit

	if strings.TrimSpace(text) == "" {
		c.display.ShowFeedback(Feedback{Kind: FeedbackWarning, Outcome: OutcomeEmpty, Message: MsgSpeakUp})
		c.display.ShowTranscript(MsgNoResponse)
		c.finishTurn(OutcomeEmpty, 0)
		c.retry()
		return
	}

	elapsed := limit + time.Second
	if !c.state.TurnStart.IsZero() {
		elapsed = c.clock.Now().Sub(c.state.TurnStart)
	}

	res := scoring.Score(entry.Answer, text, elapsed, limit)
	c.metrics.RecordScore(c.turnContext(), res.Total)
	c.display.ShowScore(res.Rounded(), true)

	if res.Correct {
		pace := MsgGoodPace
		if elapsed > limit {
			pace = MsgTooSlow
		}
		c.display.ShowFeedback(Feedback{
			Kind:    FeedbackSuccess,
			Outcome: OutcomeCorrect,
			Message: "Correct! " + pace,
		})
		c.finishTurn(OutcomeCorrect, elapsed, slog.Float64("score", res.Total))
		c.advance()
		return
	}

	c.display.ShowFeedback(Feedback{
		Kind:    FeedbackError,
		Outcome: OutcomeMismatch,
		Message: `Not quite. Say: "` + entry.Answer + `"`,
		Hints:   c.hinter.Hints(entry.Answer, text),
	})
	c.finishTurn(OutcomeMismatch, elapsed, slog.Float64("score", res.Total), slog.String("heard", text))
	c.retry()
}

func (c *Controller) turnContext() context.Context {
	if c.turnCtx != nil {
		return c.turnCtx
	}
	return c.ctx
}

// finishTurn logs, records and closes the span of a resolved turn.
func (c *Controller) finishTurn(outcome Outcome, elapsed time.Duration, attrs ...any) {
	c.metrics.RecordTurn(c.turnContext(), outcome.String(), elapsed)
	args := append([]any{"outcome", outcome.String(), "elapsed", elapsed}, attrs...)
	c.logger().Info("drill: turn resolved", args...)
	c.endSpan(outcome)
}

func (c *Controller) endSpan(outcome Outcome) {
	if c.turnSpan == nil {
		return
	}
	c.turnSpan.SetAttributes(attribute.String("drill.outcome", outcome.String()))
	c.turnSpan.End()
	c.turnSpan = nil
	c.turnCtx = nil
}

func (c *Controller) advance() {
	c.state.Phase = PhaseAdvancing
	c.state.Index++
	c.schedule(c.cfg.AdvanceDelay, func() {
		if c.state.Index >= c.lex.Len() {
			c.complete()
			return
		}
		c.prompt()
	})
}

func (c *Controller) retry() {
	c.state.Phase = PhaseRetrying
	c.schedule(c.cfg.RetryDelay, c.prompt)
}

// schedule runs f on the mailbox after d unless a newer turn began.
func (c *Controller) schedule(d time.Duration, f func()) {
	turn := c.state.Turn
	c.next = c.clock.AfterFunc(d, func() {
		c.post(func() {
			if turn != c.state.Turn {
				return
			}
			c.next = nil
			f()
		})
	})
}

func (c *Controller) complete() {
	c.state.Phase = PhaseCompleted
	c.state.TurnStart = time.Time{}

	c.display.ShowPrompt(MsgComplete)
	c.display.ShowTranscript(MsgCompleteNote)
	c.display.ShowFeedback(Feedback{Kind: FeedbackSuccess, Message: MsgCompleteCheer})
	c.display.ShowScore(0, false)
	c.display.ShowComplete()

	if c.active {
		c.active = false
		c.metrics.ActiveSessions.Add(c.ctx, -1)
	}
	c.logger().Info("drill: session completed")
}

// abortTurn drops the current turn without resolving it.
func (c *Controller) abortTurn() {
	c.state.PendingEvaluation = false
	c.countdown.Cancel()
	c.stopRecognition()
	if c.next != nil {
		c.next.Stop()
		c.next = nil
	}
	c.endSpan(OutcomeNone)
}

func (c *Controller) stopRecognition() {
	if c.recognition == nil {
		return
	}
	if err := c.recognition.Stop(); err != nil {
		c.logger().Debug("drill: stop recognition", "err", err)
	}
	c.recognition = nil
}

// turnHandler forwards recognizer events of one turn to the mailbox.
type turnHandler struct {
	c    *Controller
	turn uint64
}

func (h turnHandler) OnTranscript(text string, final bool) {
	h.c.post(func() { h.c.onTranscript(h.turn, text, final) })
}

func (h turnHandler) OnError(err error) {
	h.c.post(func() { h.c.onRecognitionError(h.turn, err) })
}

func (h turnHandler) OnEnd() {
	h.c.post(func() { h.c.onRecognitionEnded(h.turn) })
}
