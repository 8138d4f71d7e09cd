// Package app wires the speakdrill subsystems into a running drill.
//
// The App struct owns the full lifecycle: New loads the lexicon, opens the
// audio streams and builds the recognizer, speaker, display and drill
// controller; Run drives them until the learner quits or the context ends;
// Shutdown releases everything in order.
//
// For testing, inject doubles via functional options (WithLexicon,
// WithDisplay, WithAudioSource, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speakdrill/internal/clock"
	"github.com/MrWong99/speakdrill/internal/config"
	"github.com/MrWong99/speakdrill/internal/display"
	"github.com/MrWong99/speakdrill/internal/drill"
	"github.com/MrWong99/speakdrill/internal/health"
	"github.com/MrWong99/speakdrill/internal/lexicon"
	"github.com/MrWong99/speakdrill/internal/observe"
	"github.com/MrWong99/speakdrill/internal/speech"
	"github.com/MrWong99/speakdrill/pkg/audio"
	"github.com/MrWong99/speakdrill/pkg/provider/tts"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	lex     *lexicon.Lexicon
	metrics *observe.Metrics
	clock   clock.Clock

	// Audio I/O. capture is set when New opened the input itself.
	source  audio.Source
	capture *audio.ReaderSource
	sink    audio.Sink

	// Terminal used for the display and plain-mode restarts.
	stdin  *os.File
	stdout *os.File

	display    drill.Display
	tui        *display.TUI
	text       *speech.TextRecognizer
	speaker    *speech.Speaker
	controller *drill.Controller
	health     *health.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLexicon uses l instead of loading the configured lexicon source.
func WithLexicon(l *lexicon.Lexicon) Option {
	return func(a *App) { a.lex = l }
}

// WithDisplay injects a display. The app then starts the drill itself and
// does not read the terminal.
func WithDisplay(d drill.Display) Option {
	return func(a *App) { a.display = d }
}

// WithAudioSource injects captured audio instead of opening audio.input.
func WithAudioSource(src audio.Source) Option {
	return func(a *App) { a.source = src }
}

// WithAudioSink injects the playback sink instead of opening audio.output.
func WithAudioSink(sink audio.Sink) Option {
	return func(a *App) { a.sink = sink }
}

// WithMetrics overrides the metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithClock overrides the drill clock.
func WithClock(clk clock.Clock) Option {
	return func(a *App) { a.clock = clk }
}

// WithTerminal overrides the terminal files (default os.Stdin, os.Stdout).
func WithTerminal(in, out *os.File) Option {
	return func(a *App) {
		a.stdin = in
		a.stdout = out
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from [BuildProviders]; a nil STT provider means typed answers in the TUI,
// or no recognition at all otherwise.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.clock == nil {
		a.clock = clock.Real{}
	}

	// ── 1. Lexicon ───────────────────────────────────────────────────────
	if err := a.initLexicon(ctx); err != nil {
		return nil, fmt.Errorf("app: init lexicon: %w", err)
	}

	// ── 2. Audio streams ─────────────────────────────────────────────────
	if err := a.initAudio(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 3. Display, speech and controller ────────────────────────────────
	a.initDrill()

	// ── 4. Readiness ─────────────────────────────────────────────────────
	a.health = health.New(
		health.Checker{Name: "lexicon", Check: func(context.Context) error {
			if a.lex.Len() == 0 {
				return lexicon.ErrEmpty
			}
			return nil
		}},
		providerChecker("stt", providers.STT != nil, func() bool { return healthy(providers.STT) }),
		providerChecker("tts", providers.TTS != nil, func() bool { return healthy(providers.TTS) }),
	)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initLexicon(ctx context.Context) error {
	if a.lex != nil {
		return nil
	}
	src, err := LexiconSource(a.cfg.Lexicon)
	if err != nil {
		return err
	}
	lex, err := src.Load(ctx)
	if err != nil {
		return err
	}
	a.lex = lex
	slog.Info("lexicon loaded", "name", lex.Name(), "entries", lex.Len(), "source", a.cfg.Lexicon.Source)
	return nil
}

// LexiconSource returns the source selected by cfg.
func LexiconSource(cfg config.LexiconConfig) (lexicon.Source, error) {
	switch cfg.Source {
	case config.LexiconBuiltin, "":
		return lexicon.Static{Lexicon: lexicon.Builtin()}, nil
	case config.LexiconFile:
		return lexicon.FileSource{Path: cfg.Path}, nil
	case config.LexiconSQLite:
		return lexicon.SQLiteSource(cfg.Path, cfg.Name), nil
	case config.LexiconPostgres:
		return lexicon.PostgresSource(cfg.DSN, cfg.Name), nil
	default:
		return nil, fmt.Errorf("unknown lexicon source %q", cfg.Source)
	}
}

func (a *App) initAudio() error {
	ac := a.cfg.Audio
	if a.source == nil && a.providers.STT != nil && ac.Input != "" {
		in, err := openInput(ac.Input)
		if err != nil {
			return err
		}
		if in != os.Stdin {
			a.closers = append(a.closers, in.Close)
		}
		a.capture = audio.NewReaderSource(in, audio.Format{SampleRate: ac.InputSampleRate, Channels: ac.InputChannels})
		a.source = a.capture
	}

	if a.sink == nil {
		a.sink = audio.Discard
		if a.providers.TTS != nil && ac.Output != "" {
			out, err := os.OpenFile(ac.Output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open audio output %q: %w", ac.Output, err)
			}
			a.closers = append(a.closers, out.Close)
			a.sink = audio.NewWriterSink(out, audio.Format{SampleRate: ac.OutputSampleRate, Channels: ac.OutputChannels})
		}
	}
	return nil
}

func openInput(path string) (*os.File, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio input %q: %w", path, err)
	}
	return f, nil
}

func (a *App) initDrill() {
	mode := config.UIPlain
	if a.display == nil {
		mode = display.Resolve(a.cfg.UI.Mode, a.stdin, a.stdout)
	}

	var recognizer drill.Recognizer
	switch {
	case a.providers.STT != nil && a.source != nil:
		recognizer = speech.NewRecognizer(a.providers.STT, a.source,
			speech.WithRecognizerName(a.cfg.Providers.STT.Name),
			speech.WithRecognizerMetrics(a.metrics),
		)
	case mode == config.UITUI:
		if a.providers.STT != nil {
			slog.Warn("stt provider configured without audio.input; using typed answers")
		}
		a.text = speech.NewTextRecognizer()
		recognizer = a.text
	}

	var speaker drill.Speaker
	if a.providers.TTS != nil {
		a.speaker = speech.NewSpeaker(a.providers.TTS, a.sink, voiceProfile(a.cfg),
			speech.WithSpeakerName(a.cfg.Providers.TTS.Name),
			speech.WithSpeakerMetrics(a.metrics),
		)
		speaker = a.speaker
	}

	if a.display == nil {
		switch mode {
		case config.UITUI:
			var opts []display.TUIOption
			if a.text != nil {
				opts = append(opts, display.WithAnswerInput(a.text))
			}
			a.tui = display.NewTUI(func() error { return a.controller.Start() }, opts...)
			a.display = a.tui
		default:
			a.display = display.NewPlain(a.stdout)
		}
	}

	a.controller = drill.New(a.lex, recognizer, speaker, a.display,
		drill.WithConfig(DrillConfig(a.cfg.Drill)),
		drill.WithClock(a.clock),
		drill.WithMetrics(a.metrics),
	)
}

// DrillConfig converts the drill section of the config.
func DrillConfig(dc config.DrillConfig) drill.Config {
	return drill.Config{
		TimeLimit:    dc.TimeLimit,
		Tick:         dc.Tick,
		AdvanceDelay: dc.AdvanceDelay,
		RetryDelay:   dc.RetryDelay,
		Language:     dc.Language,
	}
}

func voiceProfile(cfg *config.Config) tts.VoiceProfile {
	return tts.VoiceProfile{
		ID:          cfg.Voice.VoiceID,
		Provider:    cfg.Voice.Provider,
		Language:    cfg.Drill.Language,
		PitchShift:  cfg.Voice.PitchShift,
		SpeedFactor: cfg.Voice.SpeedFactor,
	}
}

func providerChecker(name string, configured bool, ok func() bool) health.Checker {
	return health.Checker{Name: name, Check: func(context.Context) error {
		if !configured {
			return fmt.Errorf("%s not configured", name)
		}
		if !ok() {
			return fmt.Errorf("%s: every backend circuit is open", name)
		}
		return nil
	}}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the drill controller.
func (a *App) Controller() *drill.Controller { return a.controller }

// Health returns the readiness handler.
func (a *App) Health() *health.Handler { return a.health }

// UsesTerminal reports whether the display owns the terminal, in which case
// logs must not go to stderr.
func (a *App) UsesTerminal() bool { return a.tui != nil }

// Status is the JSON body served by [App.StatusHandler].
type Status struct {
	SessionID string `json:"session_id,omitempty"`
	Lexicon   string `json:"lexicon"`
	Entries   int    `json:"entries"`
	Index     int    `json:"index"`
	Phase     string `json:"phase"`
	Turn      uint64 `json:"turn"`
}

// Status returns the current drill progress.
func (a *App) Status() Status {
	s := a.controller.Snapshot()
	return Status{
		SessionID: s.SessionID,
		Lexicon:   a.lex.Name(),
		Entries:   a.lex.Len(),
		Index:     s.Index,
		Phase:     s.Phase.String(),
		Turn:      s.Turn,
	}
}

// StatusHandler serves [App.Status] as JSON.
func (a *App) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(a.Status())
	})
}

// OnConfigChange returns a [config.ChangeFunc] that hot-applies drill timing
// and, when level is non-nil, the log level.
func (a *App) OnConfigChange(level *slog.LevelVar) config.ChangeFunc {
	return func(_, _ *config.Config, d config.ConfigDiff) {
		if d.LogLevelChanged && level != nil {
			level.Set(SlogLevel(d.NewLogLevel))
		}
		if d.DrillChanged {
			a.controller.UpdateConfig(DrillConfig(d.NewDrill))
			slog.Info("drill timing updated", "time_limit", d.NewDrill.TimeLimit, "language", d.NewDrill.Language)
		}
	}
}

// SlogLevel converts a config log level.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run drives the drill and blocks until ctx is cancelled or the learner
// quits the TUI. Without a TUI the drill starts immediately; Start errors
// such as [drill.ErrRecognitionUnavailable] are returned.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.controller.Run(gctx) })

	if a.capture != nil {
		// A blocked read only ends when Shutdown closes the input, so
		// capture is not part of the group.
		go func() {
			if err := a.capture.Run(gctx); err != nil {
				slog.Warn("audio capture stopped", "err", err)
			}
		}()
	}

	if a.tui != nil {
		g.Go(func() error {
			defer cancel()
			return a.tui.Run(gctx)
		})
		return g.Wait()
	}

	if err := a.controller.Start(); err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("app: start drill: %w", err)
	}
	if _, plain := a.display.(*display.Plain); plain && a.stdin != nil && a.cfg.Audio.Input != "-" {
		go a.readRestarts(gctx, a.stdin)
	}
	return g.Wait()
}

// readRestarts restarts the drill on every line read from r once the lesson
// is complete. It never blocks shutdown; a pending read is abandoned.
func (a *App) readRestarts(ctx context.Context, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if a.controller.Snapshot().Phase != drill.PhaseCompleted {
			continue
		}
		if err := a.controller.Restart(); err != nil {
			slog.Warn("restart failed", "err", err)
			return
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.speaker != nil {
			a.speaker.Stop()
		}

		closers := append(a.closers, a.providers.Close)
		for i, closer := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil && !errors.Is(err, os.ErrClosed) {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
