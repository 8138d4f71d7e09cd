package app_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/speakdrill/internal/app"
	"github.com/MrWong99/speakdrill/internal/config"
	"github.com/MrWong99/speakdrill/internal/drill"
	drillmock "github.com/MrWong99/speakdrill/internal/drill/mock"
	"github.com/MrWong99/speakdrill/internal/lexicon"
	"github.com/MrWong99/speakdrill/internal/resilience"
	"github.com/MrWong99/speakdrill/pkg/audio"
	audiomock "github.com/MrWong99/speakdrill/pkg/audio/mock"
	"github.com/MrWong99/speakdrill/pkg/provider/stt"
	"github.com/MrWong99/speakdrill/pkg/provider/stt/batch"
	sttmock "github.com/MrWong99/speakdrill/pkg/provider/stt/mock"
	"github.com/MrWong99/speakdrill/pkg/provider/tts"
	ttsmock "github.com/MrWong99/speakdrill/pkg/provider/tts/mock"
)

// testConfig returns the default config with short drill pauses.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Drill.AdvanceDelay = 10 * time.Millisecond
	cfg.Drill.RetryDelay = 10 * time.Millisecond
	return cfg
}

func oneEntry(t *testing.T) *lexicon.Lexicon {
	t.Helper()
	lex, err := lexicon.New("test", []lexicon.Entry{{Prompt: "What is your name?", Answer: "My name is André."}})
	if err != nil {
		t.Fatal(err)
	}
	return lex
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestApp_SpokenAnswerCompletesLesson(t *testing.T) {
	t.Parallel()

	sttProv := &sttmock.Provider{}
	ttsProv := &ttsmock.Provider{SynthesizeChunks: [][]byte{make([]byte, 640)}}
	sink := &audiomock.Sink{}
	disp := &drillmock.Display{}

	a, err := app.New(t.Context(), testConfig(), &app.Providers{STT: sttProv, TTS: ttsProv},
		app.WithLexicon(oneEntry(t)),
		app.WithDisplay(disp),
		app.WithAudioSource(audiomock.NewSource(8)),
		app.WithAudioSink(sink),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, "listening session", func() bool { return sttProv.LastSession() != nil })
	sttProv.LastSession().Final("my name is andre")
	waitFor(t, "lesson completion", func() bool { return disp.CompleteCount() == 1 })

	if got := ttsProv.Texts(); len(got) == 0 || got[0] != "What is your name?" {
		t.Errorf("spoken = %q, want the prompt", got)
	}
	if len(sink.Frames()) == 0 {
		t.Error("no audio reached the sink")
	}
	if st := a.Status(); st.Phase != drill.PhaseCompleted.String() || st.Index != 1 {
		t.Errorf("status = %+v, want completed at index 1", st)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if err := a.Shutdown(t.Context()); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
}

// batchProvider opens batch sessions over a fixed transcriber, the way the
// whisper and OpenAI providers do.
type batchProvider struct {
	transcriber batch.Transcriber
}

func (p batchProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return batch.Start(ctx, batch.Config{
		Name:      "failing",
		Stream:    cfg,
		Segmenter: audio.SegmenterConfig{Silence: 50 * time.Millisecond},
	}, p.transcriber), nil
}

// utterance is 100ms of a loud tone followed by 100ms of silence at 16 kHz mono.
func utterance() []audio.AudioFrame {
	tone := make([]byte, 1600*2)
	for i := range 1600 {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(tone[i*2:], uint16(v))
	}
	return []audio.AudioFrame{
		{Data: tone, SampleRate: 16000, Channels: 1},
		{Data: make([]byte, 1600*2), SampleRate: 16000, Channels: 1},
	}
}

func TestApp_TranscriptionFailureIsEmptyResponse(t *testing.T) {
	t.Parallel()

	failing := batch.TranscriberFunc(func(context.Context, []byte, audio.Format, string) (string, error) {
		return "", errors.New("HTTP 500")
	})
	src := audiomock.NewSource(64)
	disp := &drillmock.Display{}

	a, err := app.New(t.Context(), testConfig(), &app.Providers{STT: batchProvider{failing}, TTS: &ttsmock.Provider{SynthesizeChunks: [][]byte{make([]byte, 640)}}},
		app.WithLexicon(oneEntry(t)),
		app.WithDisplay(disp),
		app.WithAudioSource(src),
		app.WithAudioSink(&audiomock.Sink{}),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = a.Run(ctx) }()

	// Frames between turns are dropped, so keep speaking until the turn resolves.
	deadline := time.Now().Add(4 * time.Second)
	for len(disp.Feedback()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("turn did not resolve before the countdown")
		}
		for _, f := range utterance() {
			select {
			case src.C <- f:
			default:
			}
		}
		time.Sleep(20 * time.Millisecond)
	}

	fb := disp.Feedback()[0]
	if fb.Outcome != drill.OutcomeEmpty || fb.Kind != drill.FeedbackWarning || fb.Message != drill.MsgSpeakUp {
		t.Errorf("feedback = %+v, want the speak-up warning", fb)
	}
	if st := a.Status(); st.Index != 0 {
		t.Errorf("index = %d after a failed transcription, want 0", st.Index)
	}
}

func TestApp_NoRecognizerInPlainMode(t *testing.T) {
	t.Parallel()

	out, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	cfg := testConfig()
	cfg.UI.Mode = config.UIPlain
	a, err := app.New(t.Context(), cfg, nil, app.WithTerminal(out, out))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if a.UsesTerminal() {
		t.Error("plain mode reports owning the terminal")
	}

	err = a.Run(t.Context())
	if !errors.Is(err, drill.ErrRecognitionUnavailable) {
		t.Fatalf("Run() = %v, want ErrRecognitionUnavailable", err)
	}
}

func TestApp_Readiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		providers *app.Providers
		wantErr   bool
	}{
		{name: "nothing configured", providers: &app.Providers{}, wantErr: true},
		{name: "stt only", providers: &app.Providers{STT: &sttmock.Provider{}}, wantErr: true},
		{name: "both configured", providers: &app.Providers{STT: &sttmock.Provider{}, TTS: &ttsmock.Provider{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, err := app.New(t.Context(), testConfig(), tt.providers,
				app.WithDisplay(&drillmock.Display{}),
				app.WithAudioSource(audiomock.NewSource(1)),
			)
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			checks, err := a.Health().Check(t.Context())
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() err = %v, wantErr %v (checks %v)", err, tt.wantErr, checks)
			}
			if checks["lexicon"] != "ok" {
				t.Errorf("lexicon check = %q, want ok", checks["lexicon"])
			}
		})
	}
}

func TestApp_StatusHandler(t *testing.T) {
	t.Parallel()
	a, err := app.New(t.Context(), testConfig(), nil, app.WithDisplay(&drillmock.Display{}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	rec := httptest.NewRecorder()
	a.StatusHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	var st app.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	builtin := lexicon.Builtin()
	if st.Lexicon != builtin.Name() || st.Entries != builtin.Len() {
		t.Errorf("status = %+v, want the builtin lexicon", st)
	}
	if st.Phase != drill.PhaseIdle.String() {
		t.Errorf("phase = %q, want idle", st.Phase)
	}
}

func TestApp_OnConfigChange(t *testing.T) {
	t.Parallel()
	a, err := app.New(t.Context(), testConfig(), nil, app.WithDisplay(&drillmock.Display{}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var level slog.LevelVar
	newDrill := testConfig().Drill
	newDrill.TimeLimit = 8 * time.Second
	a.OnConfigChange(&level)(nil, nil, config.ConfigDiff{
		LogLevelChanged: true,
		NewLogLevel:     config.LogDebug,
		DrillChanged:    true,
		NewDrill:        newDrill,
	})
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLexiconSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "drill.yaml")
	data := "name: mine\nentries:\n  - prompt: Hi?\n    answer: Hello.\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		cfg      config.LexiconConfig
		wantName string
		wantErr  bool
	}{
		{name: "builtin", cfg: config.LexiconConfig{Source: config.LexiconBuiltin}, wantName: lexicon.Builtin().Name()},
		{name: "file", cfg: config.LexiconConfig{Source: config.LexiconFile, Path: path}, wantName: "mine"},
		{name: "unknown", cfg: config.LexiconConfig{Source: "ftp"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src, err := app.LexiconSource(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("LexiconSource() error: %v", err)
			}
			lex, err := src.Load(t.Context())
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if lex.Name() != tt.wantName {
				t.Errorf("name = %q, want %q", lex.Name(), tt.wantName)
			}
		})
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	reg.RegisterSTT("broken", func(config.ProviderEntry) (stt.Provider, error) { return nil, errors.New("no model") })
	reg.RegisterTTS("elevenlabs", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })

	cfg := testConfig()
	cfg.Providers.STT = config.ProviderEntry{Name: "deepgram"}
	cfg.Providers.TTS = config.ProviderEntry{Name: "elevenlabs"}
	cfg.Fallbacks.STT = []config.ProviderEntry{{Name: "broken"}, {Name: "deepgram"}}

	ps, err := app.BuildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("BuildProviders() error: %v", err)
	}
	fb, ok := ps.STT.(*resilience.STTFallback)
	if !ok {
		t.Fatalf("STT = %T, want *resilience.STTFallback", ps.STT)
	}
	if got := len(fb.States()); got != 2 {
		t.Errorf("stt backends = %d, want 2 (broken fallback skipped)", got)
	}
	if _, ok := ps.TTS.(*resilience.TTSFallback); !ok {
		t.Errorf("TTS = %T, want *resilience.TTSFallback", ps.TTS)
	}
	if err := ps.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestBuildProviders_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		stt  string
		tts  string
	}{
		{name: "unregistered stt", stt: "vosk"},
		{name: "unregistered tts", tts: "coqui"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			cfg.Providers.STT.Name = tt.stt
			cfg.Providers.TTS.Name = tt.tts
			_, err := app.BuildProviders(cfg, config.NewRegistry())
			if !errors.Is(err, config.ErrProviderNotRegistered) {
				t.Errorf("err = %v, want ErrProviderNotRegistered", err)
			}
		})
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)

	for kind, names := range config.ValidProviderNames {
		registered := reg.STTNames()
		if kind == "tts" {
			registered = reg.TTSNames()
		}
		for _, name := range names {
			found := false
			for _, r := range registered {
				found = found || r == name
			}
			if !found {
				t.Errorf("%s provider %q not registered", kind, name)
			}
		}
	}
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()
	a, err := app.New(t.Context(), testConfig(), nil, app.WithDisplay(&drillmock.Display{}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	for range 2 {
		if err := a.Shutdown(t.Context()); err != nil {
			t.Fatalf("Shutdown() error: %v", err)
		}
	}
}
