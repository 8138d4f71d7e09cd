package speech_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/speakdrill/internal/drill"
	"github.com/MrWong99/speakdrill/internal/observe"
	"github.com/MrWong99/speakdrill/internal/speech"
	"github.com/MrWong99/speakdrill/pkg/audio"
	audiomock "github.com/MrWong99/speakdrill/pkg/audio/mock"
	sttmock "github.com/MrWong99/speakdrill/pkg/provider/stt/mock"
	"github.com/MrWong99/speakdrill/pkg/provider/tts"
	ttsmock "github.com/MrWong99/speakdrill/pkg/provider/tts/mock"
)

const waitTimeout = 2 * time.Second

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

type event struct {
	kind  string // "transcript", "error", "end"
	text  string
	final bool
	err   error
}

// recorder is a drill.RecognitionHandler that forwards events to a channel.
type recorder struct {
	events chan event
}

func newRecorder() *recorder { return &recorder{events: make(chan event, 32)} }

func (r *recorder) OnTranscript(text string, final bool) {
	r.events <- event{kind: "transcript", text: text, final: final}
}
func (r *recorder) OnError(err error) { r.events <- event{kind: "error", err: err} }
func (r *recorder) OnEnd()            { r.events <- event{kind: "end"} }

func (r *recorder) next(t *testing.T) event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for recognition event")
		return event{}
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

var listenOpts = drill.RecognitionOptions{Language: "en-US", Interim: true}

// ─── Recognizer ──────────────────────────────────────────────────────────────

func TestRecognizer_InterimThenFinal(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	src := audiomock.NewSource(8)
	r := speech.NewRecognizer(p, src, speech.WithRecognizerMetrics(testMetrics(t)))
	h := newRecorder()

	if _, err := r.Open(t.Context(), listenOpts, h); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := p.StartStreamCalls[0].Cfg; got.Language != "en-US" || !got.Interim || got.SampleRate != 16000 || got.Channels != 1 {
		t.Fatalf("StreamConfig = %+v", got)
	}

	sess := p.LastSession()
	sess.Partial("my name")
	if ev := h.next(t); ev.kind != "transcript" || ev.final || ev.text != "my name" {
		t.Fatalf("first event = %+v, want interim", ev)
	}
	sess.Final("my name is andre")
	if ev := h.next(t); ev.kind != "transcript" || !ev.final || ev.text != "my name is andre" {
		t.Fatalf("second event = %+v, want final", ev)
	}
	if ev := h.next(t); ev.kind != "end" {
		t.Fatalf("third event = %+v, want end", ev)
	}
	h.none(t)
	waitFor(t, func() bool { return sess.CloseCount() == 1 })
}

func TestRecognizer_InterimSuppressed(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	r := speech.NewRecognizer(p, audiomock.NewSource(1), speech.WithRecognizerMetrics(testMetrics(t)))
	h := newRecorder()

	if _, err := r.Open(t.Context(), drill.RecognitionOptions{Language: "en-US"}, h); err != nil {
		t.Fatalf("Open: %v", err)
	}
	sess := p.LastSession()
	sess.Partial("ignored")
	sess.Final("kept")

	if ev := h.next(t); ev.text != "kept" || !ev.final {
		t.Fatalf("event = %+v, want final only", ev)
	}
}

func TestRecognizer_StopEndsOnce(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	r := speech.NewRecognizer(p, audiomock.NewSource(1), speech.WithRecognizerMetrics(testMetrics(t)))
	h := newRecorder()

	rec, err := r.Open(t.Context(), listenOpts, h)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = rec.Stop()
	_ = rec.Stop()

	if ev := h.next(t); ev.kind != "end" {
		t.Fatalf("event = %+v, want end", ev)
	}
	h.none(t)
}

func TestRecognizer_ContextCancelEnds(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	r := speech.NewRecognizer(p, audiomock.NewSource(1), speech.WithRecognizerMetrics(testMetrics(t)))
	h := newRecorder()

	ctx, cancel := context.WithCancel(t.Context())
	if _, err := r.Open(ctx, listenOpts, h); err != nil {
		t.Fatalf("Open: %v", err)
	}
	cancel()
	if ev := h.next(t); ev.kind != "end" {
		t.Fatalf("event = %+v, want end", ev)
	}
}

func TestRecognizer_OpenFailure(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{StartStreamErr: errors.New("dial refused")}
	r := speech.NewRecognizer(p, audiomock.NewSource(1), speech.WithRecognizerMetrics(testMetrics(t)))

	if _, err := r.Open(t.Context(), listenOpts, newRecorder()); err == nil {
		t.Fatal("Open succeeded, want error")
	}
}

func TestRecognizer_ForwardsAudioToActiveSessionOnly(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	src := audiomock.NewSource(8)
	r := speech.NewRecognizer(p, src, speech.WithRecognizerMetrics(testMetrics(t)))

	h1 := newRecorder()
	rec, err := r.Open(t.Context(), listenOpts, h1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	first := p.LastSession()

	// 48 kHz stereo capture is converted before it reaches the provider.
	src.C <- audio.AudioFrame{Data: make([]byte, 48000*2*2/50), SampleRate: 48000, Channels: 2}
	waitFor(t, func() bool { return first.AudioChunks() == 1 })

	_ = rec.Stop()
	if ev := h1.next(t); ev.kind != "end" {
		t.Fatalf("event = %+v, want end", ev)
	}

	// Nobody listens: the frame never reaches the stopped session.
	src.C <- audio.AudioFrame{Data: make([]byte, 640), SampleRate: 16000, Channels: 1}

	h2 := newRecorder()
	if _, err := r.Open(t.Context(), listenOpts, h2); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	second := p.LastSession()
	src.C <- audio.AudioFrame{Data: make([]byte, 640), SampleRate: 16000, Channels: 1}
	waitFor(t, func() bool { return second.AudioChunks() >= 1 })

	if got := first.AudioChunks(); got != 1 {
		t.Errorf("first session chunks = %d, want 1", got)
	}
}

func TestRecognizer_OpenStopsPreviousSession(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	r := speech.NewRecognizer(p, audiomock.NewSource(1), speech.WithRecognizerMetrics(testMetrics(t)))

	h1 := newRecorder()
	if _, err := r.Open(t.Context(), listenOpts, h1); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.Open(t.Context(), listenOpts, newRecorder()); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if ev := h1.next(t); ev.kind != "end" {
		t.Fatalf("first session event = %+v, want end", ev)
	}
}

func TestRecognizer_SourceClosed(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	src := audiomock.NewSource(1)
	r := speech.NewRecognizer(p, src, speech.WithRecognizerMetrics(testMetrics(t)))
	h := newRecorder()

	if _, err := r.Open(t.Context(), listenOpts, h); err != nil {
		t.Fatalf("Open: %v", err)
	}
	src.Close()

	ev := h.next(t)
	if ev.kind != "error" || !errors.Is(ev.err, speech.ErrSourceClosed) {
		t.Fatalf("event = %+v, want ErrSourceClosed", ev)
	}
	if ev := h.next(t); ev.kind != "end" {
		t.Fatalf("event = %+v, want end", ev)
	}

	waitFor(t, func() bool {
		_, err := r.Open(t.Context(), listenOpts, newRecorder())
		return errors.Is(err, speech.ErrSourceClosed)
	})
}

func TestRecognizer_ProviderClosesStream(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	r := speech.NewRecognizer(p, audiomock.NewSource(1), speech.WithRecognizerMetrics(testMetrics(t)))
	h := newRecorder()

	if _, err := r.Open(t.Context(), listenOpts, h); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = p.LastSession().Close()

	if ev := h.next(t); ev.kind != "end" {
		t.Fatalf("event = %+v, want end", ev)
	}
}

func TestRecognizer_ProviderFailureReportsError(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	r := speech.NewRecognizer(p, audiomock.NewSource(1), speech.WithRecognizerMetrics(testMetrics(t)))
	h := newRecorder()

	if _, err := r.Open(t.Context(), listenOpts, h); err != nil {
		t.Fatalf("Open: %v", err)
	}
	errBackend := errors.New("transcribe: HTTP 500")
	p.LastSession().Fail(errBackend)

	ev := h.next(t)
	if ev.kind != "error" || !errors.Is(ev.err, errBackend) {
		t.Fatalf("event = %+v, want backend error", ev)
	}
	if ev := h.next(t); ev.kind != "end" {
		t.Fatalf("event = %+v, want end", ev)
	}
	h.none(t)
}

// ─── TextRecognizer ──────────────────────────────────────────────────────────

func TestTextRecognizer_SubmitDeliversFinalThenEnd(t *testing.T) {
	t.Parallel()

	r := speech.NewTextRecognizer()
	if r.Submit("nobody listens") {
		t.Fatal("Submit with no session returned true")
	}

	h := newRecorder()
	if _, err := r.Open(t.Context(), listenOpts, h); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !r.Listening() {
		t.Fatal("Listening() = false after Open")
	}

	r.Type("my na")
	if !r.Submit("  my name is andre ") {
		t.Fatal("Submit returned false")
	}

	want := []event{
		{kind: "transcript", text: "my na"},
		{kind: "transcript", text: "my name is andre", final: true},
		{kind: "end"},
	}
	for i, w := range want {
		if got := h.next(t); got != w {
			t.Fatalf("event %d = %+v, want %+v", i, got, w)
		}
	}
	if r.Listening() {
		t.Error("Listening() = true after final")
	}
	if r.Submit("again") {
		t.Error("second Submit returned true")
	}
	h.none(t)
}

func TestTextRecognizer_StopAndCancel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		end  func(rec drill.Recognition, cancel context.CancelFunc)
	}{
		{name: "stop", end: func(rec drill.Recognition, _ context.CancelFunc) { _ = rec.Stop() }},
		{name: "cancel", end: func(_ drill.Recognition, cancel context.CancelFunc) { cancel() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := speech.NewTextRecognizer()
			h := newRecorder()
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			rec, err := r.Open(ctx, listenOpts, h)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			tt.end(rec, cancel)
			_ = rec.Stop()

			if ev := h.next(t); ev.kind != "end" {
				t.Fatalf("event = %+v, want end", ev)
			}
			h.none(t)
			if r.Submit("late") {
				t.Error("Submit after end returned true")
			}
		})
	}
}

func TestTextRecognizer_OpenEndsPrevious(t *testing.T) {
	t.Parallel()

	r := speech.NewTextRecognizer()
	h1, h2 := newRecorder(), newRecorder()
	if _, err := r.Open(t.Context(), listenOpts, h1); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.Open(t.Context(), listenOpts, h2); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ev := h1.next(t); ev.kind != "end" {
		t.Fatalf("first session event = %+v, want end", ev)
	}
	r.Submit("hello")
	if ev := h2.next(t); ev.text != "hello" || !ev.final {
		t.Fatalf("second session event = %+v, want final", ev)
	}
	h1.none(t)
}

// ─── Speaker ─────────────────────────────────────────────────────────────────

func doneSignal() (func(), <-chan struct{}) {
	ch := make(chan struct{})
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }, ch
}

func TestSpeaker_PlaysAndCallsDone(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{bytes.Repeat([]byte{1}, 640), bytes.Repeat([]byte{2}, 320)},
		Format:           audio.Format{SampleRate: 24000, Channels: 1},
	}
	sink := &audiomock.Sink{}
	voice := tts.VoiceProfile{ID: "alloy", SpeedFactor: tts.DefaultSpeedFactor}
	s := speech.NewSpeaker(p, sink, voice, speech.WithSpeakerMetrics(testMetrics(t)))

	done, ch := doneSignal()
	s.Speak(t.Context(), "What is your name?", done)

	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatal("done was not called")
	}

	frames := sink.Frames()
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if frames[0].SampleRate != 24000 || frames[0].Channels != 1 {
		t.Errorf("frame format = %d/%d, want 24000/1", frames[0].SampleRate, frames[0].Channels)
	}
	if want := 640 * time.Second / 48000; frames[1].Timestamp != want {
		t.Errorf("second frame timestamp = %v, want %v", frames[1].Timestamp, want)
	}
	if got := p.Texts(); len(got) != 1 || got[0] != "What is your name?" {
		t.Errorf("texts = %q", got)
	}
	if got := p.SynthesizeStreamCalls[0].Voice.ID; got != "alloy" {
		t.Errorf("voice = %q, want alloy", got)
	}
}

func TestSpeaker_SynthesisErrorStillCallsDone(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{SynthesizeErr: errors.New("quota exceeded")}
	s := speech.NewSpeaker(p, &audiomock.Sink{}, tts.VoiceProfile{}, speech.WithSpeakerMetrics(testMetrics(t)))

	done, ch := doneSignal()
	s.Speak(t.Context(), "hello", done)
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatal("done was not called after a synthesis error")
	}
}

func TestSpeaker_NewSpeakSupersedes(t *testing.T) {
	t.Parallel()

	hold := make(chan struct{})
	p := &ttsmock.Provider{SynthesizeChunks: [][]byte{make([]byte, 320)}, Hold: hold}
	sink := &audiomock.Sink{}
	s := speech.NewSpeaker(p, sink, tts.VoiceProfile{}, speech.WithSpeakerMetrics(testMetrics(t)))

	var firstCalled bool
	var mu sync.Mutex
	s.Speak(t.Context(), "first", func() {
		mu.Lock()
		firstCalled = true
		mu.Unlock()
	})
	waitFor(t, func() bool { return p.CallCount() == 1 })

	done, ch := doneSignal()
	s.Speak(t.Context(), "second", done)
	close(hold)

	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatal("second done was not called")
	}
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if firstCalled {
		t.Error("done of the superseded utterance was called")
	}
}

func TestSpeaker_CancelledContextSkipsDone(t *testing.T) {
	t.Parallel()

	hold := make(chan struct{})
	p := &ttsmock.Provider{SynthesizeChunks: [][]byte{make([]byte, 320)}, Hold: hold}
	s := speech.NewSpeaker(p, &audiomock.Sink{}, tts.VoiceProfile{}, speech.WithSpeakerMetrics(testMetrics(t)))

	ctx, cancel := context.WithCancel(t.Context())
	called := make(chan struct{}, 1)
	s.Speak(ctx, "hello", func() { called <- struct{}{} })
	waitFor(t, func() bool { return p.CallCount() == 1 })
	cancel()
	s.Stop()

	select {
	case <-called:
		t.Fatal("done was called after cancellation")
	default:
	}
}

func TestSpeaker_SinkErrorCallsDone(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{SynthesizeChunks: [][]byte{make([]byte, 320), make([]byte, 320)}}
	sink := &audiomock.Sink{Err: errors.New("device busy")}
	s := speech.NewSpeaker(p, sink, tts.VoiceProfile{}, speech.WithSpeakerMetrics(testMetrics(t)))

	done, ch := doneSignal()
	s.Speak(t.Context(), "hello", done)
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatal("done was not called after a sink error")
	}
	if got := len(sink.Frames()); got != 1 {
		t.Errorf("frames = %d, want 1", got)
	}
}
