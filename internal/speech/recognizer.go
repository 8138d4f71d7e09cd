// Package speech adapts the streaming STT and TTS providers to the drill
// collaborator interfaces.
//
// [Recognizer] feeds microphone frames from an [audio.Source] into one
// [stt.SessionHandle] per listening session and translates its transcript
// channels into [drill.RecognitionHandler] events. [TextRecognizer] does the
// same for typed answers. [Speaker] turns prompts into PCM through a
// [tts.Provider] and plays them on an [audio.Sink].
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/speakdrill/internal/drill"
	"github.com/MrWong99/speakdrill/internal/observe"
	"github.com/MrWong99/speakdrill/pkg/audio"
	"github.com/MrWong99/speakdrill/pkg/provider/stt"
)

// ErrSourceClosed is reported to the active session when the capture source
// stops delivering frames.
var ErrSourceClosed = errors.New("speech: audio source closed")

// DefaultRecognitionFormat is the PCM format sent to STT providers unless
// overridden with [WithRecognitionFormat].
var DefaultRecognitionFormat = audio.Format{SampleRate: 16000, Channels: 1}

// RecognizerOption configures a [Recognizer].
type RecognizerOption func(*Recognizer)

// WithRecognitionFormat sets the PCM format the provider expects.
func WithRecognitionFormat(f audio.Format) RecognizerOption {
	return func(r *Recognizer) { r.format = f }
}

// WithRecognizerName sets the provider name used in metrics and logs.
func WithRecognizerName(name string) RecognizerOption {
	return func(r *Recognizer) { r.name = name }
}

// WithRecognizerMetrics overrides the metrics instruments.
func WithRecognizerMetrics(m *observe.Metrics) RecognizerOption {
	return func(r *Recognizer) { r.metrics = m }
}

// Recognizer implements [drill.Recognizer] on top of an [stt.Provider].
//
// A single pump goroutine reads the capture source for the lifetime of the
// recognizer and forwards frames to whichever session is active. Frames that
// arrive while nobody listens are dropped, so a new session never hears audio
// captured during the previous prompt.
type Recognizer struct {
	provider stt.Provider
	source   audio.Source
	name     string
	format   audio.Format
	metrics  *observe.Metrics

	pumpOnce sync.Once

	mu           sync.Mutex
	active       *session
	sourceClosed bool
}

// NewRecognizer returns a Recognizer that streams frames from src into p.
func NewRecognizer(p stt.Provider, src audio.Source, opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{
		provider: p,
		source:   src,
		name:     "stt",
		format:   DefaultRecognitionFormat,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Open starts a listening session. Any session that is still active is
// stopped first.
func (r *Recognizer) Open(ctx context.Context, opts drill.RecognitionOptions, h drill.RecognitionHandler) (drill.Recognition, error) {
	r.pumpOnce.Do(func() { go r.pump() })

	r.mu.Lock()
	prev := r.active
	closed := r.sourceClosed
	r.mu.Unlock()
	if prev != nil {
		prev.signal()
	}
	if closed {
		return nil, ErrSourceClosed
	}

	sctx, cancel := context.WithCancel(ctx)
	sctx, span := observe.StartSpan(sctx, "stt.session",
		trace.WithAttributes(attribute.String("provider", r.name)))

	handle, err := r.provider.StartStream(sctx, stt.StreamConfig{
		SampleRate: r.format.SampleRate,
		Channels:   r.format.Channels,
		Language:   opts.Language,
		Interim:    opts.Interim,
	})
	if err != nil {
		r.metrics.RecordProviderRequest(ctx, r.name, "stt", "error")
		r.metrics.RecordProviderError(ctx, r.name, "stt")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		cancel()
		return nil, fmt.Errorf("speech: open recognition: %w", err)
	}
	r.metrics.RecordProviderRequest(ctx, r.name, "stt", "ok")

	s := &session{
		r:       r,
		h:       h,
		opts:    opts,
		handle:  handle,
		ctx:     sctx,
		cancel:  cancel,
		span:    span,
		conv:    &audio.FormatConverter{Target: r.format},
		stop:    make(chan struct{}),
		failed:  make(chan error, 1),
		opened:  time.Now(),
		stopped: make(chan struct{}),
	}

	r.mu.Lock()
	r.active = s
	r.mu.Unlock()

	go s.run()
	return s, nil
}

// pump forwards capture frames to the active session until the source
// closes.
func (r *Recognizer) pump() {
	for frame := range r.source.Frames() {
		r.mu.Lock()
		s := r.active
		r.mu.Unlock()
		if s != nil {
			s.feed(frame)
		}
	}

	r.mu.Lock()
	r.sourceClosed = true
	s := r.active
	r.mu.Unlock()
	slog.Warn("speech: capture source closed", "provider", r.name)
	if s != nil {
		s.fail(ErrSourceClosed)
	}
}

func (r *Recognizer) detach(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == s {
		r.active = nil
	}
}

// session is one listening session. All handler calls happen on run's
// goroutine.
type session struct {
	r      *Recognizer
	h      drill.RecognitionHandler
	opts   drill.RecognitionOptions
	handle stt.SessionHandle
	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span
	conv   *audio.FormatConverter
	opened time.Time

	stopOnce sync.Once
	stop     chan struct{}
	failed   chan error

	// stopped is closed once the session has delivered OnEnd.
	stopped chan struct{}
}

// Stop implements [drill.Recognition]. It never blocks.
func (s *session) Stop() error {
	s.signal()
	return nil
}

func (s *session) signal() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *session) fail(err error) {
	select {
	case s.failed <- err:
	default:
	}
}

func (s *session) feed(frame audio.AudioFrame) {
	select {
	case <-s.stop:
		return
	case <-s.stopped:
		return
	default:
	}
	out := s.conv.Convert(frame)
	if len(out.Data) == 0 {
		return
	}
	if err := s.handle.SendAudio(out.Data); err != nil && s.ctx.Err() == nil {
		s.fail(fmt.Errorf("speech: send audio: %w", err))
	}
}

func (s *session) run() {
	defer s.end()

	partials := s.handle.Partials()
	finals := s.handle.Finals()
	for partials != nil || finals != nil {
		select {
		case <-s.ctx.Done():
			return
		case <-s.stop:
			return
		case err := <-s.failed:
			s.reportError(err)
			return
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if s.opts.Interim && t.Text != "" {
				s.h.OnTranscript(t.Text, false)
			}
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			s.r.metrics.STTDuration.Record(s.ctx, time.Since(s.opened).Seconds(),
				metric.WithAttributes(attribute.String("provider", s.r.name)))
			s.h.OnTranscript(t.Text, true)
			if !s.opts.Continuous {
				return
			}
		}
	}

	// Both channels closed on their own: the provider ended the session.
	if f, ok := s.handle.(stt.Failer); ok && s.ctx.Err() == nil {
		if err := f.Err(); err != nil {
			s.reportError(err)
		}
	}
}

func (s *session) reportError(err error) {
	s.r.metrics.RecordProviderError(s.ctx, s.r.name, "stt")
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	s.h.OnError(err)
}

// end tears the provider session down and reports OnEnd exactly once.
// Cancelling before Close makes batch providers discard half-heard audio.
func (s *session) end() {
	s.r.detach(s)
	s.cancel()
	if err := s.handle.Close(); err != nil {
		slog.Debug("speech: close stt session", "provider", s.r.name, "err", err)
	}
	s.span.End()
	close(s.stopped)
	s.h.OnEnd()
}

var _ drill.Recognizer = (*Recognizer)(nil)
