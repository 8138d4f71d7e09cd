package speech

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/speakdrill/internal/drill"
	"github.com/MrWong99/speakdrill/internal/observe"
	"github.com/MrWong99/speakdrill/pkg/audio"
	"github.com/MrWong99/speakdrill/pkg/provider/tts"
)

// SpeakerOption configures a [Speaker].
type SpeakerOption func(*Speaker)

// WithSpeakerName sets the provider name used in metrics and logs.
func WithSpeakerName(name string) SpeakerOption {
	return func(s *Speaker) { s.name = name }
}

// WithSpeakerMetrics overrides the metrics instruments.
func WithSpeakerMetrics(m *observe.Metrics) SpeakerOption {
	return func(s *Speaker) { s.metrics = m }
}

// Speaker implements [drill.Speaker] by synthesizing prompts with a
// [tts.Provider] and writing the PCM to an [audio.Sink].
type Speaker struct {
	provider tts.Provider
	sink     audio.Sink
	voice    tts.VoiceProfile
	name     string
	metrics  *observe.Metrics

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSpeaker returns a Speaker that plays voice through p on sink.
func NewSpeaker(p tts.Provider, sink audio.Sink, voice tts.VoiceProfile, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		provider: p,
		sink:     sink,
		voice:    voice,
		name:     "tts",
	}
	for _, o := range opts {
		o(s)
	}
	if s.sink == nil {
		s.sink = audio.Discard
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Speak implements [drill.Speaker]. done runs on a background goroutine once
// playback finishes or synthesis fails. It is not called when the utterance
// is superseded by another Speak or ctx is cancelled.
func (s *Speaker) Speak(ctx context.Context, text string, done func()) {
	sctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.release(gen, cancel)

		if err := s.play(sctx, text); err != nil {
			observe.Logger(sctx).Warn("speech: speak prompt", "provider", s.name, "err", err)
		}
		if sctx.Err() != nil {
			return
		}
		if done != nil {
			done()
		}
	}()
}

// Stop cancels the active utterance, if any, and waits for playback to
// unwind.
func (s *Speaker) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Speaker) release(gen uint64, cancel context.CancelFunc) {
	s.mu.Lock()
	if s.gen == gen {
		s.cancel = nil
	}
	s.mu.Unlock()
	cancel()
}

func (s *Speaker) play(ctx context.Context, text string) (err error) {
	ctx, span := observe.StartSpan(ctx, "tts.speak",
		trace.WithAttributes(
			attribute.String("provider", s.name),
			attribute.String("voice", s.voice.ID),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	fragments := make(chan string, 1)
	fragments <- text
	close(fragments)

	chunks, err := s.provider.SynthesizeStream(ctx, fragments, s.voice)
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, s.name, "tts", "error")
		s.metrics.RecordProviderError(ctx, s.name, "tts")
		return fmt.Errorf("synthesize: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, s.name, "tts", "ok")

	format := s.provider.OutputFormat()
	var offset time.Duration
	first := true
	for {
		select {
		case <-ctx.Done():
			audio.Drain(chunks)
			return nil
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			if len(chunk) == 0 {
				continue
			}
			if first {
				first = false
				s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds(),
					metric.WithAttributes(attribute.String("provider", s.name)))
			}
			frame := audio.AudioFrame{
				Data:       chunk,
				SampleRate: format.SampleRate,
				Channels:   format.Channels,
				Timestamp:  offset,
			}
			offset += format.Duration(len(chunk))
			if err := s.sink.WriteFrame(frame); err != nil {
				audio.Drain(chunks)
				return fmt.Errorf("play: %w", err)
			}
		}
	}
}

var _ drill.Speaker = (*Speaker)(nil)
