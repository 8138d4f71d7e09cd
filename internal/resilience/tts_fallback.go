package resilience

import (
	"context"

	"github.com/MrWong99/speakdrill/pkg/audio"
	"github.com/MrWong99/speakdrill/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker.
//
// Text fragments are buffered until the input channel closes so that every
// attempt receives the full prompt.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// SynthesizeStream collects text and starts synthesis on the first healthy
// provider. Only stream setup is covered by failover; mid-stream errors are
// the caller's responsibility.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	var fragments []string
	for done := false; !done; {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case t, ok := <-text:
			if !ok {
				done = true
				continue
			}
			fragments = append(fragments, t)
		}
	}

	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (<-chan []byte, error) {
		replay := make(chan string, len(fragments))
		for _, t := range fragments {
			replay <- t
		}
		close(replay)
		return p.SynthesizeStream(ctx, replay, voice)
	})
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// OutputFormat reports the format of the provider that served the most
// recent request, or of the primary before any request succeeded.
func (f *TTSFallback) OutputFormat() audio.Format {
	_, p := f.group.Last()
	return p.OutputFormat()
}

// Healthy reports whether any backend's breaker is not open.
func (f *TTSFallback) Healthy() bool { return f.group.Healthy() }
