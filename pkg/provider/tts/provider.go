// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a synthesis service (ElevenLabs, OpenAI) behind a
// streaming interface: SynthesizeStream consumes text fragments and emits
// raw PCM as it becomes available, so playback of a prompt can start before
// the whole utterance is synthesized.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/speakdrill/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments and returns a channel of
	// 16-bit PCM chunks in OutputFormat. The audio channel is closed when all
	// text has been synthesised, on a provider error, or when ctx is
	// cancelled; callers check ctx.Err() to tell cancellation apart.
	//
	// Returns a non-nil error only if the stream cannot be started.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan []byte, error)

	// ListVoices returns the voices the provider offers.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)

	// OutputFormat reports the PCM format of synthesized audio.
	OutputFormat() audio.Format
}
