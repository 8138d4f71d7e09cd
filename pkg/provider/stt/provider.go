// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (Deepgram, OpenAI, or a local
// whisper.cpp model) behind a uniform streaming interface. The central
// abstraction is SessionHandle: once opened, a session accepts raw PCM audio
// and emits two streams of Transcript values. Partials are low-latency
// guesses used for live display; finals are the committed results a drill
// turn is scored against.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// StreamConfig describes the audio format and recognition language for a new
// STT session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. 16000 is the rate every
	// bundled provider prefers.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string

	// Interim requests partial transcripts. Batch providers ignore it and only
	// emit a partial alongside each final.
	Interim bool
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit little-endian PCM audio. The chunk
	// must match the SampleRate and Channels agreed in StreamConfig. Calling
	// SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a channel of interim Transcript values. The channel is
	// closed when the session ends.
	Partials() <-chan Transcript

	// Finals returns a channel of committed Transcript values. The channel is
	// closed when the session ends.
	Finals() <-chan Transcript

	// Close terminates the session, flushes any pending audio, and releases
	// all associated resources. After Close returns, the Partials and Finals
	// channels are closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Failer is implemented by sessions that can end on their own because the
// backend failed. Once both transcript channels are closed, Err reports the
// failure, or nil for a clean end.
type Failer interface {
	Err() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new transcription session. The returned SessionHandle
	// is ready to accept audio immediately. The caller owns the handle and must
	// call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
