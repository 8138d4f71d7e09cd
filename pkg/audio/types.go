// Package audio holds the PCM plumbing shared by speech providers and the
// drill's audio I/O: frame and format types, format conversion, an
// energy-based utterance segmenter, WAV encoding and raw-stream sources and
// sinks.
//
// All audio is 16-bit signed little-endian PCM.
package audio

import "time"

// bytesPerSample is fixed for 16-bit PCM.
const bytesPerSample = 2

// AudioFrame is a chunk of PCM audio moving between a source, a recognizer
// session, a synthesizer and a sink.
type AudioFrame struct {
	// Data is the raw PCM payload.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for STT input, 24000 for OpenAI speech).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Format returns the frame's sample rate and channel count.
func (f AudioFrame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the PCM byte rate of the format. It is zero when the
// format is incomplete.
func (f Format) BytesPerSecond() int {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return f.SampleRate * f.Channels * bytesPerSample
}

// Duration returns how long n bytes of PCM in this format play for.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// Bytes returns the number of PCM bytes covering d, rounded down to a whole
// sample frame.
func (f Format) Bytes(d time.Duration) int {
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	frame := f.Channels * bytesPerSample
	if frame <= 0 {
		return 0
	}
	return n - n%frame
}
