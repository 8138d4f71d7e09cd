package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Segmenter defaults.
const (
	// DefaultRMSThreshold is the root-mean-square level (in 16-bit PCM units)
	// below which a chunk counts as silence. 300 of 32767 is near-silence.
	DefaultRMSThreshold = 300.0

	// DefaultSilence is the trailing silence that ends an utterance.
	DefaultSilence = 500 * time.Millisecond

	// DefaultMaxUtterance forces a flush during continuous speech.
	DefaultMaxUtterance = 10 * time.Second
)

// SegmenterConfig tunes a Segmenter. Zero fields take the package defaults.
type SegmenterConfig struct {
	Format       Format
	Threshold    float64
	Silence      time.Duration
	MaxUtterance time.Duration
}

// Segmenter splits a PCM stream into utterances with an energy-based silence
// detector. Leading silence is discarded; an utterance ends after Silence of
// quiet audio or once it reaches MaxUtterance.
//
// A Segmenter is not safe for concurrent use. Batch STT sessions confine it
// to their processing goroutine.
type Segmenter struct {
	cfg      SegmenterConfig
	maxBytes int

	buffer    []byte
	hadSpeech bool
	silence   time.Duration
}

// NewSegmenter returns a Segmenter for cfg.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	if cfg.Format.SampleRate <= 0 {
		cfg.Format.SampleRate = 16000
	}
	if cfg.Format.Channels <= 0 {
		cfg.Format.Channels = 1
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultRMSThreshold
	}
	if cfg.Silence <= 0 {
		cfg.Silence = DefaultSilence
	}
	if cfg.MaxUtterance <= 0 {
		cfg.MaxUtterance = DefaultMaxUtterance
	}
	return &Segmenter{cfg: cfg, maxBytes: cfg.Format.Bytes(cfg.MaxUtterance)}
}

// Push feeds a chunk and returns a completed utterance, or nil while the
// current one is still open.
func (s *Segmenter) Push(chunk []byte) []byte {
	if RMS(chunk) < s.cfg.Threshold {
		if !s.hadSpeech {
			return nil
		}
		s.silence += s.cfg.Format.Duration(len(chunk))
		s.buffer = append(s.buffer, chunk...)
		if s.silence >= s.cfg.Silence {
			return s.Flush()
		}
		return nil
	}

	s.hadSpeech = true
	s.silence = 0
	s.buffer = append(s.buffer, chunk...)
	if s.maxBytes > 0 && len(s.buffer) >= s.maxBytes {
		return s.Flush()
	}
	return nil
}

// Flush returns the buffered utterance and resets the segmenter. It returns
// nil when no speech has been buffered.
func (s *Segmenter) Flush() []byte {
	pcm := s.buffer
	speech := s.hadSpeech
	s.buffer = nil
	s.hadSpeech = false
	s.silence = 0
	if !speech || len(pcm) == 0 {
		return nil
	}
	return pcm
}

// Pending reports whether speech is buffered.
func (s *Segmenter) Pending() bool { return s.hadSpeech }

// RMS returns the root-mean-square energy of a 16-bit PCM buffer in sample
// units (0–32767). It is 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
