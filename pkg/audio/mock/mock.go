// Package mock provides test doubles for the audio package interfaces.
//
// Source lets a test push capture frames on demand; Sink records everything
// a speaker plays.
package mock

import (
	"sync"

	"github.com/MrWong99/speakdrill/pkg/audio"
)

// Source is a mock implementation of audio.Source backed by a buffered
// channel. Push frames with C and close it with Close.
type Source struct {
	C    chan audio.AudioFrame
	once sync.Once
}

// NewSource returns a Source whose channel buffers up to n frames.
func NewSource(n int) *Source {
	return &Source{C: make(chan audio.AudioFrame, n)}
}

// Frames implements audio.Source.
func (s *Source) Frames() <-chan audio.AudioFrame { return s.C }

// Close closes the frame channel. Safe to call more than once.
func (s *Source) Close() {
	s.once.Do(func() { close(s.C) })
}

// Sink is a mock implementation of audio.Sink.
type Sink struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every WriteFrame call.
	Err error

	// Block, if non-nil, makes WriteFrame wait until it is closed.
	Block chan struct{}

	frames []audio.AudioFrame
}

// WriteFrame records the frame and returns Err.
func (s *Sink) WriteFrame(frame audio.AudioFrame) error {
	if s.Block != nil {
		<-s.Block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]byte, len(frame.Data))
	copy(data, frame.Data)
	frame.Data = data
	s.frames = append(s.frames, frame)
	return s.Err
}

// Frames returns a copy of every recorded frame.
func (s *Sink) Frames() []audio.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.AudioFrame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Bytes returns the concatenated payload of every recorded frame.
func (s *Sink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, f := range s.frames {
		out = append(out, f.Data...)
	}
	return out
}

var (
	_ audio.Source = (*Source)(nil)
	_ audio.Sink   = (*Sink)(nil)
)
