package audio

import (
	"fmt"
	"io"
	"sync"
)

// Sink plays synthesized audio.
type Sink interface {
	// WriteFrame plays or stores one frame. It may block for as long as the
	// device needs to accept the data.
	WriteFrame(frame AudioFrame) error
}

// WriterSink converts frames to a fixed output format and writes raw PCM to
// an io.Writer, e.g. the stdin of `aplay -t raw` or a file.
type WriterSink struct {
	mu   sync.Mutex
	w    io.Writer
	conv FormatConverter
}

// NewWriterSink returns a sink writing PCM in format f to w.
func NewWriterSink(w io.Writer, f Format) *WriterSink {
	return &WriterSink{w: w, conv: FormatConverter{Target: f}}
}

// WriteFrame implements Sink.
func (s *WriterSink) WriteFrame(frame AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.conv.Convert(frame)
	if len(out.Data) == 0 {
		return nil
	}
	if _, err := s.w.Write(out.Data); err != nil {
		return fmt.Errorf("audio: write playback: %w", err)
	}
	return nil
}

// Discard is a Sink that drops all audio.
var Discard Sink = discard{}

type discard struct{}

func (discard) WriteFrame(AudioFrame) error { return nil }
