package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultFrameDuration is the capture frame length of a ReaderSource.
const DefaultFrameDuration = 20 * time.Millisecond

// Source produces captured audio frames. A source has a single consumer; the
// channel closes when capture ends.
type Source interface {
	Frames() <-chan AudioFrame
}

// SourceOption configures a ReaderSource.
type SourceOption func(*ReaderSource)

// WithFrameDuration sets the length of each emitted frame.
func WithFrameDuration(d time.Duration) SourceOption {
	return func(s *ReaderSource) { s.frameDur = d }
}

// WithBufferFrames sets how many frames may queue before new ones are
// dropped.
func WithBufferFrames(n int) SourceOption {
	return func(s *ReaderSource) { s.bufFrames = n }
}

// ReaderSource captures raw PCM from an io.Reader such as a FIFO or the
// stdout of `arecord -t raw`. Frames are delivered with non-blocking sends:
// when nobody is listening the oldest audio is not preserved, new frames are
// dropped and counted instead.
type ReaderSource struct {
	r         io.Reader
	format    Format
	frameDur  time.Duration
	bufFrames int

	frames  chan AudioFrame
	dropped atomic.Int64
}

// NewReaderSource returns a source reading PCM in format f from r.
func NewReaderSource(r io.Reader, f Format, opts ...SourceOption) *ReaderSource {
	s := &ReaderSource{
		r:         r,
		format:    f,
		frameDur:  DefaultFrameDuration,
		bufFrames: 50,
	}
	for _, o := range opts {
		o(s)
	}
	s.frames = make(chan AudioFrame, s.bufFrames)
	return s
}

// Frames returns the capture channel. It is closed when Run returns.
func (s *ReaderSource) Frames() <-chan AudioFrame { return s.frames }

// Format returns the capture format.
func (s *ReaderSource) Format() Format { return s.format }

// Dropped returns how many frames were discarded because the consumer lagged.
func (s *ReaderSource) Dropped() int64 { return s.dropped.Load() }

// Run reads the stream until EOF, a read error, or ctx cancellation. A
// blocked Read is only interrupted by closing the underlying reader. EOF is
// not an error.
func (s *ReaderSource) Run(ctx context.Context) error {
	defer close(s.frames)

	size := s.format.Bytes(s.frameDur)
	if size <= 0 {
		return fmt.Errorf("audio: invalid capture format %dHz %dch", s.format.SampleRate, s.format.Channels)
	}

	var offset int
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		buf := make([]byte, size)
		n, err := io.ReadFull(s.r, buf)
		if n > 0 {
			n -= n % (s.format.Channels * bytesPerSample)
			frame := AudioFrame{
				Data:       buf[:n],
				SampleRate: s.format.SampleRate,
				Channels:   s.format.Channels,
				Timestamp:  s.format.Duration(offset),
			}
			offset += n
			select {
			case s.frames <- frame:
			default:
				if s.dropped.Add(1) == 1 {
					slog.Debug("audio source: consumer lagging, dropping frames")
				}
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("audio: read capture: %w", err)
		}
	}
}
