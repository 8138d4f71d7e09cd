// Package batch turns a one-shot transcription backend into a streaming
// stt.SessionHandle.
//
// Incoming PCM is cut into utterances by an audio.Segmenter. Each completed
// utterance is sent to the Transcriber, and its text is emitted as a partial
// followed by a final with the same text. whisper.cpp and the OpenAI
// transcription endpoint both work this way.
//
// A failed transcription ends the session: both channels close and Err
// reports the failure.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/speakdrill/pkg/audio"
	"github.com/MrWong99/speakdrill/pkg/provider/stt"
)

// DefaultFlushTimeout bounds the inference performed by Close.
const DefaultFlushTimeout = 30 * time.Second

// ErrClosed is returned by SendAudio after Close.
var ErrClosed = errors.New("stt session is closed")

// Transcriber transcribes one complete utterance.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, format audio.Format, language string) (string, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, pcm []byte, format audio.Format, language string) (string, error)

// Transcribe implements Transcriber.
func (f TranscriberFunc) Transcribe(ctx context.Context, pcm []byte, format audio.Format, language string) (string, error) {
	return f(ctx, pcm, format, language)
}

// Config describes a batch session.
type Config struct {
	// Name labels log records, e.g. "whisper" or "openai".
	Name string

	// Stream is the caller's requested stream configuration.
	Stream stt.StreamConfig

	// Segmenter tunes utterance detection. Its Format is taken from Stream.
	Segmenter audio.SegmenterConfig

	// FlushTimeout bounds the final inference run by Close.
	FlushTimeout time.Duration
}

// Start opens a session and starts its processing goroutine. Cancelling ctx
// ends the session and discards buffered audio; Close transcribes it first.
func Start(ctx context.Context, cfg Config, t Transcriber) stt.SessionHandle {
	if cfg.Stream.SampleRate <= 0 {
		cfg.Stream.SampleRate = 16000
	}
	if cfg.Stream.Channels <= 0 {
		cfg.Stream.Channels = 1
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}
	format := audio.Format{SampleRate: cfg.Stream.SampleRate, Channels: cfg.Stream.Channels}
	cfg.Segmenter.Format = format

	s := &session{
		cfg:         cfg,
		format:      format,
		transcriber: t,
		segmenter:   audio.NewSegmenter(cfg.Segmenter),
		audioCh:     make(chan []byte, 256),
		partials:    make(chan stt.Transcript, 64),
		finals:      make(chan stt.Transcript, 64),
		done:        make(chan struct{}),
		ended:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.processLoop(ctx)
	return s
}

// session confines all buffering state to processLoop.
type session struct {
	cfg         Config
	format      audio.Format
	transcriber Transcriber
	segmenter   *audio.Segmenter

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	// ended is closed when processLoop returns.
	ended chan struct{}

	mu  sync.Mutex
	err error

	// offset is the stream position of the next chunk; processLoop only.
	offset time.Duration
	start  time.Duration
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	case <-s.ended:
		return s.endErr()
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return ErrClosed
	case <-s.ended:
		return s.endErr()
	}
}

func (s *session) endErr() error {
	if err := s.Err(); err != nil {
		return err
	}
	return ErrClosed
}

// Err returns the transcription failure that ended the session, if any.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)
	// ended closes first so that SendAudio refuses audio by the time a
	// reader sees the transcript channels close.
	defer close(s.ended)

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.done:
			// Pick up chunks that were queued before Close.
		drain:
			for {
				select {
				case chunk := <-s.audioCh:
					if !s.push(ctx, chunk) {
						return
					}
				default:
					break drain
				}
			}
			if pcm := s.segmenter.Flush(); pcm != nil {
				fc, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FlushTimeout)
				s.emit(fc, pcm)
				cancel()
			}
			return

		case chunk := <-s.audioCh:
			if !s.push(ctx, chunk) {
				return
			}
		}
	}
}

// push feeds chunk to the segmenter and transcribes a completed utterance.
// It returns false once a transcription has failed.
func (s *session) push(ctx context.Context, chunk []byte) bool {
	if !s.segmenter.Pending() {
		s.start = s.offset
	}
	s.offset += s.format.Duration(len(chunk))
	if pcm := s.segmenter.Push(chunk); pcm != nil {
		return s.emit(ctx, pcm)
	}
	return true
}

// emit transcribes pcm and publishes the result. Sends are non-blocking so a
// consumer that stopped reading cannot wedge shutdown. A backend failure is
// recorded and reported as false; a cancelled ctx is not a failure.
func (s *session) emit(ctx context.Context, pcm []byte) bool {
	text, err := s.transcriber.Transcribe(ctx, pcm, s.format, s.cfg.Stream.Language)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		slog.Warn("stt: batch transcription failed", "provider", s.cfg.Name, "error", err)
		s.mu.Lock()
		s.err = fmt.Errorf("stt: %s transcribe: %w", s.cfg.Name, err)
		s.mu.Unlock()
		return false
	}
	if text == "" {
		return true
	}

	t := stt.Transcript{
		Text:      text,
		Timestamp: s.start,
		Duration:  s.format.Duration(len(pcm)),
	}
	select {
	case s.partials <- t:
	default:
	}
	t.IsFinal = true
	select {
	case s.finals <- t:
	default:
	}
	return true
}

var (
	_ stt.SessionHandle = (*session)(nil)
	_ stt.Failer        = (*session)(nil)
)
