package speech

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/speakdrill/internal/drill"
)

// TextRecognizer implements [drill.Recognizer] for typed answers. The UI
// forwards keystrokes with [TextRecognizer.Type] and committed lines with
// [TextRecognizer.Submit].
type TextRecognizer struct {
	mu     sync.Mutex
	active *textSession
}

// NewTextRecognizer returns an idle TextRecognizer.
func NewTextRecognizer() *TextRecognizer {
	return &TextRecognizer{}
}

// Open implements [drill.Recognizer]. It ends any session that is still
// open. The session also ends when ctx is cancelled.
func (t *TextRecognizer) Open(ctx context.Context, opts drill.RecognitionOptions, h drill.RecognitionHandler) (drill.Recognition, error) {
	s := &textSession{t: t, h: h, opts: opts}

	t.mu.Lock()
	prev := t.active
	t.active = s
	t.mu.Unlock()
	if prev != nil {
		prev.end()
	}

	s.mu.Lock()
	s.stopAfter = context.AfterFunc(ctx, s.end)
	s.mu.Unlock()
	return s, nil
}

// Listening reports whether a session is waiting for an answer.
func (t *TextRecognizer) Listening() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active != nil
}

// Type delivers the partially typed line as an interim transcript. It is a
// no-op when nobody listens or the session did not ask for interim results.
func (t *TextRecognizer) Type(text string) {
	s := t.current()
	if s == nil || !s.opts.Interim {
		return
	}
	s.deliver(strings.TrimSpace(text), false)
}

// Submit delivers text as the final transcript of the active session and
// reports whether a session received it.
func (t *TextRecognizer) Submit(text string) bool {
	s := t.current()
	if s == nil {
		return false
	}
	return s.deliver(strings.TrimSpace(text), true)
}

func (t *TextRecognizer) current() *textSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

type textSession struct {
	t    *TextRecognizer
	h    drill.RecognitionHandler
	opts drill.RecognitionOptions

	// deliverMu serializes handler calls so OnEnd is always last.
	deliverMu sync.Mutex

	mu        sync.Mutex
	ended     bool
	stopAfter func() bool
}

// deliver hands text to the handler and ends the session after a final
// unless it is continuous.
func (s *textSession) deliver(text string, final bool) bool {
	s.deliverMu.Lock()
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		s.deliverMu.Unlock()
		return false
	}
	s.mu.Unlock()
	s.h.OnTranscript(text, final)
	s.deliverMu.Unlock()

	if final && !s.opts.Continuous {
		s.end()
	}
	return true
}

// Stop implements [drill.Recognition].
func (s *textSession) Stop() error {
	s.end()
	return nil
}

func (s *textSession) end() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	stop := s.stopAfter
	s.mu.Unlock()

	s.t.mu.Lock()
	if s.t.active == s {
		s.t.active = nil
	}
	s.t.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.h.OnEnd()
}

var _ drill.Recognizer = (*TextRecognizer)(nil)
