// Package mock provides test doubles for the drill collaborators: a
// scriptable [Recognizer], a [Speaker] and a recording [Display].
//
// All types are safe for concurrent use.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/speakdrill/internal/drill"
)

var (
	_ drill.Recognizer  = (*Recognizer)(nil)
	_ drill.Recognition = (*Session)(nil)
	_ drill.Speaker     = (*Speaker)(nil)
	_ drill.Display     = (*Display)(nil)
)

// ─── Recognizer ──────────────────────────────────────────────────────────────

// Recognizer records every Open call and hands out [Session] values that
// tests drive by hand.
type Recognizer struct {
	mu sync.Mutex

	// OpenErr is returned by Open when non-nil.
	OpenErr error

	sessions []*Session
	opens    int
}

// Open implements [drill.Recognizer].
func (r *Recognizer) Open(_ context.Context, opts drill.RecognitionOptions, h drill.RecognitionHandler) (drill.Recognition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens++
	if r.OpenErr != nil {
		return nil, r.OpenErr
	}
	s := &Session{Options: opts, handler: h}
	r.sessions = append(r.sessions, s)
	return s, nil
}

// OpenCount returns how many times Open was called.
func (r *Recognizer) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

// Sessions returns all sessions opened so far.
func (r *Recognizer) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Session(nil), r.sessions...)
}

// Last returns the most recent session, or nil.
func (r *Recognizer) Last() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 {
		return nil
	}
	return r.sessions[len(r.sessions)-1]
}

// Session is a listening session whose events are triggered by the test.
type Session struct {
	// Options is what the controller asked for.
	Options drill.RecognitionOptions

	mu      sync.Mutex
	handler drill.RecognitionHandler
	stops   int
}

// Interim delivers a partial transcript.
func (s *Session) Interim(text string) { s.handler.OnTranscript(text, false) }

// Final delivers a final transcript.
func (s *Session) Final(text string) { s.handler.OnTranscript(text, true) }

// Fail delivers an error.
func (s *Session) Fail(err error) { s.handler.OnError(err) }

// End delivers the end-of-session event.
func (s *Session) End() { s.handler.OnEnd() }

// Stop implements [drill.Recognition].
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

// StopCount returns how many times Stop was called.
func (s *Session) StopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// ─── Speaker ─────────────────────────────────────────────────────────────────

// Speaker records spoken text. With Manual unset, utterances finish
// immediately; otherwise the test calls [Speaker.Finish].
type Speaker struct {
	Manual bool

	mu     sync.Mutex
	spoken []string
	done   func()
}

// Speak implements [drill.Speaker].
func (s *Speaker) Speak(_ context.Context, text string, done func()) {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	if s.Manual {
		s.done = done
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	done()
}

// Finish completes the pending utterance. It reports false if there is none.
func (s *Speaker) Finish() bool {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()
	if done == nil {
		return false
	}
	done()
	return true
}

// Spoken returns every text passed to Speak.
func (s *Speaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// ─── Display ─────────────────────────────────────────────────────────────────

// Score is a recorded ShowScore call.
type Score struct {
	Value int
	OK    bool
}

// Display records what the controller shows.
type Display struct {
	mu          sync.Mutex
	prompts     []string
	transcripts []string
	feedback    []drill.Feedback
	clears      int
	scores      []Score
	countdowns  []time.Duration
	completes   int
}

func (d *Display) ShowPrompt(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prompts = append(d.prompts, text)
}

func (d *Display) ShowTranscript(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transcripts = append(d.transcripts, text)
}

func (d *Display) ShowFeedback(fb drill.Feedback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.feedback = append(d.feedback, fb)
}

func (d *Display) ClearFeedback() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears++
}

func (d *Display) ShowScore(score int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scores = append(d.scores, Score{Value: score, OK: ok})
}

func (d *Display) ShowCountdown(remaining time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.countdowns = append(d.countdowns, remaining)
}

func (d *Display) ShowComplete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completes++
}

// Prompts returns every prompt shown.
func (d *Display) Prompts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.prompts...)
}

// Transcript returns the latest transcript text.
func (d *Display) Transcript() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transcripts) == 0 {
		return ""
	}
	return d.transcripts[len(d.transcripts)-1]
}

// Feedback returns every feedback message shown.
func (d *Display) Feedback() []drill.Feedback {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]drill.Feedback(nil), d.feedback...)
}

// LastFeedback returns the latest feedback, or the zero value.
func (d *Display) LastFeedback() drill.Feedback {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.feedback) == 0 {
		return drill.Feedback{}
	}
	return d.feedback[len(d.feedback)-1]
}

// LastScore returns the latest score call, or the zero value.
func (d *Display) LastScore() Score {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.scores) == 0 {
		return Score{}
	}
	return d.scores[len(d.scores)-1]
}

// Countdowns returns every countdown value shown.
func (d *Display) Countdowns() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.countdowns...)
}

// CompleteCount returns how many times ShowComplete was called.
func (d *Display) CompleteCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completes
}
