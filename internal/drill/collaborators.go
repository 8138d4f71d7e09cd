package drill

import (
	"context"
	"time"
)

// RecognitionOptions configures a listening session.
type RecognitionOptions struct {
	// Language is a BCP-47 tag such as "en-US".
	Language string

	// Interim requests partial transcripts while the learner speaks.
	Interim bool

	// Continuous keeps the session open after the first final transcript.
	Continuous bool
}

// RecognitionHandler receives events from one listening session. Calls may
// arrive on any goroutine.
type RecognitionHandler interface {
	// OnTranscript delivers the transcript so far. final marks the end of an
	// utterance.
	OnTranscript(text string, final bool)

	// OnError reports a recognition failure. The session is over.
	OnError(err error)

	// OnEnd reports that the session closed. It follows every session,
	// including ones that produced a final transcript or an error.
	OnEnd()
}

// Recognition is an open listening session.
type Recognition interface {
	// Stop cancels the session. Events may still be delivered afterwards.
	Stop() error
}

// Recognizer opens listening sessions on a speech-to-text backend.
type Recognizer interface {
	Open(ctx context.Context, opts RecognitionOptions, h RecognitionHandler) (Recognition, error)
}

// Speaker plays prompts aloud.
type Speaker interface {
	// Speak starts speaking text and calls done once it finishes. Starting a
	// new utterance cancels the previous one, whose done is then not called.
	Speak(ctx context.Context, text string, done func())
}

// Display renders the drill. Methods are called from the controller's
// goroutine and must not block.
type Display interface {
	ShowPrompt(text string)
	ShowTranscript(text string)
	ShowFeedback(fb Feedback)
	ClearFeedback()

	// ShowScore shows a 0..100 score, or a placeholder when ok is false.
	ShowScore(score int, ok bool)

	ShowCountdown(remaining time.Duration)

	// ShowComplete marks the lesson as finished; the start action becomes a
	// restart.
	ShowComplete()
}
