package drill

import (
	"fmt"
	"time"

	"github.com/MrWong99/speakdrill/internal/scoring"
)

// Phase is the controller's position in the turn cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePrompting
	PhaseAwaitingResponse
	PhaseEvaluating
	PhaseAdvancing
	PhaseRetrying
	PhaseCompleted
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePrompting:
		return "prompting"
	case PhaseAwaitingResponse:
		return "awaiting_response"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseAdvancing:
		return "advancing"
	case PhaseRetrying:
		return "retrying"
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// State is a snapshot of the session. Only the controller mutates the live
// value; callers receive copies from [Controller.Snapshot].
type State struct {
	// SessionID identifies the current run. A new ID is issued on every
	// start.
	SessionID string

	// Index is the lexicon position being drilled. It never decreases
	// within a session and equals the lexicon length once completed.
	Index int

	Phase Phase

	// PendingEvaluation is true between opening a listening session and
	// resolving the turn.
	PendingEvaluation bool

	// TurnStart is when listening began. Zero while no turn is open.
	TurnStart time.Time

	// Turn is the token of the current turn. It increases on every prompt
	// and is never reset, so callbacks from earlier turns can be told apart.
	Turn uint64
}

// Outcome classifies how a turn resolved.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCorrect
	OutcomeMismatch
	OutcomeEmpty
	OutcomeTimeout
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCorrect:
		return "correct"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeEmpty:
		return "empty"
	case OutcomeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// FeedbackKind is the display class of a feedback message.
type FeedbackKind int

const (
	FeedbackSuccess FeedbackKind = iota
	FeedbackWarning
	FeedbackError
)

// String returns the kind name.
func (k FeedbackKind) String() string {
	switch k {
	case FeedbackSuccess:
		return "success"
	case FeedbackWarning:
		return "warning"
	case FeedbackError:
		return "error"
	default:
		return fmt.Sprintf("FeedbackKind(%d)", int(k))
	}
}

// Feedback is a message shown to the learner after a turn resolves, or when
// the drill cannot run.
type Feedback struct {
	Kind    FeedbackKind
	Outcome Outcome
	Message string

	// Hints lists mispronounced words on a mismatch.
	Hints []scoring.Hint
}

// Messages shown to the learner.
const (
	MsgListening     = "Listening..."
	MsgNoResponse    = "No response detected."
	MsgSpeakUp       = "Speak up! Answer quickly like in class."
	MsgTimeUp        = "Time's up! Keep the rhythm and try again."
	MsgGoodPace      = "Good pace."
	MsgTooSlow       = "Too slow."
	MsgComplete      = "Lesson complete!"
	MsgCompleteNote  = "Great job keeping the pace!"
	MsgCompleteCheer = "Fantastic work. Restart for more practice."
	MsgUnavailable   = "Speech recognition is not available. Configure an STT provider to practise."
)
