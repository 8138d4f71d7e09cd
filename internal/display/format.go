// Package display renders the drill for a learner sitting at a terminal.
//
// Two sinks implement [drill.Display]: [Plain] writes one styled line per
// event to any writer, and [TUI] drives a Bubble Tea program with a live
// countdown bar and an optional answer field for typing instead of speaking.
// [Resolve] picks between them for the "auto" UI mode.
package display

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MrWong99/speakdrill/internal/drill"
)

// ScorePlaceholder is shown while no score applies.
const ScorePlaceholder = "--"

// Start action labels.
const (
	LabelStart   = "Start Lesson"
	LabelRestart = "Restart Lesson"
)

// FormatScore renders a score as "83 / 100", or [ScorePlaceholder].
func FormatScore(score int, ok bool) string {
	if !ok {
		return ScorePlaceholder
	}
	return fmt.Sprintf("%d / 100", score)
}

// FormatCountdown renders the remaining time in whole seconds, rounding up so
// that "0s" only appears once time is actually up.
func FormatCountdown(remaining time.Duration) string {
	if remaining <= 0 {
		return "0s"
	}
	return fmt.Sprintf("%ds", int(math.Ceil(remaining.Seconds())))
}

// FormatFeedback renders the feedback message followed by any pronunciation
// hints.
func FormatFeedback(fb drill.Feedback) string {
	if len(fb.Hints) == 0 {
		return fb.Message
	}
	parts := make([]string, 0, len(fb.Hints))
	for _, h := range fb.Hints {
		switch {
		case h.Got == "":
			parts = append(parts, fmt.Sprintf("missing %q", h.Want))
		case h.Close:
			parts = append(parts, fmt.Sprintf("%q sounded like %q", h.Want, h.Got))
		default:
			parts = append(parts, fmt.Sprintf("%q, heard %q", h.Want, h.Got))
		}
	}
	return fb.Message + " Check: " + strings.Join(parts, "; ") + "."
}
