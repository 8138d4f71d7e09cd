// Package scoring grades a spoken answer against the expected sentence.
//
// A [Result] combines four components:
//
//   - Phonetic (0..70): share of word positions whose [PhoneticCode] matches.
//   - Lexical (0..20): share of expected words present in the answer.
//   - Pacing (0..10): penalty for answers much longer or shorter than expected.
//   - Timing (0..10): full credit within the limit, decaying linearly after it.
//
// The components are summed and then capped at 100. The individual maxima add
// up to 110, so an answer can saturate the cap without being perfect; callers
// rely on this, and the cap is applied after the sum.
//
// Correctness is independent of the score: an answer is correct only when its
// [Normalize]d form equals the normalized expected answer.
//
// Everything in this package is pure and safe for concurrent use.
package scoring

import (
	"math"
	"strings"
	"time"
)

const (
	phoneticWeight = 70
	lexicalWeight  = 20
	pacingMax      = 10
	pacingStep     = 2
	timingWeight   = 10
	maxTotal       = 100
)

// Result is the breakdown of a single graded answer.
type Result struct {
	Phonetic float64
	Lexical  float64
	Pacing   float64
	Timing   float64
	Total    float64

	// Correct reports an exact match after normalization.
	Correct bool

	// Empty is set when the observed answer was blank. All scores are zero
	// and the answer must be retried.
	Empty bool
}

// Rounded returns Total rounded half away from zero, as displayed to the
// learner.
func (r Result) Rounded() int {
	return int(math.Round(r.Total))
}

// Score grades observed against expected. elapsed is the time the learner took
// to answer and limit is the allowed response time. A non-positive limit
// yields a zero timing component.
func Score(expected, observed string, elapsed, limit time.Duration) Result {
	if strings.TrimSpace(observed) == "" {
		return Result{Empty: true}
	}

	expWords := strings.Fields(expected)
	obsWords := strings.Fields(observed)

	res := Result{
		Correct: Normalize(observed) == Normalize(expected),
	}

	maxLen := max(len(expWords), len(obsWords))
	if maxLen == 0 {
		return res
	}

	res.Phonetic = phoneticSimilarity(expWords, obsWords, maxLen) * phoneticWeight
	res.Lexical = lexicalOverlap(expected, observed) * lexicalWeight
	res.Pacing = PacingBonus(len(expWords), len(obsWords))
	res.Timing = TimingScore(elapsed, limit)
	res.Total = math.Min(maxTotal, res.Phonetic+res.Lexical+res.Pacing+res.Timing)
	return res
}

func phoneticSimilarity(expWords, obsWords []string, maxLen int) float64 {
	matches := 0
	for i, w := range expWords {
		if i >= len(obsWords) {
			break
		}
		code := PhoneticCode(w)
		if code != "" && code == PhoneticCode(obsWords[i]) {
			matches++
		}
	}
	return float64(matches) / float64(maxLen)
}

// lexicalOverlap counts observed words (duplicates included) that appear
// among the expected words, relative to the expected word count.
func lexicalOverlap(expected, observed string) float64 {
	expWords := normalizedWords(expected)
	set := make(map[string]struct{}, len(expWords))
	for _, w := range expWords {
		set[w] = struct{}{}
	}

	overlap := 0
	for _, w := range normalizedWords(observed) {
		if _, ok := set[w]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(max(len(expWords), 1))
}

// PacingBonus returns max(0, 10 - 2*|observed - expected|) for the given word
// counts.
func PacingBonus(expectedWords, observedWords int) float64 {
	diff := expectedWords - observedWords
	if diff < 0 {
		diff = -diff
	}
	return math.Max(0, pacingMax-float64(pacingStep*diff))
}

// TimingScore returns 10 while elapsed is within limit and decays linearly
// with the overage, reaching 0 once the overage equals the limit.
func TimingScore(elapsed, limit time.Duration) float64 {
	if limit <= 0 {
		return 0
	}
	over := max(elapsed-limit, 0)
	ratio := float64(limit-over) / float64(limit)
	return math.Max(0, ratio) * timingWeight
}
