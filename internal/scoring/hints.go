package scoring

import "github.com/antzucaro/matchr"

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Hint points at one expected word the learner did not say correctly.
type Hint struct {
	// Want is the expected word (normalized).
	Want string

	// Got is the word heard at the same position, or "" when the answer was
	// too short.
	Got string

	// Close reports that Got sounds like Want: their Double Metaphone keys
	// overlap and the spelling is similar, or the spelling alone is very
	// similar.
	Close bool
}

// HintOption configures a [Hinter].
type HintOption func(*Hinter)

// WithPhoneticThreshold sets the minimum Jaro-Winkler similarity for two
// words with overlapping metaphone keys to count as close. Default: 0.70.
func WithPhoneticThreshold(threshold float64) HintOption {
	return func(h *Hinter) {
		h.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler similarity for two words
// without overlapping metaphone keys to count as close. Default: 0.85.
func WithFuzzyThreshold(threshold float64) HintOption {
	return func(h *Hinter) {
		h.fuzzyThreshold = threshold
	}
}

// Hinter produces pronunciation hints for mismatched answers. It is
// read-only after construction and safe for concurrent use.
type Hinter struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewHinter returns a Hinter configured with opts.
func NewHinter(opts ...HintOption) *Hinter {
	h := &Hinter{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Hints aligns the normalized words of expected and observed by position and
// returns one [Hint] per expected word that differs. Extra observed words are
// ignored. A correct answer yields no hints.
func (h *Hinter) Hints(expected, observed string) []Hint {
	want := normalizedWords(expected)
	got := normalizedWords(observed)

	var hints []Hint
	for i, w := range want {
		var g string
		if i < len(got) {
			g = got[i]
		}
		if g == w {
			continue
		}
		hints = append(hints, Hint{Want: w, Got: g, Close: g != "" && h.close(w, g)})
	}
	return hints
}

func (h *Hinter) close(a, b string) bool {
	sim := matchr.JaroWinkler(a, b, false)
	if keysOverlap(a, b) {
		return sim >= h.phoneticThreshold
	}
	return sim >= h.fuzzyThreshold
}

func keysOverlap(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}
