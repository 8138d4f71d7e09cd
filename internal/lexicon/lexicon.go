// Package lexicon holds the ordered prompt/answer pairs that drive a drill,
// together with the sources they can be loaded from: the built-in set, YAML
// and TOML files, SQLite and PostgreSQL.
package lexicon

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrEmpty is returned when a lexicon would contain no entries.
var ErrEmpty = errors.New("lexicon: no entries")

// DefaultName is the name used for lexicons that do not declare one.
const DefaultName = "default"

// Entry is one prompt and the answer the learner is expected to say. An entry
// is identified only by its position in the [Lexicon].
type Entry struct {
	Prompt string `yaml:"prompt" toml:"prompt"`
	Answer string `yaml:"answer" toml:"answer"`
}

// Lexicon is an immutable, non-empty, ordered list of entries. It is safe for
// concurrent use.
type Lexicon struct {
	name    string
	entries []Entry
}

// Source loads a lexicon.
type Source interface {
	Load(ctx context.Context) (*Lexicon, error)
}

// New validates entries and returns a Lexicon holding a copy of them. It
// fails with [ErrEmpty] when entries is empty and with a joined error listing
// every entry that has a blank prompt or answer.
func New(name string, entries []Entry) (*Lexicon, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	if strings.TrimSpace(name) == "" {
		name = DefaultName
	}

	var errs []error
	for i, e := range entries {
		if strings.TrimSpace(e.Prompt) == "" {
			errs = append(errs, fmt.Errorf("lexicon: entry %d: prompt is required", i))
		}
		if strings.TrimSpace(e.Answer) == "" {
			errs = append(errs, fmt.Errorf("lexicon: entry %d: answer is required", i))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Lexicon{name: name, entries: slices.Clone(entries)}, nil
}

// Name returns the lexicon's name.
func (l *Lexicon) Name() string { return l.name }

// Len returns the number of entries.
func (l *Lexicon) Len() int { return len(l.entries) }

// At returns the entry at index i. It panics if i is out of range.
func (l *Lexicon) At(i int) Entry { return l.entries[i] }

// Entries returns a copy of all entries in order.
func (l *Lexicon) Entries() []Entry { return slices.Clone(l.entries) }

// Static is a [Source] that always returns the same lexicon.
type Static struct {
	Lexicon *Lexicon
}

// Load implements [Source].
func (s Static) Load(context.Context) (*Lexicon, error) {
	if s.Lexicon == nil {
		return nil, ErrEmpty
	}
	return s.Lexicon, nil
}
