package lexicon

import "context"

// Store persists named lexicons. Saving a lexicon replaces any existing
// lexicon of the same name.
type Store interface {
	Save(ctx context.Context, l *Lexicon) error
	Load(ctx context.Context, name string) (*Lexicon, error)
	Names(ctx context.Context) ([]string, error)
	Close() error
}

// storeSource adapts a lazily opened [Store] to [Source].
type storeSource struct {
	open func(ctx context.Context) (Store, error)
	name string
}

func (s storeSource) Load(ctx context.Context) (*Lexicon, error) {
	st, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	name := s.name
	if name == "" {
		name = DefaultName
	}
	return st.Load(ctx, name)
}
