package lexicon

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlLexiconEntries = `
CREATE TABLE IF NOT EXISTS lexicon_entries (
    lexicon   TEXT     NOT NULL,
    position  INTEGER  NOT NULL,
    prompt    TEXT     NOT NULL,
    answer    TEXT     NOT NULL,
    PRIMARY KEY (lexicon, position)
);
`

// PostgresStore keeps lexicons in PostgreSQL. It is safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn, verifies the connection and creates the
// lexicon table if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("lexicon postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("lexicon postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("lexicon postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlLexiconEntries); err != nil {
		pool.Close()
		return nil, fmt.Errorf("lexicon postgres: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Save implements [Store].
func (s *PostgresStore) Save(ctx context.Context, l *Lexicon) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM lexicon_entries WHERE lexicon = $1`, l.Name()); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		rows := make([][]any, len(l.entries))
		for i, e := range l.entries {
			rows[i] = []any{l.Name(), i, e.Prompt, e.Answer}
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"lexicon_entries"},
			[]string{"lexicon", "position", "prompt", "answer"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("lexicon postgres: save %q: %w", l.Name(), err)
	}
	return nil
}

// Load implements [Store].
func (s *PostgresStore) Load(ctx context.Context, name string) (*Lexicon, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT prompt, answer FROM lexicon_entries WHERE lexicon = $1 ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("lexicon postgres: query %q: %w", name, err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Entry])
	if err != nil {
		return nil, fmt.Errorf("lexicon postgres: collect %q: %w", name, err)
	}
	l, err := New(name, entries)
	if err != nil {
		return nil, fmt.Errorf("lexicon postgres: load %q: %w", name, err)
	}
	return l, nil
}

// Names implements [Store].
func (s *PostgresStore) Names(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT lexicon FROM lexicon_entries ORDER BY lexicon`)
	if err != nil {
		return nil, fmt.Errorf("lexicon postgres: list: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("lexicon postgres: list: %w", err)
	}
	return names, nil
}

// PostgresSource returns a [Source] that reads the lexicon called name from
// the database at dsn.
func PostgresSource(dsn, name string) Source {
	return storeSource{
		name: name,
		open: func(ctx context.Context) (Store, error) { return NewPostgresStore(ctx, dsn) },
	}
}
