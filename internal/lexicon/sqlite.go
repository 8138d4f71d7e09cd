package lexicon

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver.
)

// SQLiteStore keeps lexicons in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lexicon sqlite: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("lexicon sqlite: open %q: %w", path, err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lexicon sqlite: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lexicon_entries (
			lexicon TEXT NOT NULL,
			position INTEGER NOT NULL,
			prompt TEXT NOT NULL,
			answer TEXT NOT NULL,
			PRIMARY KEY (lexicon, position)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save implements [Store].
func (s *SQLiteStore) Save(ctx context.Context, l *Lexicon) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lexicon sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM lexicon_entries WHERE lexicon = ?`, l.Name()); err != nil {
		return fmt.Errorf("lexicon sqlite: clear %q: %w", l.Name(), err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO lexicon_entries (lexicon, position, prompt, answer) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("lexicon sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range l.entries {
		if _, err := stmt.ExecContext(ctx, l.Name(), i, e.Prompt, e.Answer); err != nil {
			return fmt.Errorf("lexicon sqlite: insert entry %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lexicon sqlite: commit: %w", err)
	}
	return nil
}

// Load implements [Store].
func (s *SQLiteStore) Load(ctx context.Context, name string) (*Lexicon, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT prompt, answer FROM lexicon_entries WHERE lexicon = ? ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("lexicon sqlite: query %q: %w", name, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Prompt, &e.Answer); err != nil {
			return nil, fmt.Errorf("lexicon sqlite: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lexicon sqlite: rows: %w", err)
	}
	l, err := New(name, entries)
	if err != nil {
		return nil, fmt.Errorf("lexicon sqlite: load %q: %w", name, err)
	}
	return l, nil
}

// Names implements [Store].
func (s *SQLiteStore) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT lexicon FROM lexicon_entries ORDER BY lexicon`)
	if err != nil {
		return nil, fmt.Errorf("lexicon sqlite: list: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("lexicon sqlite: scan: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// SQLiteSource returns a [Source] that reads the lexicon called name from the
// database at path.
func SQLiteSource(path, name string) Source {
	return storeSource{
		name: name,
		open: func(context.Context) (Store, error) { return OpenSQLite(path) },
	}
}
