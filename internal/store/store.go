package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/calcx/internal/types"
)

// Schema version tracking:
// 1 - table-per-hierarchy with _calcx_schema layout hashes
const currentSchemaVersion = 1

const metaSQL = `
CREATE TABLE IF NOT EXISTS _calcx_schema (
	table_name TEXT PRIMARY KEY,
	layout_hash TEXT NOT NULL
)`

// Store provides durable storage for instances of one type universe.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db       *sql.DB
	universe *types.Universe
	tables   map[*types.Type]*Table
}

// Open creates or opens a SQLite database at the given path and creates the
// tables of every hierarchy in u. Use ":memory:" for a throwaway database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, u *types.Universe) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and an in-memory database
	// exists per connection, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := &Store{db: db, universe: u, tables: make(map[*types.Type]*Table)}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Universe returns the types the store was opened for.
func (s *Store) Universe() *types.Universe {
	return s.universe
}

// Table returns the table storing t and its hierarchy.
func (s *Store) Table(t *types.Type) (*Table, error) {
	table, ok := s.tables[types.Root(t)]
	if !ok {
		return nil, fmt.Errorf("type %s is not stored", t)
	}
	return table, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the table of every hierarchy root and checks recorded
// layouts. This function is idempotent.
func (s *Store) applySchema() error {
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, metaSQL); err != nil {
		return fmt.Errorf("create schema table: %w", err)
	}

	for _, t := range s.universe.Types() {
		if t.Kind != types.KindStruct || types.Root(t) != t {
			continue
		}
		table, err := NewTable(s.universe, t)
		if err != nil {
			return err
		}
		if err := s.createTable(ctx, table); err != nil {
			return err
		}
		s.tables[t] = table
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (s *Store) createTable(ctx context.Context, table *Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create table %s: %w", table.Name, err)
	}
	defer tx.Rollback()

	for _, stmt := range table.DDL() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", table.Name, err)
		}
	}

	var recorded string
	err = tx.QueryRowContext(ctx, `SELECT layout_hash FROM _calcx_schema WHERE table_name = ?`, table.Name).Scan(&recorded)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `INSERT INTO _calcx_schema (table_name, layout_hash) VALUES (?, ?)`, table.Name, table.LayoutHash); err != nil {
			return fmt.Errorf("record layout of %s: %w", table.Name, err)
		}
	case err != nil:
		return fmt.Errorf("read layout of %s: %w", table.Name, err)
	case recorded != table.LayoutHash:
		return fmt.Errorf("table %s was created with a different layout (%s, now %s)", table.Name, recorded[:12], table.LayoutHash[:12])
	}

	return tx.Commit()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
