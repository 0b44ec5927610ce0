package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/chazu/leafkit/vm"
)

// SQLiteStore persists ASTs as compressed CBOR blobs, so compiled
// templates survive restarts.
type SQLiteStore struct {
	db  *sql.DB
	reg *vm.Registry
}

// OpenSQLite opens or creates the database at path. Decoded ASTs are bound
// to r; nil means vm.DefaultRegistry.
func OpenSQLite(path string, r *vm.Registry) (*SQLiteStore, error) {
	if r == nil {
		r = vm.DefaultRegistry()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS asts (
		key  BLOB PRIMARY KEY,
		name TEXT NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: creating table: %w", err)
	}
	return &SQLiteStore{db: db, reg: r}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get loads and decodes the AST stored under k.
func (s *SQLiteStore) Get(ctx context.Context, k Key) (*vm.AST, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM asts WHERE key = ?", k[:]).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: querying %s: %w", k, err)
	}
	ast, err := Unmarshal(data, s.reg)
	if err != nil {
		return nil, false, err
	}
	return ast, true, nil
}

// Put encodes and stores ast under k.
func (s *SQLiteStore) Put(ctx context.Context, k Key, ast *vm.AST) error {
	data, err := Marshal(ast)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO asts (key, name, data) VALUES (?, ?, ?)",
		k[:], ast.Name, data,
	)
	if err != nil {
		return fmt.Errorf("cache: saving %s: %w", ast.Name, err)
	}
	return nil
}

// Remove deletes k.
func (s *SQLiteStore) Remove(ctx context.Context, k Key) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM asts WHERE key = ?", k[:]); err != nil {
		return fmt.Errorf("cache: removing %s: %w", k, err)
	}
	return nil
}

// Keys lists the stored keys.
func (s *SQLiteStore) Keys(ctx context.Context) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM asts ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("cache: listing keys: %w", err)
	}
	defer rows.Close()
	var keys []Key
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("cache: listing keys: %w", err)
		}
		var k Key
		if len(b) != len(k) {
			return nil, fmt.Errorf("cache: stored key has %d bytes", len(b))
		}
		copy(k[:], b)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
