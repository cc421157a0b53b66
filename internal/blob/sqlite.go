package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps fragments in a single SQLite file. The UNIQUE primary
// key on name enforces refuse-overwrite at the database level, so a naming
// collision surfaces as ErrExists no matter how the race interleaves.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS blobs (
	name       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`

// OpenSQLite creates or opens a SQLite-backed store at path.
//
// The database is configured with WAL mode for concurrent reads, NORMAL
// synchronous mode, and a 5-second busy timeout. SQLite allows only one
// writer at a time, so the pool is capped at a single connection.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite store: %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Put implements Store. A primary-key violation maps to ErrExists.
func (s *SQLiteStore) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (name, data) VALUES (?, ?)`, name, data)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("sqlite store put %s: %w", name, ErrExists)
		}
		return fmt.Errorf("sqlite store put %s: %w", name, err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM blobs WHERE name LIKE ? ESCAPE '\' ORDER BY name ASC`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("sqlite store list %s: %w", prefix, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite store list %s: %w", prefix, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store list %s: %w", prefix, err)
	}
	return names, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM blobs WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite store get %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store get %s: %w", name, err)
	}
	return data, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// escapeLike escapes LIKE wildcards so a prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
