package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
) WITHOUT ROWID;
`

// SQLiteKV implements KV on a single SQLite table. TEXT keys use the BINARY
// collation, so ordering matches bytewise key comparison.
type SQLiteKV struct {
	db *sql.DB
}

// NewSQLiteKV opens (or creates) the database at path.
func NewSQLiteKV(path string, busyTimeout time.Duration) (*SQLiteKV, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &SQLiteKV{db: db}, nil
}

func (s *SQLiteKV) Commit(ctx context.Context, entries ...Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			e.Key, e.Value)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCommitFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	return nil
}

func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *SQLiteKV) List(ctx context.Context, sel Selector, opts ListOptions) ([]Entry, error) {
	query := `SELECT key, value FROM kv WHERE key >= ?`
	args := []any{sel.Prefix}
	if upper := sel.upperBound(); upper != "" {
		query += ` AND key < ?`
		args = append(args, upper)
	}
	if opts.Reverse {
		query += ` ORDER BY key DESC`
	} else {
		query += ` ORDER BY key ASC`
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteKV) Delete(ctx context.Context, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteKV) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteKV) Close() error {
	return s.db.Close()
}
