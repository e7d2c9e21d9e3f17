// Package history keeps a SQLite ledger of downloads that reached a terminal
// state. It is a read-only view: nothing in it is restored into the manager.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no cgo

	"github.com/tidal-downloader/tidal/internal/engine/types"
)

// FileName is the ledger database inside the state directory.
const FileName = "history.db"

var (
	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("history store is closed")
	// ErrNotFound is returned by Get for unknown ids.
	ErrNotFound = errors.New("history entry not found")
)

// Store is the SQLite-backed ledger.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open creates or opens the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps pragmas in effect
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS downloads (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		filename TEXT NOT NULL,
		dest_path TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		total_size INTEGER NOT NULL DEFAULT 0,
		downloaded INTEGER NOT NULL DEFAULT 0,
		kind TEXT,
		mime TEXT,
		created_at INTEGER NOT NULL,
		completed_at INTEGER NOT NULL,
		time_taken_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_completed ON downloads(completed_at);
	CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Record inserts or replaces the entry for e.ID.
func (s *Store) Record(ctx context.Context, e types.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if e.ID == "" {
		return errors.New("history entry without id")
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now()
	}

	query := `
	INSERT OR REPLACE INTO downloads
		(id, url, filename, dest_path, status, error, total_size, downloaded, kind, mime, created_at, completed_at, time_taken_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.URL,
		e.Filename,
		e.DestPath,
		e.Status,
		e.Error,
		e.TotalSize,
		e.Downloaded,
		e.Kind,
		e.MIME,
		e.CreatedAt.UnixMilli(),
		e.CompletedAt.UnixMilli(),
		e.TimeTaken.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", e.ID, err)
	}
	return nil
}

// List returns the newest entries first. limit <= 0 returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]types.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	query := `
	SELECT id, url, filename, dest_path, status, error, total_size, downloaded, kind, mime, created_at, completed_at, time_taken_ms
	FROM downloads
	ORDER BY completed_at DESC, id
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.HistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns one entry.
func (s *Store) Get(ctx context.Context, id string) (types.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.HistoryEntry{}, ErrClosed
	}

	row := s.db.QueryRowContext(ctx, `
	SELECT id, url, filename, dest_path, status, error, total_size, downloaded, kind, mime, created_at, completed_at, time_taken_ms
	FROM downloads
	WHERE id = ?
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.HistoryEntry{}, ErrNotFound
	}
	return e, err
}

// Delete removes one entry. Unknown ids are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM downloads WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM downloads`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close releases the database. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (types.HistoryEntry, error) {
	var (
		e                      types.HistoryEntry
		errMsg, kind, mime     sql.NullString
		created, completed, ms int64
	)
	err := sc.Scan(&e.ID, &e.URL, &e.Filename, &e.DestPath, &e.Status, &errMsg,
		&e.TotalSize, &e.Downloaded, &kind, &mime, &created, &completed, &ms)
	if err != nil {
		return types.HistoryEntry{}, err
	}
	e.Error = errMsg.String
	e.Kind = kind.String
	e.MIME = mime.String
	e.CreatedAt = time.UnixMilli(created)
	e.CompletedAt = time.UnixMilli(completed)
	e.TimeTaken = time.Duration(ms) * time.Millisecond
	return e, nil
}
