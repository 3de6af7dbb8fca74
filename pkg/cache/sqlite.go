package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rs/zerolog"
)

// SQLiteStore persists entries in a SQLite database, one row per key.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex sync.Mutex
	logger     zerolog.Logger
}

// NewSQLiteStore opens the database file. An empty filename opens a shared
// in-memory database.
func NewSQLiteStore(filename string, logger zerolog.Logger) (*SQLiteStore, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", filename, err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			key TEXT PRIMARY KEY,
			status INTEGER NOT NULL,
			header BLOB,
			body BLOB,
			content_type TEXT,
			captured_at INTEGER NOT NULL,
			source_modified INTEGER NOT NULL
		)`,
		"PRAGMA journal_mode=WAL",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Get returns the entry for key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	var (
		entry          Entry
		header         []byte
		capturedAt     int64
		sourceModified int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, header, body, content_type, captured_at, source_modified
		FROM entries WHERE key = ?`, key).
		Scan(&entry.Status, &header, &entry.Body, &entry.ContentType, &capturedAt, &sourceModified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("sqlite get: %w", err)
	}

	entry.Header = http.Header{}
	if len(header) > 0 {
		if err := json.Unmarshal(header, &entry.Header); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
	}
	entry.Key = key
	entry.CapturedAt = fromUnixNano(capturedAt)
	entry.SourceModified = fromUnixNano(sourceModified)
	return &entry, nil
}

// Put stores entry under key, replacing any existing row.
func (s *SQLiteStore) Put(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO entries
		(key, status, header, body, content_type, captured_at, source_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key, entry.Status, header, entry.Body, entry.ContentType,
		toUnixNano(entry.CapturedAt), toUnixNano(entry.SourceModified))
	if err != nil {
		return fmt.Errorf("sqlite put: %w", err)
	}
	return nil
}

// Invalidate removes key.
func (s *SQLiteStore) Invalidate(ctx context.Context, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// InvalidateAll removes every row.
func (s *SQLiteStore) InvalidateAll(ctx context.Context) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM entries")
	if err != nil {
		return fmt.Errorf("sqlite delete all: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Debug().Int64("removed", n).Msg("Flushed sqlite cache")
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// toUnixNano keeps the zero time distinguishable from the epoch.
func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
