package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// entryPrefix namespaces entry records inside the database.
const entryPrefix = "e:"

func init() {
	// Ensure http.Header is registered for gob.
	gob.Register(http.Header{})
}

// LevelDBStore persists entries in a local LevelDB database.
type LevelDBStore struct {
	db     *leveldb.DB
	path   string
	logger zerolog.Logger
}

// NewLevelDBStore opens (or creates) the database at path.
func NewLevelDBStore(path string, logger zerolog.Logger) (*LevelDBStore, error) {
	if path == "" {
		return nil, fmt.Errorf("leveldb path is required")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDBStore{db: db, path: path, logger: logger}, nil
}

// Get returns the entry for key.
func (s *LevelDBStore) Get(_ context.Context, key string) (*Entry, error) {
	b, err := s.db.Get([]byte(entryPrefix+key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	var entry Entry
	if err := decodeGob(b, &entry); err != nil {
		_ = s.db.Delete([]byte(entryPrefix+key), nil)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}

// Put stores entry under key.
func (s *LevelDBStore) Put(_ context.Context, key string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	b, err := encodeGob(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.db.Put([]byte(entryPrefix+key), b, nil); err != nil {
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

// Invalidate removes key.
func (s *LevelDBStore) Invalidate(_ context.Context, key string) error {
	if err := s.db.Delete([]byte(entryPrefix+key), nil); err != nil {
		return fmt.Errorf("leveldb delete: %w", err)
	}
	return nil
}

// InvalidateAll deletes every entry record in one batch.
func (s *LevelDBStore) InvalidateAll(_ context.Context) error {
	it := s.db.NewIterator(util.BytesPrefix([]byte(entryPrefix)), nil)
	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return fmt.Errorf("leveldb iterate: %w", err)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb batch delete: %w", err)
	}
	s.logger.Debug().Int("removed", batch.Len()).Str("path", s.path).Msg("Flushed leveldb cache")
	return nil
}

// Close closes the database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

// ---- encoding ----

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	dec := gob.NewDecoder(bytes.NewReader(b))
	return dec.Decode(v)
}
