// Package statefile persists small bookkeeping records (AI usage, rate limits,
// processed tweets) as whole JSON documents addressed by key.
package statefile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/edgard/civicbot/internal/database"
)

// ErrNotFound is returned by Load when nothing has been saved under a key yet.
var ErrNotFound = errors.New("state not found")

var validKey = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Store reads and writes JSON records by key. Every Save replaces the whole record.
type Store interface {
	Load(ctx context.Context, key string, v any) error
	Save(ctx context.Context, key string, v any) error
}

// FileStore keeps one <key>.json file per record in a directory,
// created on first write.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid state key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Load decodes the record stored under key into v.
func (s *FileStore) Load(_ context.Context, key string, v any) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	data, err := os.ReadFile(p)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read state file %s: %w", p, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode state file %s: %w", p, err)
	}
	return nil
}

// Save writes v under key via a temp file and rename, so readers never see a partial record.
func (s *FileStore) Save(_ context.Context, key string, v any) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to replace state file %s: %w", p, err)
	}
	return nil
}

// KV is the subset of database.Store used by DBStore.
type KV interface {
	GetState(ctx context.Context, key string) ([]byte, error)
	PutState(ctx context.Context, key string, value []byte) error
}

// DBStore keeps records in the state_entries table of the reports database.
type DBStore struct {
	kv KV
}

// NewDBStore returns a DBStore backed by kv.
func NewDBStore(kv KV) *DBStore {
	return &DBStore{kv: kv}
}

// Load decodes the record stored under key into v.
func (s *DBStore) Load(ctx context.Context, key string, v any) error {
	data, err := s.kv.GetState(ctx, key)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode state %q: %w", key, err)
	}
	return nil
}

// Save writes v under key.
func (s *DBStore) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode state %q: %w", key, err)
	}
	return s.kv.PutState(ctx, key, data)
}
