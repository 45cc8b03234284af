// Package photo stores citizen photos and prepares them for media upload.
package photo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/edgard/civicbot/internal/config"
)

// ErrNotFound is returned when a photo reference does not resolve to a stored object.
var ErrNotFound = errors.New("photo not found")

// Store persists photos under opaque references.
type Store interface {
	// Save stores the photo and returns its reference.
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	// Open returns the photo content. The caller closes it.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// New builds the Store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.Dir), nil
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
}

// Allowed reports whether contentType is an accepted photo type.
func Allowed(contentType string) bool {
	_, ok := extensions[strings.ToLower(contentType)]
	return ok
}

// ExtensionFor returns the file extension for an accepted content type, or "".
func ExtensionFor(contentType string) string {
	return extensions[strings.ToLower(contentType)]
}

// NewName returns a fresh object name of the form <unix-ms>-<hex><ext>.
func NewName(now time.Time, contentType string) string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), hex.EncodeToString(b[:]), ExtensionFor(contentType))
}

var validRef = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// LocalStore keeps photos as files in a single directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a LocalStore rooted at dir. The directory is created on first save.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) Save(_ context.Context, name, _ string, r io.Reader) (string, error) {
	if !validRef.MatchString(name) {
		return "", fmt.Errorf("invalid photo name %q", name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create photo dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close photo: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("failed to move photo into place: %w", err)
	}
	return name, nil
}

func (s *LocalStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	if !validRef.MatchString(ref) {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open photo: %w", err)
	}
	return f, nil
}

// ReadAll opens ref and reads it fully, up to limit bytes.
func ReadAll(ctx context.Context, s Store, ref string, limit int64) ([]byte, error) {
	rc, err := s.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("photo exceeds %d bytes", limit)
	}
	return data, nil
}
