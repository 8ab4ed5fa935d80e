package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend keeps one JSON file per user in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir (mode 0700) if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(userID int64) string {
	return filepath.Join(b.dir, fmt.Sprintf("user_%d.json", userID))
}

// Get reads the user's record file.
func (b *FileBackend) Get(_ context.Context, userID int64) ([]byte, error) {
	data, err := os.ReadFile(b.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put replaces the user's record file atomically via a temp file and rename.
func (b *FileBackend) Put(_ context.Context, userID int64, data []byte) error {
	tmp, err := os.CreateTemp(b.dir, fmt.Sprintf(".user_%d-*.tmp", userID))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path(userID)); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Delete removes the user's record file.
func (b *FileBackend) Delete(_ context.Context, userID int64) error {
	err := os.Remove(b.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Close is a no-op.
func (b *FileBackend) Close() error { return nil }
