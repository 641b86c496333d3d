package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/eshotmap/eshot_core/internal/models"
)

// FileStore persists raw feed bytes as flat files in one directory
// (stops.csv, lines.csv). Writes go to a temp file in the same directory
// and are renamed into place, so readers never see a partial file.
type FileStore struct {
	dir string
	mu  sync.Mutex // serializes writers
}

// NewFileStore creates the cache directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("cache directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// DefaultDir returns the per-user cache directory for the feeds
func DefaultDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "eshot")
}

// Dir returns the directory holding the cache files
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the cache file path for a resource
func (s *FileStore) Path(res models.Resource) string {
	return filepath.Join(s.dir, string(res)+".csv")
}

// Exists reports whether a persisted copy of res is present
func (s *FileStore) Exists(res models.Resource) bool {
	info, err := os.Stat(s.Path(res))
	return err == nil && info.Mode().IsRegular()
}

// Read returns the persisted bytes for res
func (s *FileStore) Read(res models.Resource) ([]byte, error) {
	data, err := os.ReadFile(s.Path(res))
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file for %s: %w", res, err)
	}
	return data, nil
}

// ModTime returns when res was last written.
// ok is false when there is no persisted copy.
func (s *FileStore) ModTime(res models.Resource) (time.Time, bool) {
	info, err := os.Stat(s.Path(res))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Write replaces the persisted copy of res with data
func (s *FileStore) Write(res models.Resource, data []byte) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.Path(res)
	tmp, err := os.CreateTemp(s.dir, "."+string(res)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", res, err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}

	if err = os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", tmpName, target, err)
	}
	return nil
}

// Remove deletes the persisted copy of res; a missing file is not an error
func (s *FileStore) Remove(res models.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(res)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache file for %s: %w", res, err)
	}
	return nil
}
