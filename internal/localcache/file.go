package localcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/starford/onyx/internal/apperr"
)

const tmpPrefix = ".onyx-tmp-"

var safeKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileStore keeps one JSON file per key under a directory.
type FileStore struct {
	root string
}

// NewFileStore creates the directory if needed and returns a store rooted there.
func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("localcache: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("localcache: mkdir root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("localcache: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("localcache: root is not a directory: %s", abs)
	}
	return &FileStore{root: abs}, nil
}

// Path maps key to its file. Keys outside [A-Za-z0-9_-] are rejected, which
// also rules out any traversal out of the root.
func (f *FileStore) Path(key string) (string, error) {
	if !safeKey.MatchString(key) {
		return "", fmt.Errorf("localcache: bad key %q: %w", key, apperr.ErrInvalid)
	}
	return filepath.Join(f.root, key+".json"), nil
}

// Get reads the file of key.
func (f *FileStore) Get(key string) ([]byte, error) {
	p, err := f.Path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("localcache: %s: %w", key, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("localcache: read %s: %w", key, err)
	}
	return data, nil
}

// Set atomically writes value: tmp file → fsync → rename.
func (f *FileStore) Set(key string, value []byte) error {
	p, err := f.Path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.root, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("localcache: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(value); err != nil {
		return fmt.Errorf("localcache: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("localcache: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("localcache: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("localcache: rename: %w", err)
	}
	success = true
	return nil
}

func isTemp(name string) bool {
	return strings.HasPrefix(filepath.Base(name), tmpPrefix)
}
