package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// ErrCorruptStore is returned by Load when the file exists but is not valid JSON
// for the target type.
var ErrCorruptStore = errors.New("json store: corrupt file")

// JSONStore keeps one JSON document in a file. Device-local data is private,
// so the file is written 0600.
type JSONStore struct {
	mu   sync.RWMutex
	path string
}

func NewJSONStore(dataDir, filename string) (*JSONStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("json store: create %s: %w", dataDir, err)
	}
	return &JSONStore{path: filepath.Join(dataDir, filename)}, nil
}

func (s *JSONStore) Path() string {
	return s.path
}

// Load decodes the document into v. A missing or empty file leaves v untouched.
func (s *JSONStore) Load(v interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("json store: read: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptStore, s.path, err)
	}
	return nil
}

// Save replaces the document. Readers see either the old or the new file.
func (s *JSONStore) Save(v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("json store: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.path, append(raw, '\n'), 0o600)
}

func (s *JSONStore) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.path)
	return err == nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("json store: temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("json store: write: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("json store: sync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("json store: close: %w", err)
	}
	if err = os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("json store: chmod: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("json store: rename: %w", err)
	}
	return nil
}
