package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"certagent/internal/domain"
)

const recordExt = ".rec"

// FileStore stores each record in its own file under dir.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore returns a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore { return &FileStore{dir: dir} }

// Dir returns the root directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key domain.StorageKey) (string, error) {
	name := key.String()
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid record name %q", name)
	}
	return filepath.Join(s.dir, name+recordExt), nil
}

func (s *FileStore) Get(ctx context.Context, key domain.StorageKey) ([]byte, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, false, readErr("file", key, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, false, readErr("file", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok, err := readFile(p)
	if err != nil {
		return nil, false, readErr("file", key, err)
	}
	return b, ok, nil
}

func (s *FileStore) Set(ctx context.Context, key domain.StorageKey, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return writeErr("file", "set", key, err)
	}
	if err := ctx.Err(); err != nil {
		return writeErr("file", "set", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFile(p, value, 0o600); err != nil {
		return writeErr("file", "set", key, err)
	}
	return nil
}

func (s *FileStore) Remove(ctx context.Context, key domain.StorageKey) error {
	p, err := s.path(key)
	if err != nil {
		return writeErr("file", "remove", key, err)
	}
	if err := ctx.Err(); err != nil {
		return writeErr("file", "remove", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := removeFile(p); err != nil {
		return writeErr("file", "remove", key, err)
	}
	return nil
}

var _ domain.KeyStorage = (*FileStore)(nil)
