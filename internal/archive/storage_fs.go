package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// FSStorage implements Storage on the local filesystem.
type FSStorage struct {
	basePath string
}

// NewFSStorage creates the base directory if needed.
func NewFSStorage(basePath string) (*FSStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, err
	}
	return &FSStorage{basePath: basePath}, nil
}

func (s *FSStorage) path(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

func (s *FSStorage) Save(ctx context.Context, key string, data io.Reader, size int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return 0, err
	}
	f, err := os.Create(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(f, data)
}
