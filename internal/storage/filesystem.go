package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore writes each kind into its own directory.
type FileStore struct {
	dirs map[Kind]string
}

func NewFileStore(dirs map[Kind]string) (*FileStore, error) {
	for kind, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s directory %q: %w", kind, dir, err)
		}
	}
	return &FileStore{dirs: dirs}, nil
}

func (s *FileStore) path(kind Kind, name string) (string, error) {
	dir, ok := s.dirs[kind]
	if !ok {
		return "", fmt.Errorf("no directory configured for %s", kind)
	}
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return filepath.Join(dir, name), nil
}

func (s *FileStore) Put(_ context.Context, kind Kind, name string, data []byte) (string, error) {
	path, err := s.path(kind, name)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(path, data, 0o640); err != nil {
		return "", err
	}
	return path, nil
}

// writeAtomic writes through a uniquely named temp file in the target
// directory so concurrent writers of one name never share a temp path.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, kind Kind, name string) ([]byte, error) {
	path, err := s.path(kind, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, err
}
