package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileStore persists entries as a flat YAML mapping. Every write rewrites the
// document through a temp file and rename so readers never see a partial file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// DefaultFilePath returns ~/.chatbot/storage.yaml, or a relative fallback when
// the home directory cannot be resolved.
func DefaultFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".chatbot", "storage.yaml")
	}
	return filepath.Join(home, ".chatbot", "storage.yaml")
}

// NewFileStore prepares the directory holding path. The file itself is created
// on the first write.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = DefaultFilePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create storage directory")
	}
	return &FileStore{path: path}, nil
}

// Path reports the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return "", false, err
	}
	value, ok := items[key]
	return value, ok, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return err
	}
	items[key] = value
	return s.save(items)
}

// SetIfAbsent reloads the file under the lock, so a value written by another
// process since the last read wins over value.
func (s *FileStore) SetIfAbsent(_ context.Context, key, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return "", err
	}
	if existing, ok := items[key]; ok && existing != "" {
		return existing, nil
	}
	items[key] = value
	if err := s.save(items); err != nil {
		return "", err
	}
	return value, nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := items[key]; !ok {
		return nil
	}
	delete(items, key)
	return s.save(items)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) load() (map[string]string, error) {
	items := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return items, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read storage file")
	}
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrapf(err, "decode storage file %s", s.path)
	}
	if items == nil {
		items = make(map[string]string)
	}
	return items, nil
}

func (s *FileStore) save(items map[string]string) error {
	data, err := yaml.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "encode storage file")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".storage-*.yaml")
	if err != nil {
		return errors.Wrap(err, "create temp storage file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp storage file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp storage file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "replace storage file")
	}
	return nil
}
