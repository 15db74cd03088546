package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const stateFileVersion = 1

var errMalformed = errors.New("malformed state file")

type stateFile struct {
	Version int                        `json:"version"`
	Values  map[string]json.RawMessage `json:"values"`
}

// FileStore keeps every key in one JSON document on disk. The file is
// re-read on each access so separate invocations observe each other's
// writes.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("state file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{path: filepath.Clean(path)}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	value, ok := doc.Values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(value), nil
}

func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if errors.Is(err, errMalformed) {
		// The old document is unreadable either way; start over.
		doc, err = newStateFile(), nil
	}
	if err != nil {
		return err
	}
	doc.Values[key] = json.RawMessage(append([]byte(nil), value...))
	return s.write(doc)
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := doc.Values[key]; !ok {
		return nil
	}
	delete(doc.Values, key)
	return s.write(doc)
}

func (s *FileStore) Close() error {
	return nil
}

func newStateFile() stateFile {
	return stateFile{Version: stateFileVersion, Values: map[string]json.RawMessage{}}
}

func (s *FileStore) read() (stateFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newStateFile(), nil
		}
		return stateFile{}, fmt.Errorf("read state file %s: %w", s.path, err)
	}

	var doc stateFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return stateFile{}, fmt.Errorf("%w %s: %v", errMalformed, s.path, err)
	}
	if doc.Values == nil {
		doc.Values = map[string]json.RawMessage{}
	}
	return doc, nil
}

func (s *FileStore) write(doc stateFile) error {
	doc.Version = stateFileVersion
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
