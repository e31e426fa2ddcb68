// Package instructions serves the prose instruction documents agents carry.
package instructions

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/pleiades-agents/pleiades/internal/storage"
)

// DefaultFile is the instruction document inside an agent directory.
const DefaultFile = "AGENT.md"

// ErrMissing is returned when an agent has no instruction document.
var ErrMissing = errors.New("instructions not found")

// Store resolves an agent name to its instruction text.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
}

// FileStore reads <name>/AGENT.md from storage.
type FileStore struct {
	store *storage.Storage
	file  string
}

// NewFileStore creates a FileStore. An empty file name selects DefaultFile.
func NewFileStore(store *storage.Storage, file string) *FileStore {
	if file == "" {
		file = DefaultFile
	}
	return &FileStore{store: store, file: file}
}

// Get returns the instruction document for name.
func (s *FileStore) Get(ctx context.Context, name string) (string, error) {
	data, err := s.store.Get(ctx, []string{name, s.file})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%s for %s: %w", s.file, name, ErrMissing)
		}
		return "", err
	}
	return string(data), nil
}

// Path returns the host path of the instruction document for name.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.store.BasePath(), name, s.file)
}

// Map is an in-memory Store.
type Map map[string]string

// Get returns the instructions registered for name.
func (m Map) Get(ctx context.Context, name string) (string, error) {
	text, ok := m[name]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrMissing)
	}
	return text, nil
}
