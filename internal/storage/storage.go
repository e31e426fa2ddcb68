// Package storage provides file access to the agents tree over an afero filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

var (
	ErrNotFound = errors.New("not found")
)

// Storage reads and writes files below a base directory.
type Storage struct {
	fs       afero.Fs
	basePath string
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
}

// New creates a new Storage instance rooted at basePath on fs.
func New(fs afero.Fs, basePath string) *Storage {
	return &Storage{
		fs:       fs,
		basePath: basePath,
		locks:    make(map[string]*sync.Mutex),
	}
}

// NewOS creates a Storage on the host filesystem.
func NewOS(basePath string) *Storage {
	return New(afero.NewOsFs(), basePath)
}

// BasePath returns the directory all paths are relative to.
func (s *Storage) BasePath() string {
	return s.basePath
}

// Fs returns the underlying filesystem.
func (s *Storage) Fs() afero.Fs {
	return s.fs
}

// pathToFile converts a path slice to a file path.
func (s *Storage) pathToFile(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

// Get reads a file from storage.
func (s *Storage) Get(ctx context.Context, path []string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, s.pathToFile(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Put writes a file, replacing it atomically through a temp file and rename.
func (s *Storage) Put(ctx context.Context, path []string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filePath := s.pathToFile(path)

	if err := s.fs.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := s.getLock(filePath)
	lock.Lock()
	defer lock.Unlock()

	tmpPath := filePath + ".tmp"
	if err := afero.WriteFile(s.fs, tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := s.fs.Rename(tmpPath, filePath); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Delete removes a file or directory tree. Missing paths are not an error.
func (s *Storage) Delete(ctx context.Context, path []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filePath := s.pathToFile(path)

	lock := s.getLock(filePath)
	lock.Lock()
	defer lock.Unlock()

	if err := s.fs.RemoveAll(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete: %w", err)
	}
	return nil
}

// List returns the names of the subdirectories at a path in sorted order.
func (s *Storage) List(ctx context.Context, path []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.fs, s.pathToFile(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	items := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			items = append(items, entry.Name())
		}
	}
	sort.Strings(items)
	return items, nil
}

// Glob returns the slash-separated paths relative to the base directory that
// match a doublestar pattern, in sorted order. A missing base directory yields
// no matches.
func (s *Storage) Glob(ctx context.Context, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}
	if ok, _ := afero.DirExists(s.fs, s.basePath); !ok {
		return []string{}, nil
	}

	matches := []string{}
	err := afero.Walk(s.fs, s.basePath, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(pattern, rel); ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.basePath, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Exists checks if a path exists.
func (s *Storage) Exists(ctx context.Context, path []string) bool {
	ok, err := afero.Exists(s.fs, s.pathToFile(path))
	return err == nil && ok
}

// getLock returns the in-process lock for a path.
func (s *Storage) getLock(filePath string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[filePath]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[filePath] = lock
	}
	return lock
}
