package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// keyPattern restricts keys to slash-separated segments that start with an
// alphanumeric character, which rules out empty segments, dotfiles and any
// form of parent-directory reference.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*(/[A-Za-z0-9][A-Za-z0-9._-]*)*$`)

// FileStore persists each key as a file under a root directory. Slashes in
// keys become subdirectories. Writes go through a temporary file in the
// destination directory followed by a rename, so readers never observe a
// partially written value.
type FileStore struct {
	// root is the directory all keys resolve under.
	root string
	// mu serializes writes so concurrent Put calls on the same key cannot
	// interleave their temp-file renames.
	mu sync.Mutex
}

// filePermissions is the mode for stored values. Records may carry token
// hashes, so group and world access stay off.
const filePermissions = os.FileMode(0o600)

// directoryPermissions is the mode for created key subdirectories.
const directoryPermissions = os.FileMode(0o755)

// NewFileStore creates a file-backed store rooted at the provided directory,
// creating it if necessary.
func NewFileStore(root string) (*FileStore, error) {
	cleaned := filepath.Clean(root)
	if err := os.MkdirAll(cleaned, directoryPermissions); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}

	return &FileStore{root: cleaned}, nil
}

// Get reads the value stored under key. A missing key is reported through the
// found flag, not an error.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, false, err
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("read key %q: %w", key, err)
	}

	return contents, true, nil
}

// Put writes the value under key, replacing any previous value atomically.
func (s *FileStore) Put(_ context.Context, key string, value []byte) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, directoryPermissions); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tempName := temp.Name()

	if _, err = temp.Write(value); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempName)

		return fmt.Errorf("write key %q: %w", key, err)
	}

	if err = temp.Chmod(filePermissions); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempName)

		return fmt.Errorf("set key permissions: %w", err)
	}

	if err = temp.Close(); err != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("close temp file: %w", err)
	}

	if err = os.Rename(tempName, path); err != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("replace key %q: %w", key, err)
	}

	return nil
}

// Delete removes the key. Deleting an absent key is not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete key %q: %w", key, err)
	}

	return nil
}

// Close releases nothing for the file backend.
func (s *FileStore) Close() error {
	return nil
}

// pathFor validates the key and maps it to a path under the store root.
func (s *FileStore) pathFor(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Ensure FileStore implements the Store interface.
var _ Store = (*FileStore)(nil)
