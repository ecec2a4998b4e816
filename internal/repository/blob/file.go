package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// keyPattern restricts object keys to slash-separated segments that start
// with an alphanumeric character, which rules out empty segments, dotfiles
// and any form of parent-directory reference.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*(/[A-Za-z0-9][A-Za-z0-9._-]*)*$`)

// FileStore keeps each object as a file under a root directory. Uploads land
// in a temporary file first and are renamed into place, so a download started
// mid-upload never sees a truncated archive.
type FileStore struct {
	// root is the directory all object keys resolve under.
	root string
	// mu serializes uploads so concurrent Put calls on the same key cannot
	// interleave their temp-file renames.
	mu sync.Mutex
}

// filePermissions is the mode for stored archives.
const filePermissions = os.FileMode(0o644)

// directoryPermissions is the mode for created key subdirectories.
const directoryPermissions = os.FileMode(0o755)

// NewFileStore creates a file-backed object store rooted at the provided
// directory, creating it if necessary.
func NewFileStore(root string) (*FileStore, error) {
	cleaned := filepath.Clean(root)
	if err := os.MkdirAll(cleaned, directoryPermissions); err != nil {
		return nil, fmt.Errorf("create object store root: %w", err)
	}

	return &FileStore{root: cleaned}, nil
}

// Put streams the reader's content under key and returns the byte count.
func (s *FileStore) Put(_ context.Context, key string, r io.Reader) (int64, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, directoryPermissions); err != nil {
		return 0, fmt.Errorf("create object directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp object: %w", err)
	}

	tempName := temp.Name()

	written, err := io.Copy(temp, r)
	if err != nil {
		_ = temp.Close()
		_ = os.Remove(tempName)

		return 0, fmt.Errorf("write object %q: %w", key, err)
	}

	if err = temp.Chmod(filePermissions); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempName)

		return 0, fmt.Errorf("set object permissions: %w", err)
	}

	if err = temp.Close(); err != nil {
		_ = os.Remove(tempName)

		return 0, fmt.Errorf("close temp object: %w", err)
	}

	if err = os.Rename(tempName, path); err != nil {
		_ = os.Remove(tempName)

		return 0, fmt.Errorf("replace object %q: %w", key, err)
	}

	return written, nil
}

// Get opens the object for reading and reports its size.
func (s *FileStore) Get(_ context.Context, key string) (io.ReadCloser, int64, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, 0, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %q", ErrNotFound, key)
		}

		return nil, 0, fmt.Errorf("open object %q: %w", key, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()

		return nil, 0, fmt.Errorf("stat object %q: %w", key, err)
	}

	return file, info.Size(), nil
}

// Stat reports the object's size and whether it exists.
func (s *FileStore) Stat(_ context.Context, key string) (int64, bool, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return 0, false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("stat object %q: %w", key, err)
	}

	return info.Size(), true, nil
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
