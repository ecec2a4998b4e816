package blob

import (
	"context"
	"errors"
	"io"
)

// Store defines streaming access to release archives addressed by object key.
// Keys are slash-separated paths chosen by the publisher; backends treat them
// as opaque identifiers.
type Store interface {
	// Put streams the reader's content under key, replacing any previous
	// object, and returns the number of bytes stored.
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	// Get opens the object for reading and reports its size. The caller
	// closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	// Stat reports the object's size and whether it exists.
	Stat(ctx context.Context, key string) (size int64, found bool, err error)
	Close() error
}

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// ErrInvalidKey is returned when a key does not fit the backend's key syntax.
var ErrInvalidKey = errors.New("invalid object key")
