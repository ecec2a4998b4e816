package kv

import (
	"context"
	"errors"
)

// Store defines the metadata persistence operations the coordinator depends
// on. Get reports absence through the found flag rather than an error so
// callers can distinguish "no such key" from backend failures.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ErrInvalidKey is returned when a key does not fit the backend's key syntax.
var ErrInvalidKey = errors.New("invalid store key")
