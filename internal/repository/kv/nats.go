package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore keeps metadata in a NATS JetStream key-value bucket, which gives
// several coordinator replicas a shared view without a separate database.
type NATSStore struct {
	// conn is the underlying NATS connection, closed on Close.
	conn *nats.Conn
	// bucket is the JetStream key-value handle all operations go through.
	bucket jetstream.KeyValue
}

// NewNATSStore connects to the NATS server at url and binds the named
// key-value bucket, creating it when absent.
func NewNATSStore(ctx context.Context, url, bucket string) (*NATSStore, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	handle, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("create key-value bucket %q: %w", bucket, err)
	}

	return &NATSStore{
		conn:   conn,
		bucket: handle,
	}, nil
}

// Get reads the value stored under key. A missing key is reported through the
// found flag, not an error.
func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := s.bucket.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("get key %q: %w", key, err)
	}

	return entry.Value(), true, nil
}

// Put writes the value under key, replacing any previous value.
func (s *NATSStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.bucket.Put(ctx, key, value); err != nil {
		return fmt.Errorf("put key %q: %w", key, err)
	}

	return nil
}

// Delete removes the key. Deleting an absent key is not an error.
func (s *NATSStore) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete key %q: %w", key, err)
	}

	return nil
}

// Close terminates the NATS connection.
func (s *NATSStore) Close() error {
	s.conn.Close()

	return nil
}

// Ensure NATSStore implements the Store interface.
var _ Store = (*NATSStore)(nil)
