package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore keeps release archives in a NATS JetStream object-store bucket.
// JetStream chunks large payloads itself, so multi-megabyte archives stream
// through without being buffered whole.
type NATSStore struct {
	// conn is the underlying NATS connection, closed on Close.
	conn *nats.Conn
	// bucket is the JetStream object-store handle all operations go through.
	bucket jetstream.ObjectStore
}

// NewNATSStore connects to the NATS server at url and binds the named
// object-store bucket, creating it when absent.
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

	handle, err := js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{Bucket: bucket})
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("create object-store bucket %q: %w", bucket, err)
	}

	return &NATSStore{
		conn:   conn,
		bucket: handle,
	}, nil
}

// Put streams the reader's content under key and returns the byte count.
func (s *NATSStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	info, err := s.bucket.Put(ctx, jetstream.ObjectMeta{Name: key}, r)
	if err != nil {
		return 0, fmt.Errorf("put object %q: %w", key, err)
	}

	return int64(info.Size), nil
}

// Get opens the object for reading and reports its size.
func (s *NATSStore) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	result, err := s.bucket.Get(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, 0, fmt.Errorf("%w: %q", ErrNotFound, key)
	}

	if err != nil {
		return nil, 0, fmt.Errorf("get object %q: %w", key, err)
	}

	info, err := result.Info()
	if err != nil {
		_ = result.Close()

		return nil, 0, fmt.Errorf("stat object %q: %w", key, err)
	}

	return result, int64(info.Size), nil
}

// Stat reports the object's size and whether it exists.
func (s *NATSStore) Stat(ctx context.Context, key string) (int64, bool, error) {
	info, err := s.bucket.GetInfo(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("stat object %q: %w", key, err)
	}

	return int64(info.Size), true, nil
}

// Close terminates the NATS connection.
func (s *NATSStore) Close() error {
	s.conn.Close()

	return nil
}

// Ensure NATSStore implements the Store interface.
var _ Store = (*NATSStore)(nil)
