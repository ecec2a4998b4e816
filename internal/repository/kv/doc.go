// Package kv implements the opaque key-value store backing the coordinator's
// metadata: client records, the client index, and artifact descriptors.
//
// Two backends satisfy the Store interface: FileStore keeps one file per key
// under a root directory, and NATSStore delegates to a NATS JetStream
// key-value bucket. Callers treat values as opaque bytes; encoding and key
// layout belong to the registry layer.
package kv
