// Package blob implements the opaque object store holding release archives.
//
// The coordinator streams archives out of it for device downloads and the
// publisher streams freshly packaged archives into it. FileStore keeps
// objects under a root directory, NATSStore delegates to a NATS JetStream
// object-store bucket.
package blob
