// Package registry implements the coordinator's two registries on top of the
// opaque key-value store: client records plus their listing index, and
// artifact descriptors with a mutable latest pointer beside immutable
// per-version entries.
//
// The store has no scan primitive, so listable clients are tracked in a
// single index value maintained adjacent to the records. Index maintenance is
// deliberately not transactional with record writes; a crash between the two
// leaves either an unlisted record or a dangling index entry, and List skips
// dangling entries silently.
package registry
