// Package publisher implements the drydock-publisher pipeline: it resolves a
// version, stages the deployable subset of a source tree with generated
// markers and a checksum manifest, packages it as tar.gz, uploads the archive
// to the blob store and registers the release with the coordinator.
//
// The pipeline is strictly sequential and aborts on the first failure, so a
// release is never visible to devices unless every prior step succeeded.
package publisher
