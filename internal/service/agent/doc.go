// Package agent implements one drydock-agent run: it reports the installed
// version and host metrics to the coordinator, and when a newer build is
// offered it downloads, verifies and installs it.
//
// A run is strictly sequential and guarded by an advisory lock beside the
// install root. The previous tree is renamed into the backup directory before
// the staged tree is swapped in with a single rename, so a half-written
// install is never visible. Retries belong to the external scheduler that
// invokes the binary.
package agent
