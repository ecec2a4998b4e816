// Package version exposes build metadata for the drydock binaries.
//
// Version, Commit and BuildTime are injected via ldflags and default to dev
// values for local builds. Short and Full render the version string for CLI
// output, logs and the metrics a device reports about itself.
package version
