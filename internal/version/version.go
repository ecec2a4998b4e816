package version

import "fmt"

var (
	// Version is the build's version string, injected via ldflags on release
	// builds. Local builds keep the dev marker.
	Version = "0.0.0-dev"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}

// UserAgent renders the identifier outbound HTTP calls present, so
// coordinator access logs show which build a caller runs.
func UserAgent(binary string) string {
	return binary + "/" + Version
}
