package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestVersionStrings ensures Short and Full render consistent information.
func TestVersionStrings(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, Short())
	require.Contains(t, Full(), Short())
	require.Contains(t, Full(), Commit)
}

// TestUserAgent ensures the identifier carries the binary name and build.
func TestUserAgent(t *testing.T) {
	t.Parallel()

	require.Equal(t, "drydock-agent/"+Version, UserAgent("drydock-agent"))
}
