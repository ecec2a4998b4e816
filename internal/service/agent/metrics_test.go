package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetbay/drydock/internal/version"
)

func TestCollectMetrics(t *testing.T) {
	t.Parallel()

	metrics := collectMetrics(context.Background(), t.TempDir())

	require.Equal(t, version.Short(), metrics["agentVersion"])

	// Host probes are best effort, so only their combined presence is a
	// reasonable expectation here.
	require.Greater(t, len(metrics), 1)
}
