package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeDeviceFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "agent.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestLoadDevice(t *testing.T) {
	t.Parallel()

	path := writeDeviceFile(t, `
coordinator_url = "http://coordinator.lan:8844"
client_id = "den-42"
client_token = "super-secret"
timeout = "45s"
entrypoints = ["installer/drydock-install.sh"]
services = ["smbd"]
`)

	cfg, err := LoadDevice(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "http://coordinator.lan:8844", cfg.CoordinatorURL)
	require.Equal(t, "den-42", cfg.ClientID)
	require.Equal(t, "super-secret", cfg.ClientToken)
	require.Equal(t, Duration(45*time.Second), cfg.Timeout)
	require.Equal(t, []string{"installer/drydock-install.sh"}, cfg.Entrypoints)
	require.Equal(t, []string{"smbd"}, cfg.Services)

	// Optional paths fall back to defaults.
	require.Equal(t, DefaultInstallRoot, cfg.InstallRoot)
	require.Equal(t, DefaultBackupDir, cfg.BackupDir)
	require.Equal(t, DefaultBinDir, cfg.BinDir)
	require.NotEmpty(t, cfg.ScratchDir)
}

func TestLoadDeviceMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadDevice(context.Background(), filepath.Join(t.TempDir(), "absent.conf"))
	require.Error(t, err)
}

func TestLoadDeviceMalformed(t *testing.T) {
	t.Parallel()

	path := writeDeviceFile(t, `coordinator_url = not quoted`)

	_, err := LoadDevice(context.Background(), path)
	require.Error(t, err)
}

func TestValidateDeviceRequiredFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		contents string
		want     error
	}{
		{
			name:     "missing url",
			contents: "client_id = \"den-42\"\nclient_token = \"tok\"\n",
			want:     errCoordinatorURLRequired,
		},
		{
			name:     "missing id",
			contents: "coordinator_url = \"http://c:1\"\nclient_token = \"tok\"\n",
			want:     errClientIDRequired,
		},
		{
			name:     "missing token",
			contents: "coordinator_url = \"http://c:1\"\nclient_id = \"den-42\"\n",
			want:     errClientTokenRequired,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := writeDeviceFile(t, tc.contents)

			_, err := LoadDevice(context.Background(), path)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

// TestLoadDeviceLooseModeStillLoads checks a group-readable file is accepted,
// since the exposed mode is a warning, not a failure.
func TestLoadDeviceLooseModeStillLoads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "agent.conf")
	contents := "coordinator_url = \"http://c:1\"\nclient_id = \"den-42\"\nclient_token = \"tok\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadDevice(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "den-42", cfg.ClientID)
}
