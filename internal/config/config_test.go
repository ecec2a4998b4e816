package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks defaulting and format validation for operator settings.
func TestValidate(t *testing.T) {
	t.Parallel()

	// A zero config is usable: everything role-agnostic has a default.
	cfg := new(Config)
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultListenAddress, cfg.Server.ListenAddress)
	require.Equal(t, Duration(DefaultTimeout), cfg.Timeout)
	require.Equal(t, Duration(DefaultPollInterval), cfg.Server.PollInterval)
	require.Equal(t, DefaultLogLevel, cfg.LogLevel)
	require.Equal(t, BackendFile, cfg.Stores.Metadata.Backend)
	require.Equal(t, DefaultMetadataPath, cfg.Stores.Metadata.Path)
	require.Equal(t, BackendFile, cfg.Stores.Blob.Backend)
	require.Equal(t, DefaultBlobPath, cfg.Stores.Blob.Path)
	require.Equal(t, DefaultObjectKeyPrefix, cfg.Publish.ObjectKeyPrefix)

	// Bad listen address.
	cfg = &Config{Server: ServerConfig{ListenAddress: "not an address"}}
	require.Error(t, Validate(cfg))

	// Bad coordinator URL.
	cfg = &Config{CoordinatorURL: "::not-a-url"}
	require.Error(t, Validate(cfg))

	// Unknown store backend.
	cfg = &Config{Stores: StoresConfig{Metadata: StoreConfig{Backend: "postgres"}}}
	require.ErrorIs(t, Validate(cfg), errUnknownBackend)

	// NATS backend needs a URL; the bucket has a default.
	cfg = &Config{Stores: StoresConfig{Blob: StoreConfig{Backend: BackendNATS}}}
	require.ErrorIs(t, Validate(cfg), errNATSURLRequired)

	cfg = &Config{Stores: StoresConfig{Blob: StoreConfig{Backend: BackendNATS, URL: "nats://127.0.0.1:4222"}}}
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultBlobBucket, cfg.Stores.Blob.Bucket)

	// Nil config.
	require.ErrorIs(t, Validate(nil), errConfigIsNotSet)
}

// TestLoadParsesHumanReadableDurations ensures operators can write "90s"
// instead of nanosecond counts.
func TestLoadParsesHumanReadableDurations(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "drydock.yaml")
	contents := `
coordinator_url: http://127.0.0.1:8844
admin_token: swordfish
timeout: 90s
server:
  listen_address: 127.0.0.1:8844
  poll_interval: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Duration(90*time.Second), cfg.Timeout)
	require.Equal(t, Duration(10*time.Minute), cfg.Server.PollInterval)
	require.Equal(t, "swordfish", cfg.AdminToken)
}

// TestSaveLoadRoundtrip ensures settings persist and load back unchanged.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "drydock.yaml")

	cfg := &Config{
		CoordinatorURL: "https://updates.example.net",
		AdminToken:     "swordfish",
		Timeout:        Duration(30 * time.Second),
		Server: ServerConfig{
			ListenAddress:    "127.0.0.1:9900",
			DocumentationURL: "https://docs.example.net/drydock",
		},
		Publish: PublishConfig{
			Source:  "/srv/drydock-src",
			Include: []string{"installer", "docs"},
		},
	}

	require.NoError(t, Save(path, cfg))

	// The file carries the admin token, so it must stay owner-only.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.CoordinatorURL, loaded.CoordinatorURL)
	require.Equal(t, cfg.AdminToken, loaded.AdminToken)
	require.Equal(t, cfg.Timeout, loaded.Timeout)
	require.Equal(t, cfg.Server.ListenAddress, loaded.Server.ListenAddress)
	require.Equal(t, cfg.Publish.Include, loaded.Publish.Include)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
