package agent

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	fleetapi "github.com/fleetbay/drydock/internal/api/http/fleet"
	"github.com/fleetbay/drydock/internal/domain/fleet"
	"github.com/fleetbay/drydock/internal/repository/blob"
	"github.com/fleetbay/drydock/internal/repository/kv"
	"github.com/fleetbay/drydock/internal/repository/registry"
)

const (
	testClientID    = "den-42"
	testClientToken = "s3cret"
	testScript      = "#!/bin/bash\nexit 0\n"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// coordinatorHarness is a live coordinator with one registered device and
// direct handles for seeding releases.
type coordinatorHarness struct {
	server    *httptest.Server
	artifacts *registry.ArtifactRegistry
	blobs     blob.Store
}

func newCoordinator(t *testing.T) *coordinatorHarness {
	t.Helper()

	meta, err := kv.NewFileStore(t.TempDir())
	require.NoError(t, err)

	blobs, err := blob.NewFileStore(t.TempDir())
	require.NoError(t, err)

	clients := registry.NewClientRegistry(meta)
	artifacts := registry.NewArtifactRegistry(meta)

	router, err := fleetapi.NewServer(clients, artifacts, blobs, fleetapi.Options{
		AdminSecret:  "agent-test-secret",
		PollInterval: time.Minute,
	}).Router()
	require.NoError(t, err)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	_, err = clients.Upsert(context.Background(), testClientID, registry.UpsertParams{Token: testClientToken})
	require.NoError(t, err)

	return &coordinatorHarness{server: server, artifacts: artifacts, blobs: blobs}
}

// agentDirs are the device-side directories one test run works with.
type agentDirs struct {
	installRoot string
	backupDir   string
	binDir      string
	scratchDir  string
}

func newAgentDirs(t *testing.T) agentDirs {
	t.Helper()

	root := t.TempDir()

	return agentDirs{
		installRoot: filepath.Join(root, "drydock"),
		backupDir:   filepath.Join(root, "backups"),
		binDir:      filepath.Join(root, "bin"),
		scratchDir:  t.TempDir(),
	}
}

// writeDeviceConfig persists a device settings file pointing at the harness.
func writeDeviceConfig(t *testing.T, h *coordinatorHarness, dirs agentDirs) string {
	t.Helper()

	contents := fmt.Sprintf(`coordinator_url = %q
client_id = %q
client_token = %q
install_root = %q
backup_dir = %q
bin_dir = %q
scratch_dir = %q
entrypoints = ["scripts/run.sh"]
`, h.server.URL, testClientID, testClientToken,
		dirs.installRoot, dirs.backupDir, dirs.binDir, dirs.scratchDir)

	path := filepath.Join(t.TempDir(), "agent.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

// publishRelease builds a minimal release archive, uploads it and registers
// its metadata, just like the publisher would.
func publishRelease(t *testing.T, h *coordinatorHarness, version string) *fleet.Artifact {
	t.Helper()

	return publishReleaseStaged(t, h, version, version)
}

// publishReleaseStaged lets the staged version marker differ from the
// registered one, to provoke the staging sanity check.
func publishReleaseStaged(t *testing.T, h *coordinatorHarness, version, stagedVersion string) *fleet.Artifact {
	t.Helper()

	scriptDigest := sha256.Sum256([]byte(testScript))
	versionBody := stagedVersion + "\n"
	versionDigest := sha256.Sum256([]byte(versionBody))

	manifest := hex.EncodeToString(versionDigest[:]) + "  " + versionFilename + "\n" +
		hex.EncodeToString(scriptDigest[:]) + "  scripts/run.sh\n"

	archive := buildArchive(t, []tarEntry{
		{name: checksumsFilename, mode: 0o644, data: manifest},
		{name: versionFilename, mode: 0o644, data: versionBody},
		{name: "scripts/", dir: true},
		{name: "scripts/run.sh", mode: 0o755, data: testScript},
	})

	objectKey := "releases/" + version + "/drydock-" + version + ".tar.gz"

	written, err := h.blobs.Put(context.Background(), objectKey, bytes.NewReader(archive))
	require.NoError(t, err)
	require.Equal(t, int64(len(archive)), written)

	digest := sha256.Sum256(archive)

	stored, err := h.artifacts.Publish(context.Background(), &fleet.Artifact{
		Version:   version,
		ObjectKey: objectKey,
		SHA256:    hex.EncodeToString(digest[:]),
		Size:      int64(len(archive)),
	})
	require.NoError(t, err)

	return stored
}

// requireNoLeftovers asserts the run cleaned its scratch and staging state.
func requireNoLeftovers(t *testing.T, dirs agentDirs) {
	t.Helper()

	scratch, err := os.ReadDir(dirs.scratchDir)
	require.NoError(t, err)
	require.Empty(t, scratch)

	parent, err := os.ReadDir(filepath.Dir(dirs.installRoot))
	require.NoError(t, err)

	for _, entry := range parent {
		require.False(t, strings.HasPrefix(entry.Name(), ".drydock-stage-"),
			"staging directory %s left behind", entry.Name())
		require.NotEqual(t, filepath.Base(dirs.installRoot)+".lock", entry.Name(),
			"lock file left behind")
	}
}

func TestRunInstallsOfferedRelease(t *testing.T) {
	t.Parallel()

	h := newCoordinator(t)
	dirs := newAgentDirs(t)
	configPath := writeDeviceConfig(t, h, dirs)

	publishRelease(t, h, "v1.0.0")

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath}))

	require.Equal(t, "v1.0.0", installedVersion(dirs.installRoot))

	script, err := os.ReadFile(filepath.Join(dirs.installRoot, "scripts", "run.sh"))
	require.NoError(t, err)
	require.Equal(t, testScript, string(script))

	propagated, err := os.ReadFile(filepath.Join(dirs.binDir, "run.sh"))
	require.NoError(t, err)
	require.Equal(t, testScript, string(propagated))

	info, err := os.Stat(filepath.Join(dirs.binDir, "run.sh"))
	require.NoError(t, err)
	require.Equal(t, entrypointFileMode, info.Mode().Perm())

	// First install had nothing to displace.
	_, err = os.Stat(dirs.backupDir)
	require.True(t, os.IsNotExist(err))

	requireNoLeftovers(t, dirs)

	// A second run sees the installed version and changes nothing.
	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath}))
	require.Equal(t, "v1.0.0", installedVersion(dirs.installRoot))

	_, err = os.Stat(dirs.backupDir)
	require.True(t, os.IsNotExist(err))
}

func TestRunUpgradeBacksUpPreviousTree(t *testing.T) {
	t.Parallel()

	h := newCoordinator(t)
	dirs := newAgentDirs(t)
	configPath := writeDeviceConfig(t, h, dirs)

	// A previous, manually provisioned install.
	require.NoError(t, os.MkdirAll(dirs.installRoot, 0o755))
	require.NoError(t,
		os.WriteFile(filepath.Join(dirs.installRoot, versionFilename), []byte("v0.9.0\n"), 0o644))
	require.NoError(t,
		os.WriteFile(filepath.Join(dirs.installRoot, "legacy.txt"), []byte("old\n"), 0o644))

	publishRelease(t, h, "v1.1.0")

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath}))

	require.Equal(t, "v1.1.0", installedVersion(dirs.installRoot))

	// The displaced tree is retained whole under its old version.
	backups, err := os.ReadDir(dirs.backupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.True(t, strings.HasPrefix(backups[0].Name(), "v0.9.0-"))

	legacy, err := os.ReadFile(filepath.Join(dirs.backupDir, backups[0].Name(), "legacy.txt"))
	require.NoError(t, err)
	require.Equal(t, "old\n", string(legacy))

	_, err = os.Stat(filepath.Join(dirs.installRoot, "legacy.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestRunCheckMode(t *testing.T) {
	t.Parallel()

	h := newCoordinator(t)
	dirs := newAgentDirs(t)
	configPath := writeDeviceConfig(t, h, dirs)

	publishRelease(t, h, "v1.0.0")

	err := Run(context.Background(), &Options{ConfigPath: configPath, Check: true})
	require.ErrorIs(t, err, ErrUpdateAvailable)

	// Check mode never installs.
	_, err = os.Stat(dirs.installRoot)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath}))

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath, Check: true}))
}

func TestRunForceReinstalls(t *testing.T) {
	t.Parallel()

	h := newCoordinator(t)
	dirs := newAgentDirs(t)
	configPath := writeDeviceConfig(t, h, dirs)

	publishRelease(t, h, "v1.0.0")

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath}))
	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath, Force: true}))

	require.Equal(t, "v1.0.0", installedVersion(dirs.installRoot))

	// The reinstall displaced the identical previous tree.
	backups, err := os.ReadDir(dirs.backupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.True(t, strings.HasPrefix(backups[0].Name(), "v1.0.0-"))
}

func TestRunPinnedVersion(t *testing.T) {
	t.Parallel()

	h := newCoordinator(t)
	dirs := newAgentDirs(t)
	configPath := writeDeviceConfig(t, h, dirs)

	publishRelease(t, h, "v1.0.0")
	publishRelease(t, h, "v2.0.0")

	require.NoError(t, Run(context.Background(), &Options{
		ConfigPath: configPath,
		Version:    "v1.0.0",
	}))

	require.Equal(t, "v1.0.0", installedVersion(dirs.installRoot))
}

func TestRunFailsOnChecksumMismatch(t *testing.T) {
	t.Parallel()

	h := newCoordinator(t)
	dirs := newAgentDirs(t)
	configPath := writeDeviceConfig(t, h, dirs)

	artifact := publishRelease(t, h, "v1.0.0")

	// Corrupt the stored payload after registration.
	_, err := h.blobs.Put(context.Background(), artifact.ObjectKey, strings.NewReader("corrupted"))
	require.NoError(t, err)

	err = Run(context.Background(), &Options{ConfigPath: configPath})
	require.ErrorIs(t, err, errChecksumMismatch)

	// The download was discarded and nothing was installed.
	_, err = os.Stat(dirs.installRoot)
	require.True(t, os.IsNotExist(err))

	requireNoLeftovers(t, dirs)
}

func TestRunFailsOnStagedVersionMismatch(t *testing.T) {
	t.Parallel()

	h := newCoordinator(t)
	dirs := newAgentDirs(t)
	configPath := writeDeviceConfig(t, h, dirs)

	publishReleaseStaged(t, h, "v1.0.0", "v9.9.9")

	err := Run(context.Background(), &Options{ConfigPath: configPath})
	require.ErrorIs(t, err, errStagedVersionMismatch)

	_, err = os.Stat(dirs.installRoot)
	require.True(t, os.IsNotExist(err))

	requireNoLeftovers(t, dirs)
}

func TestRunFailsWhenLockHeld(t *testing.T) {
	t.Parallel()

	h := newCoordinator(t)
	dirs := newAgentDirs(t)
	configPath := writeDeviceConfig(t, h, dirs)

	require.NoError(t, os.MkdirAll(filepath.Dir(dirs.installRoot), 0o755))
	require.NoError(t, os.WriteFile(lockPath(dirs.installRoot),
		[]byte(fmt.Sprint(os.Getpid())), 0o644))

	err := Run(context.Background(), &Options{ConfigPath: configPath})
	require.ErrorIs(t, err, errLockHeld)
}

func TestRunFailsOnMissingConfig(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.conf"),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "load device settings")
}

func TestRunNoopBeforeFirstPublish(t *testing.T) {
	t.Parallel()

	h := newCoordinator(t)
	dirs := newAgentDirs(t)
	configPath := writeDeviceConfig(t, h, dirs)

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath}))

	_, err := os.Stat(dirs.installRoot)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath, Check: true}))
}
