//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
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

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// newCoordinator runs a real coordinator router on an httptest server with
// file-backed stores, and returns the blob store for seeding payloads.
func newCoordinator(t *testing.T) (*httptest.Server, blob.Store) {
	t.Helper()

	meta, err := kv.NewFileStore(t.TempDir())
	require.NoError(t, err)

	blobs, err := blob.NewFileStore(t.TempDir())
	require.NoError(t, err)

	router, err := fleetapi.NewServer(
		registry.NewClientRegistry(meta),
		registry.NewArtifactRegistry(meta),
		blobs,
		fleetapi.Options{
			AdminSecret:  "root-secret",
			PollInterval: time.Minute,
		},
	).Router()
	require.NoError(t, err)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server, blobs
}

// TestDial_ValidatesAddress verifies that Dial rejects unusable URLs.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)

	c, err = Dial(context.Background(), "coordinator.local")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestClient_CredentialPreflight asserts calls fail before touching the wire
// when the matching credentials were never configured.
func TestClient_CredentialPreflight(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "http://127.0.0.1:1")
	require.NoError(t, err)

	_, err = c.ListClients(context.Background())
	require.ErrorIs(t, err, errAdminTokenRequired)

	_, err = c.ReportState(context.Background(), nil)
	require.ErrorIs(t, err, errDeviceCredentialsRequired)

	_, err = c.DownloadArtifact(context.Background(), "/artifact", new(bytes.Buffer))
	require.ErrorIs(t, err, errDeviceCredentialsRequired)
}

// TestClient_RoundTrip drives the full admin and device surface against a
// live coordinator.
func TestClient_RoundTrip(t *testing.T) {
	t.Parallel()

	server, blobs := newCoordinator(t)

	c, err := Dial(context.Background(), server.URL,
		WithAdminToken("root-secret"),
		WithDeviceCredentials("den-42", "device-secret"),
		WithCallTimeout(5*time.Second))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, c.Close()) })

	// Register the device.
	displayName := "Den appliance"

	created, err := c.UpsertClient(context.Background(), "den-42", &fleet.UpsertClientRequest{
		Token:       "device-secret",
		DisplayName: &displayName,
	})
	require.NoError(t, err)
	require.Equal(t, "den-42", created.ID)
	require.Equal(t, displayName, created.DisplayName)
	require.Empty(t, created.TokenHash)

	listed, err := c.ListClients(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)

	// Nothing published yet.
	latest, err := c.LatestArtifact(context.Background())
	require.NoError(t, err)
	require.Nil(t, latest)

	// Upload and register a build.
	payload := bytes.Repeat([]byte("drydock"), 1024)
	objectKey := "releases/v1.0.0/drydock-v1.0.0.tar.gz"

	size, err := blobs.Put(context.Background(), objectKey, bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), size)

	stored, err := c.PublishArtifact(context.Background(), &fleet.Artifact{
		Version:   "v1.0.0",
		ObjectKey: objectKey,
		SHA256:    strings.Repeat("ab", 32),
		Size:      size,
	})
	require.NoError(t, err)
	require.False(t, stored.UploadedAt.IsZero())

	// The device sees the offer and can fetch the payload.
	state, err := c.ReportState(context.Background(), &fleet.StateRequest{
		CurrentVersion: "v0.9.0",
	})
	require.NoError(t, err)
	require.True(t, state.UpdateAvailable)
	require.NotEmpty(t, state.DownloadPath)

	var download bytes.Buffer

	written, err := c.DownloadArtifact(context.Background(), state.DownloadPath, &download)
	require.NoError(t, err)
	require.Equal(t, size, written)
	require.Equal(t, payload, download.Bytes())

	// Deleting the client revokes its device access.
	require.NoError(t, c.DeleteClient(context.Background(), "den-42"))

	_, err = c.ReportState(context.Background(), nil)
	require.ErrorIs(t, err, fleet.ErrUnauthorized)
}

// TestClient_ErrorMapping asserts API failures come back as domain errors.
func TestClient_ErrorMapping(t *testing.T) {
	t.Parallel()

	server, _ := newCoordinator(t)

	c, err := Dial(context.Background(), server.URL,
		WithAdminToken("root-secret"),
		WithDeviceCredentials("den-42", "device-secret"))
	require.NoError(t, err)

	// Invalid ids are rejected before anything is stored.
	_, err = c.UpsertClient(context.Background(), "not a slug", &fleet.UpsertClientRequest{Token: "x"})
	require.ErrorIs(t, err, fleet.ErrBadRequest)

	// Conflicting republish of the same version.
	artifact := &fleet.Artifact{
		Version:   "v1.0.0",
		ObjectKey: "releases/v1.0.0/drydock-v1.0.0.tar.gz",
		SHA256:    strings.Repeat("aa", 32),
		Size:      1,
	}

	_, err = c.PublishArtifact(context.Background(), artifact)
	require.NoError(t, err)

	artifact.SHA256 = strings.Repeat("bb", 32)

	_, err = c.PublishArtifact(context.Background(), artifact)
	require.ErrorIs(t, err, fleet.ErrConflict)

	// A wrong admin secret maps to unauthorized.
	wrong, err := Dial(context.Background(), server.URL, WithAdminToken("not-it"))
	require.NoError(t, err)

	_, err = wrong.ListClients(context.Background())
	require.ErrorIs(t, err, fleet.ErrUnauthorized)

	// Downloading an object that was never uploaded is not found.
	_, err = c.UpsertClient(context.Background(), "den-42", &fleet.UpsertClientRequest{Token: "device-secret"})
	require.NoError(t, err)

	_, err = c.DownloadArtifact(context.Background(), "/artifact?objectKey=releases%2Fmissing.tar.gz", new(bytes.Buffer))
	require.ErrorIs(t, err, fleet.ErrNotFound)
}
