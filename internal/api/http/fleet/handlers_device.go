package fleet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fleetbay/drydock/internal/domain/fleet"
	"github.com/fleetbay/drydock/internal/logger"
	"github.com/fleetbay/drydock/internal/repository/blob"
)

// handleClientState is the device's poll: it records what the device reported
// and answers with the build the device should converge to.
func (s *Server) handleClientState(c *gin.Context) {
	ctx := c.Request.Context()
	client := clientFromContext(c)

	var req fleet.StateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, fmt.Errorf("decode body: %w", fleet.ErrBadRequest))

		return
	}

	current := strings.TrimSpace(req.CurrentVersion)
	if current == "" {
		current = fleet.UnknownVersion
	}

	if err := s.clients.UpdateState(ctx, client, current, c.ClientIP(), req.Metrics); err != nil {
		respondError(c, err)

		return
	}

	target, desiredMissing, err := s.resolveTarget(c, req.DesiredVersion)
	if err != nil {
		respondError(c, err)

		return
	}

	response := &fleet.StateResponse{
		ClientID:              client.ID,
		UpdateAvailable:       target != nil && target.Version != current,
		Latest:                target,
		PollIntervalSeconds:   int(s.opts.PollInterval.Seconds()),
		DocumentationURL:      s.opts.DocumentationURL,
		DesiredVersionMissing: desiredMissing,
	}

	if target != nil {
		response.DownloadPath = "/artifact?objectKey=" + url.QueryEscape(target.ObjectKey)
	}

	c.JSON(http.StatusOK, response)
}

// resolveTarget picks the build offered to the device: an explicitly desired
// version when its metadata still exists, otherwise the latest publish. A
// desired version with no metadata falls back to latest and is flagged, so a
// stale pin degrades into normal tracking instead of bricking updates.
func (s *Server) resolveTarget(c *gin.Context, desiredVersion string) (*fleet.Artifact, bool, error) {
	ctx := c.Request.Context()

	desired := strings.TrimSpace(desiredVersion)
	if desired != "" {
		target, err := s.artifacts.ByVersion(ctx, desired)
		if err == nil {
			return target, false, nil
		}

		if !errors.Is(err, fleet.ErrNotFound) {
			return nil, false, err
		}

		logger.WarnKV(ctx, "desired version has no published metadata, offering latest",
			"clientId", clientFromContext(c).ID,
			"desiredVersion", desired)

		latest, err := s.latestOrNil(ctx)

		return latest, true, err
	}

	latest, err := s.latestOrNil(ctx)

	return latest, false, err
}

// latestOrNil treats "nothing published yet" as an empty offer, not an error.
func (s *Server) latestOrNil(ctx context.Context) (*fleet.Artifact, error) {
	latest, err := s.artifacts.Latest(ctx)
	if err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return latest, nil
}

// handleDownloadArtifact streams one release archive to an authenticated
// device. The caller-supplied key is stripped of leading separators so it can
// only name objects inside the store's namespace.
func (s *Server) handleDownloadArtifact(c *gin.Context) {
	key := strings.TrimLeft(c.Query("objectKey"), "/\\")
	if key == "" {
		respondError(c, fmt.Errorf("objectKey is required: %w", fleet.ErrBadRequest))

		return
	}

	reader, size, err := s.blobs.Get(c.Request.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, blob.ErrNotFound):
			respondError(c, fmt.Errorf("object %q: %w", key, fleet.ErrNotFound))
		case errors.Is(err, blob.ErrInvalidKey):
			respondError(c, fmt.Errorf("object key %q: %w", key, fleet.ErrBadRequest))
		default:
			respondError(c, err)
		}

		return
	}

	defer reader.Close()

	filename := path.Base(key)
	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
	}

	c.DataFromReader(http.StatusOK, size, "application/octet-stream", reader, headers)
}
