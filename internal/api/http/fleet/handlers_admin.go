package fleet

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetbay/drydock/internal/domain/fleet"
	"github.com/fleetbay/drydock/internal/repository/registry"
)

// publishArtifactRequest is the POST /admin/artifacts body.
type publishArtifactRequest struct {
	// Version uniquely names the build being registered.
	Version string `json:"version"`
	// ObjectKey locates the uploaded payload in the blob store.
	ObjectKey string `json:"objectKey"`
	// SHA256 is the payload digest devices verify against.
	SHA256 string `json:"sha256"`
	// Size is the payload length in bytes.
	Size int64 `json:"size"`
	// Notes carries optional operator remarks.
	Notes string `json:"notes"`
}

// handleHealthz is the unauthenticated liveness probe.
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// handleListClients returns every listed client without token hashes.
func (s *Server) handleListClients(c *gin.Context) {
	clients, err := s.clients.List(c.Request.Context())
	if err != nil {
		respondError(c, err)

		return
	}

	public := make([]*fleet.Client, 0, len(clients))
	for _, client := range clients {
		public = append(public, client.Sanitized())
	}

	c.JSON(http.StatusOK, gin.H{"clients": public})
}

// handleUpsertClient creates or updates one client record.
func (s *Server) handleUpsertClient(c *gin.Context) {
	var req fleet.UpsertClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("decode body: %w", fleet.ErrBadRequest))

		return
	}

	client, err := s.clients.Upsert(c.Request.Context(), c.Param("id"), registry.UpsertParams{
		Token:       req.Token,
		DisplayName: req.DisplayName,
		Notes:       req.Notes,
		Status:      req.Status,
	})
	if err != nil {
		respondError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"client": client.Sanitized(),
	})
}

// handleDeleteClient removes one client record; unknown ids succeed.
func (s *Server) handleDeleteClient(c *gin.Context) {
	id := c.Param("id")

	if err := s.clients.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "deleted",
		"id":     id,
	})
}

// handleLatestArtifact returns the newest published descriptor, or null
// before the first publish.
func (s *Server) handleLatestArtifact(c *gin.Context) {
	latest, err := s.artifacts.Latest(c.Request.Context())
	if err != nil && !errors.Is(err, fleet.ErrNotFound) {
		respondError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"latest": latest})
}

// handlePublishArtifact registers one uploaded build.
func (s *Server) handlePublishArtifact(c *gin.Context) {
	var req publishArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("decode body: %w", fleet.ErrBadRequest))

		return
	}

	stored, err := s.artifacts.Publish(c.Request.Context(), &fleet.Artifact{
		Version:   req.Version,
		ObjectKey: req.ObjectKey,
		SHA256:    req.SHA256,
		Size:      req.Size,
		Notes:     req.Notes,
	})
	if err != nil {
		respondError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"latest": stored,
	})
}

// handleUnknownRoute keeps unknown paths inside the JSON error contract.
func handleUnknownRoute(c *gin.Context) {
	respondError(c, fmt.Errorf("no such route: %w", fleet.ErrNotFound))
}
