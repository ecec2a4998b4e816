package fleet

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetbay/drydock/internal/repository/blob"
	"github.com/fleetbay/drydock/internal/repository/registry"
)

// Options carries the request-independent settings the handlers need.
type Options struct {
	// AdminSecret is the bearer secret for /admin routes. Empty means no
	// admin access at all: the guard fails closed.
	AdminSecret string
	// PollInterval is the cadence suggested to devices in state responses.
	PollInterval time.Duration
	// DocumentationURL is handed to devices for operator-facing docs.
	DocumentationURL string
	// TrustedProxies lists proxies whose forwarding headers are believed
	// when recording a device's address.
	TrustedProxies []string
}

// Server implements the coordinator HTTP API over the two registries and the
// blob store. It holds no per-request state.
type Server struct {
	// clients is the client-record registry.
	clients *registry.ClientRegistry
	// artifacts is the artifact-descriptor registry.
	artifacts *registry.ArtifactRegistry
	// blobs streams release archives for device downloads.
	blobs blob.Store
	// opts are the request-independent settings.
	opts Options
}

// NewServer wires the registries and blob store into an HTTP handler.
func NewServer(clients *registry.ClientRegistry, artifacts *registry.ArtifactRegistry, blobs blob.Store, opts Options) *Server {
	return &Server{
		clients:   clients,
		artifacts: artifacts,
		blobs:     blobs,
		opts:      opts,
	}
}

// Router builds the gin engine with middleware and all routes attached.
func (s *Server) Router() (*gin.Engine, error) {
	engine := gin.New()
	engine.Use(requestIDMiddleware(), accessLogMiddleware(), gin.Recovery())

	if err := engine.SetTrustedProxies(s.opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("configure trusted proxies: %w", err)
	}

	engine.GET("/healthz", s.handleHealthz)

	admin := engine.Group("/admin", s.adminAuthMiddleware())
	admin.GET("/clients", s.handleListClients)
	admin.PUT("/clients/:id", s.handleUpsertClient)
	admin.DELETE("/clients/:id", s.handleDeleteClient)
	admin.GET("/artifacts", s.handleLatestArtifact)
	admin.POST("/artifacts", s.handlePublishArtifact)

	device := engine.Group("", s.deviceAuthMiddleware())
	device.POST("/client/state", s.handleClientState)
	device.GET("/artifact", s.handleDownloadArtifact)

	engine.NoRoute(handleUnknownRoute)

	return engine, nil
}
