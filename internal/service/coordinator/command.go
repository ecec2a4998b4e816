package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	fleetapi "github.com/fleetbay/drydock/internal/api/http/fleet"
	"github.com/fleetbay/drydock/internal/config"
	"github.com/fleetbay/drydock/internal/logger"
	"github.com/fleetbay/drydock/internal/repository/registry"
	"github.com/fleetbay/drydock/internal/service/common"
)

// Options controls the drydock-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the HTTP server.
	ListenAddress string
	// LogLevel overrides the configured log level when set.
	LogLevel string
}

const (
	// readHeaderTimeout bounds how long a client may take to send request headers.
	readHeaderTimeout = 10 * time.Second
	// shutdownTimeout bounds how long in-flight requests may drain after a stop signal.
	shutdownTimeout = 30 * time.Second
)

// releaseMode switches gin into release mode once per process, since the
// mode is process-global state.
var releaseMode sync.Once

// Run starts the coordinator HTTP server and blocks until context is canceled
// or the server stops. Loads configuration first, then opens the stores and
// wires the registries to the API router.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "drydock-server")

	// Load configuration first to get server and store settings.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	common.ApplyLogLevel(opts.LogLevel, settings.LogLevel)

	// Determine listen address: CLI argument overrides the configured one.
	listenAddress := settings.Server.ListenAddress
	if opts.ListenAddress != "" {
		listenAddress = opts.ListenAddress
	}

	// Open the persistence backends selected by the settings.
	backends, err := openStores(ctx, settings)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer backends.close(ctx)

	releaseMode.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	router, err := fleetapi.NewServer(
		registry.NewClientRegistry(backends.metadata),
		registry.NewArtifactRegistry(backends.metadata),
		backends.blobs,
		fleetapi.Options{
			AdminSecret:      settings.AdminToken,
			PollInterval:     time.Duration(settings.Server.PollInterval),
			DocumentationURL: settings.Server.DocumentationURL,
			TrustedProxies:   settings.Server.TrustedProxies,
		},
	).Router()
	if err != nil {
		return fmt.Errorf("initialise router: %w", err)
	}

	//nolint:exhaustruct // Defaults are fine for the remaining server knobs.
	httpServer := &http.Server{
		Addr:              listenAddress,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.InfoKV(ctx, "Coordinator listening",
		"listen_address", listenAddress,
		"metadata_backend", settings.Stores.Metadata.Backend,
		"blob_backend", settings.Stores.Blob.Backend)

	// Done channel is closed after Shutdown finishes to ensure we block
	// until in-flight requests drain before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Errorf(ctx, "Failed to shut down cleanly: %v", shutdownErr)
		}

		close(done)
	}()

	if err = httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	<-done
	logger.Info(ctx, "HTTP server stopped")

	return nil
}
