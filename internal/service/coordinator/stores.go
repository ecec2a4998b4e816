package coordinator

import (
	"context"
	"fmt"

	"github.com/fleetbay/drydock/internal/config"
	"github.com/fleetbay/drydock/internal/logger"
	"github.com/fleetbay/drydock/internal/repository/blob"
	"github.com/fleetbay/drydock/internal/repository/kv"
	"github.com/fleetbay/drydock/internal/service/common"
)

// stores bundles the two persistence backends behind the coordinator.
type stores struct {
	// metadata holds client records and artifact metadata.
	metadata kv.Store
	// blobs holds the packaged release archives.
	blobs blob.Store
}

// openStores builds the metadata and blob stores selected by the settings.
// On a partial failure the already opened store is closed before returning.
func openStores(ctx context.Context, settings *config.Config) (*stores, error) {
	metadata, err := common.OpenMetadataStore(ctx, settings.Stores.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata store: %w", err)
	}

	blobs, err := common.OpenBlobStore(ctx, settings.Stores.Blob)
	if err != nil {
		if closeErr := metadata.Close(); closeErr != nil {
			logger.Errorf(ctx, "Failed to close metadata store: %v", closeErr)
		}

		return nil, fmt.Errorf("blob store: %w", err)
	}

	return &stores{
		metadata: metadata,
		blobs:    blobs,
	}, nil
}

// close releases both backends, logging instead of failing on errors.
func (s *stores) close(ctx context.Context) {
	if err := s.blobs.Close(); err != nil {
		logger.Errorf(ctx, "Failed to close blob store: %v", err)
	}

	if err := s.metadata.Close(); err != nil {
		logger.Errorf(ctx, "Failed to close metadata store: %v", err)
	}
}
