//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"

	"github.com/fleetbay/drydock/internal/config"
	"github.com/fleetbay/drydock/internal/repository/blob"
	"github.com/fleetbay/drydock/internal/repository/kv"
)

// OpenMetadataStore opens the key-value backend one store section selects.
func OpenMetadataStore(ctx context.Context, store config.StoreConfig) (kv.Store, error) {
	switch store.Backend {
	case config.BackendFile:
		return kv.NewFileStore(store.Path)
	case config.BackendNATS:
		return kv.NewNATSStore(ctx, store.URL, store.Bucket)
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", store.Backend)
	}
}

// OpenBlobStore opens the object storage backend one store section selects.
func OpenBlobStore(ctx context.Context, store config.StoreConfig) (blob.Store, error) {
	switch store.Backend {
	case config.BackendFile:
		return blob.NewFileStore(store.Path)
	case config.BackendNATS:
		return blob.NewNATSStore(ctx, store.URL, store.Bucket)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", store.Backend)
	}
}
