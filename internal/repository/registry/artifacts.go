package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fleetbay/drydock/internal/domain/fleet"
	"github.com/fleetbay/drydock/internal/repository/kv"
)

const (
	// latestArtifactKey holds the mutable pointer to the newest publish.
	latestArtifactKey = "artifacts/latest"
	// artifactVersionPrefix namespaces one immutable entry per version.
	artifactVersionPrefix = "artifacts/by-version/"
)

// ArtifactRegistry persists artifact descriptors as two views: a single
// latest pointer and one immutable by-version entry per publish. The
// versioned entry is always written before the pointer flips, so a reader
// following the pointer never dereferences a version without metadata.
type ArtifactRegistry struct {
	// store is the metadata backend descriptors live in.
	store kv.Store
}

// NewArtifactRegistry creates a registry over the provided store.
func NewArtifactRegistry(store kv.Store) *ArtifactRegistry {
	return &ArtifactRegistry{store: store}
}

// Latest returns the newest published artifact, or ErrNotFound before the
// first publish.
func (r *ArtifactRegistry) Latest(ctx context.Context) (*fleet.Artifact, error) {
	return r.load(ctx, latestArtifactKey, "latest")
}

// ByVersion returns the immutable entry for one published version. A version
// string that could never name an entry reports ErrNotFound like any other
// miss.
func (r *ArtifactRegistry) ByVersion(ctx context.Context, version string) (*fleet.Artifact, error) {
	if err := fleet.ValidateVersion(version); err != nil {
		return nil, fmt.Errorf("%w: version %q", fleet.ErrNotFound, version)
	}

	return r.load(ctx, artifactVersionPrefix+version, version)
}

// Publish registers one build. Re-registering a version with identical
// content is idempotent and re-points latest at the stored entry;
// re-registering with different content is rejected with ErrConflict so a
// same-day version collision surfaces instead of silently replacing bytes
// devices may already have verified against.
func (r *ArtifactRegistry) Publish(ctx context.Context, artifact *fleet.Artifact) (*fleet.Artifact, error) {
	artifact.Normalize()

	if err := artifact.Validate(); err != nil {
		return nil, err
	}

	existing, err := r.ByVersion(ctx, artifact.Version)
	if err != nil && !errors.Is(err, fleet.ErrNotFound) {
		return nil, err
	}

	stored := artifact.Clone()

	if existing != nil {
		if !existing.SameContent(artifact) {
			return nil, fmt.Errorf("%w: version %q already published with different content", fleet.ErrConflict, artifact.Version)
		}

		stored = existing
	} else {
		stored.UploadedAt = time.Now().UTC()

		if err = r.save(ctx, artifactVersionPrefix+stored.Version, stored); err != nil {
			return nil, err
		}
	}

	if err = r.save(ctx, latestArtifactKey, stored); err != nil {
		return nil, err
	}

	return stored, nil
}

// load reads and decodes one descriptor, mapping absence to ErrNotFound.
func (r *ArtifactRegistry) load(ctx context.Context, key, label string) (*fleet.Artifact, error) {
	raw, found, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", label, err)
	}

	if !found {
		return nil, fmt.Errorf("%w: artifact %s", fleet.ErrNotFound, label)
	}

	var artifact fleet.Artifact
	if err = json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", label, err)
	}

	return &artifact, nil
}

// save serializes and stores one descriptor.
func (r *ArtifactRegistry) save(ctx context.Context, key string, artifact *fleet.Artifact) error {
	raw, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encode artifact %q: %w", artifact.Version, err)
	}

	if err = r.store.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("store artifact %q: %w", artifact.Version, err)
	}

	return nil
}
