package publisher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fleetbay/drydock/internal/config"
	"github.com/fleetbay/drydock/internal/domain/fleet"
	"github.com/fleetbay/drydock/internal/logger"
	"github.com/fleetbay/drydock/internal/repository/blob"
	"github.com/fleetbay/drydock/internal/service/common"
)

// Options contains inputs for the publisher entry point.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Version overrides version selection when set.
	Version string
	// SourceDir overrides the configured source root when set.
	SourceDir string
	// DryRun stops the pipeline after packaging and reports what would be
	// published without uploading or registering anything.
	DryRun bool
	// LogLevel overrides the configured log level when set.
	LogLevel string
}

// publisher drives the packaging and release pipeline.
// It is unexported; callers should use Run, which encapsulates setup and validation.
type publisher struct {
	// cfg holds coordinator connection and packaging settings.
	cfg *config.Config
	// api is the admin API client used for snapshots and registration.
	api *common.Client
	// blobs is the object store archives are uploaded to; nil on dry runs.
	blobs blob.Store
	// actor records who ran the publish, for the artifact notes.
	actor *common.Actor
	// source is the resolved source root.
	source string
	// version is the resolved version being published.
	version string
	// dryRun stops the pipeline before upload and registration.
	dryRun bool
}

var (
	// errCoordinatorURLRequired indicates the settings carry no coordinator URL.
	errCoordinatorURLRequired = errors.New("coordinator_url must be configured")
	// errAdminTokenRequired indicates the settings carry no admin token.
	errAdminTokenRequired = errors.New("admin_token must be configured")
	// errSizeMismatch indicates the upload wrote a different byte count than packaged.
	errSizeMismatch = errors.New("uploaded size differs from archive size")
)

// Run executes the publishing pipeline.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "drydock-publisher")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	common.ApplyLogLevel(opts.LogLevel, settings.LogLevel)

	pub, err := newPublisher(ctx, settings, opts)
	if err != nil {
		return fmt.Errorf("initialize publisher: %w", err)
	}
	defer pub.close(ctx)

	if err = pub.Run(ctx); err != nil {
		return fmt.Errorf("publisher failed: %w", err)
	}

	logger.Info(ctx, "Publisher completed successfully")

	return nil
}

// newPublisher validates the settings and wires the API client, the blob
// store (unless dry-run) and the resolved version.
func newPublisher(ctx context.Context, settings *config.Config, opts *Options) (*publisher, error) {
	if settings.CoordinatorURL == "" {
		return nil, errCoordinatorURLRequired
	}

	if settings.AdminToken == "" {
		return nil, errAdminTokenRequired
	}

	source := settings.Publish.Source
	if opts.SourceDir != "" {
		source = opts.SourceDir
	}

	version, err := resolveVersion(ctx, opts.Version, source)
	if err != nil {
		return nil, err
	}

	actor, err := common.DetectActor()
	if err != nil {
		return nil, err
	}

	api, err := common.Dial(ctx, settings.CoordinatorURL,
		common.WithAdminToken(settings.AdminToken),
		common.WithCallTimeout(time.Duration(settings.Timeout)))
	if err != nil {
		return nil, err
	}

	pub := &publisher{
		cfg:     settings,
		api:     api,
		actor:   actor,
		source:  source,
		version: version,
		dryRun:  opts.DryRun,
	}

	if !opts.DryRun {
		blobs, storeErr := common.OpenBlobStore(ctx, settings.Stores.Blob)
		if storeErr != nil {
			_ = api.Close()

			return nil, fmt.Errorf("blob store: %w", storeErr)
		}

		pub.blobs = blobs
	}

	return pub, nil
}

// Run stages, packages and, unless dry-run, uploads and registers a release.
func (p *publisher) Run(ctx context.Context) error {
	workDir := filepath.Join(os.TempDir(), "drydock-publish-"+uuid.NewString())

	if err := os.MkdirAll(workDir, stagingDirectoryPermissions); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	// Best-effort cleanup.
	defer func() {
		_ = os.RemoveAll(workDir)
	}()

	logger.InfoKV(ctx, "Staging release",
		"version", p.version,
		"source", p.source,
		"publisher", p.actor.String())

	stageDir := filepath.Join(workDir, "stage")
	if err := p.buildStaging(ctx, stageDir); err != nil {
		return err
	}

	archiveName := fmt.Sprintf("drydock-%s.tar.gz", p.version)
	archivePath := filepath.Join(workDir, archiveName)

	digest, size, err := createArchive(stageDir, archivePath)
	if err != nil {
		return err
	}

	objectKey := path.Join(p.cfg.Publish.ObjectKeyPrefix, p.version, archiveName)

	if p.dryRun {
		logger.InfoKV(ctx, "Dry run, skipping upload and registration",
			"version", p.version,
			"object_key", objectKey,
			"sha256", digest,
			"size", size)

		return nil
	}

	if err = p.upload(ctx, archivePath, objectKey, size); err != nil {
		return err
	}

	stored, err := p.api.PublishArtifact(ctx, &fleet.Artifact{
		Version:   p.version,
		ObjectKey: objectKey,
		SHA256:    digest,
		Size:      size,
		Notes:     "published by " + p.actor.String(),
	})
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Release published",
		"version", stored.Version,
		"object_key", stored.ObjectKey,
		"sha256", stored.SHA256,
		"size", stored.Size,
		"uploaded_at", stored.UploadedAt)

	return nil
}

// upload streams the archive into the blob store and checks the byte count.
func (p *publisher) upload(ctx context.Context, archivePath, objectKey string, size int64) error {
	archive, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	// Best-effort cleanup.
	defer func() {
		_ = archive.Close()
	}()

	written, err := p.blobs.Put(ctx, objectKey, archive)
	if err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	if written != size {
		return fmt.Errorf("%w: wrote %d of %d bytes", errSizeMismatch, written, size)
	}

	logger.InfoKV(ctx, "Archive uploaded", "object_key", objectKey, "size", written)

	return nil
}

// close releases the API client and, when open, the blob store.
func (p *publisher) close(ctx context.Context) {
	if err := p.api.Close(); err != nil {
		logger.Errorf(ctx, "Failed to close API client: %v", err)
	}

	if p.blobs != nil {
		if err := p.blobs.Close(); err != nil {
			logger.Errorf(ctx, "Failed to close blob store: %v", err)
		}
	}
}
