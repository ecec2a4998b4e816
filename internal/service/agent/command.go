package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fleetbay/drydock/internal/config"
	"github.com/fleetbay/drydock/internal/domain/fleet"
	"github.com/fleetbay/drydock/internal/logger"
	"github.com/fleetbay/drydock/internal/service/common"
)

// Options contains inputs for the agent entry point.
type Options struct {
	// ConfigPath specifies the path to the device settings file.
	ConfigPath string
	// Check reports whether an update is pending without installing it.
	Check bool
	// Force reinstalls the offered build even when versions match.
	Force bool
	// Version pins an explicit target version instead of tracking latest.
	Version string
	// LogLevel overrides the log level for this run.
	LogLevel string
}

// ErrUpdateAvailable is returned by check-only runs when the coordinator
// offers a build the device does not run yet. The CLI exits non-zero on it,
// so schedulers can branch on the check outcome.
var ErrUpdateAvailable = errors.New("update available")

// agent drives one poll-and-install cycle against the coordinator.
// It is unexported; callers should use Run, which encapsulates setup and validation.
type agent struct {
	// cfg holds the device settings.
	cfg *config.DeviceConfig
	// api is the device API client used for polling and downloads.
	api *common.Client
	// check stops the run after reporting whether an update is pending.
	check bool
	// force installs the offered build even when versions already match.
	force bool
	// pinned requests an explicit target version when set.
	pinned string
	// workDir holds the downloaded archive for this run.
	workDir string
	// stagingDir holds the extracted tree until it is activated.
	stagingDir string
}

// Run executes one agent cycle: report state, and install the offered build
// when one is pending.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "drydock-agent")

	common.ApplyLogLevel(opts.LogLevel)

	settings, err := config.LoadDevice(ctx, opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load device settings: %w", err)
	}

	lock, err := acquireRunLock(ctx, settings.InstallRoot)
	if err != nil {
		return err
	}
	defer lock.release(ctx)

	agt, err := newAgent(ctx, settings, opts)
	if err != nil {
		return fmt.Errorf("initialize agent: %w", err)
	}
	defer agt.close(ctx)

	if err = agt.Run(ctx); err != nil {
		if errors.Is(err, ErrUpdateAvailable) {
			return err
		}

		logger.ErrorKV(ctx, "Agent run failed", "error", err)

		return err
	}

	logger.Info(ctx, "Agent run completed")

	return nil
}

// newAgent validates the requested target and wires the device API client.
func newAgent(ctx context.Context, settings *config.DeviceConfig, opts *Options) (*agent, error) {
	if opts.Version != "" {
		if err := fleet.ValidateVersion(opts.Version); err != nil {
			return nil, err
		}
	}

	api, err := common.Dial(ctx, settings.CoordinatorURL,
		common.WithDeviceCredentials(settings.ClientID, settings.ClientToken),
		common.WithCallTimeout(time.Duration(settings.Timeout)))
	if err != nil {
		return nil, err
	}

	return &agent{
		cfg:    settings,
		api:    api,
		check:  opts.Check,
		force:  opts.Force,
		pinned: opts.Version,
	}, nil
}

// Run reports the device state and acts on the coordinator's answer.
func (a *agent) Run(ctx context.Context) error {
	current := installedVersion(a.cfg.InstallRoot)

	logger.InfoKV(ctx, "Reporting state",
		"clientId", a.cfg.ClientID,
		"currentVersion", current)

	state, err := a.api.ReportState(ctx, &fleet.StateRequest{
		CurrentVersion: current,
		DesiredVersion: a.pinned,
		Metrics:        collectMetrics(ctx, a.cfg.InstallRoot),
	})
	if err != nil {
		return fmt.Errorf("report state: %w", err)
	}

	if state.DesiredVersionMissing {
		logger.WarnKV(ctx, "Pinned version has no published build, tracking latest",
			"pinned", a.pinned)
	}

	if a.check {
		return reportCheck(ctx, state)
	}

	if !state.UpdateAvailable && !a.force {
		logger.InfoKV(ctx, "Installed version is current", "version", current)

		return nil
	}

	if state.Latest == nil {
		logger.Warn(ctx, "Nothing published yet, nothing to install")

		return nil
	}

	return a.install(ctx, state, current)
}

// reportCheck ends a check-only run with the pending-update verdict.
func reportCheck(ctx context.Context, state *fleet.StateResponse) error {
	if !state.UpdateAvailable {
		logger.Info(ctx, "No update pending")

		return nil
	}

	logger.InfoKV(ctx, "Update available", "version", state.Latest.Version)

	return fmt.Errorf("version %s: %w", state.Latest.Version, ErrUpdateAvailable)
}

// install downloads, verifies, stages and activates the offered build.
func (a *agent) install(ctx context.Context, state *fleet.StateResponse, currentVersion string) error {
	target := state.Latest

	logger.InfoKV(ctx, "Installing release",
		"version", target.Version,
		"currentVersion", currentVersion,
		"size", target.Size)

	workDir := filepath.Join(a.cfg.ScratchDir, "drydock-agent-"+uuid.NewString())
	if err := os.MkdirAll(workDir, stagingDirectoryPermissions); err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}

	a.workDir = workDir

	archivePath, err := a.fetch(ctx, target, state.DownloadPath)
	if err != nil {
		return fmt.Errorf("fetch release: %w", err)
	}

	stagingDir, err := a.stageRelease(ctx, archivePath, target.Version)
	if err != nil {
		return fmt.Errorf("stage release: %w", err)
	}

	if err := a.apply(ctx, stagingDir, currentVersion); err != nil {
		return err
	}

	sweepBackups(ctx, a.cfg.BackupDir)

	logger.InfoKV(ctx, "Release installed",
		"version", target.Version,
		"installRoot", a.cfg.InstallRoot,
		"installedAt", time.Now().UTC().Format(time.RFC3339))

	return nil
}

// close releases the API client and removes this run's scratch leftovers. A
// staged tree that was activated is owned by the install root and skipped.
func (a *agent) close(ctx context.Context) {
	if err := a.api.Close(); err != nil {
		logger.Errorf(ctx, "Failed to close API client: %v", err)
	}

	if a.stagingDir != "" {
		if err := os.RemoveAll(a.stagingDir); err != nil {
			logger.Errorf(ctx, "Failed to remove staging directory: %v", err)
		}
	}

	if a.workDir != "" {
		if err := os.RemoveAll(a.workDir); err != nil {
			logger.Errorf(ctx, "Failed to remove scratch directory: %v", err)
		}
	}
}
