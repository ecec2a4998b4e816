package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/fleetbay/drydock/internal/logger"
)

// DeviceConfig is the per-appliance settings file the agent reads. The file
// is plain TOML key = "value" lines, provisioned once per device.
type DeviceConfig struct {
	// CoordinatorURL is the base URL of the coordinator.
	CoordinatorURL string `toml:"coordinator_url"`
	// ClientID is this device's registered slug.
	ClientID string `toml:"client_id"`
	// ClientToken is the plaintext device secret presented on every call.
	ClientToken string `toml:"client_token"`
	// InstallRoot is the directory the deployed tree lives in.
	InstallRoot string `toml:"install_root"`
	// BackupDir receives the previous tree when an update applies.
	BackupDir string `toml:"backup_dir"`
	// BinDir is where entrypoint scripts are propagated after an install.
	BinDir string `toml:"bin_dir"`
	// Entrypoints lists the staged scripts to propagate into BinDir.
	Entrypoints []string `toml:"entrypoints"`
	// Services lists systemd units stopped before and started after apply.
	Services []string `toml:"services"`
	// ScratchDir holds downloads and staging trees during a run.
	ScratchDir string `toml:"scratch_dir"`
	// Timeout bounds every HTTP call, the artifact download included.
	Timeout Duration `toml:"timeout"`
}

const (
	// DefaultDeviceConfigPath is where provisioning places the device file.
	DefaultDeviceConfigPath = "/etc/drydock/agent.conf"

	// DefaultInstallRoot is the deployed tree's default location.
	DefaultInstallRoot = "/usr/local/drydock"

	// DefaultBackupDir is the default home for retained previous trees.
	DefaultBackupDir = "/var/backups/drydock"

	// DefaultBinDir is the default target for propagated entrypoints.
	DefaultBinDir = "/usr/local/bin"

	// DefaultDeviceTimeout bounds device HTTP calls. It is generous because
	// the same bound covers whole-archive downloads.
	DefaultDeviceTimeout = Duration(5 * time.Minute)
)

var (
	// errCoordinatorURLRequired is returned when the device file has no URL.
	errCoordinatorURLRequired = errors.New("coordinator_url must be provided")
	// errClientIDRequired is returned when the device file has no id.
	errClientIDRequired = errors.New("client_id must be provided")
	// errClientTokenRequired is returned when the device file has no token.
	errClientTokenRequired = errors.New("client_token must be provided")
)

// LoadDevice reads and validates the device configuration. A missing or
// malformed file is an error the caller treats as fatal; a file readable
// beyond its owner is only warned about, since provisioning tooling on some
// appliances ships world-readable files and an update must still run.
func LoadDevice(ctx context.Context, path string) (*DeviceConfig, error) {
	if path == "" {
		path = DefaultDeviceConfigPath
	}

	path = filepath.Clean(path)

	var cfg DeviceConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("read device settings: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			logger.WarnKV(ctx, "device settings readable beyond owner",
				"path", path,
				"mode", fmt.Sprintf("%04o", mode))
		}
	}

	if err := ValidateDevice(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateDevice checks required device fields and fills defaults in place.
func ValidateDevice(cfg *DeviceConfig) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.CoordinatorURL == "" {
		return errCoordinatorURLRequired
	}

	if _, err := url.ParseRequestURI(cfg.CoordinatorURL); err != nil {
		return fmt.Errorf("invalid coordinator URL: %w", err)
	}

	if cfg.ClientID == "" {
		return errClientIDRequired
	}

	if cfg.ClientToken == "" {
		return errClientTokenRequired
	}

	if cfg.InstallRoot == "" {
		cfg.InstallRoot = DefaultInstallRoot
	}

	if cfg.BackupDir == "" {
		cfg.BackupDir = DefaultBackupDir
	}

	if cfg.BinDir == "" {
		cfg.BinDir = DefaultBinDir
	}

	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDeviceTimeout
	}

	return nil
}
