package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the operator-side settings shared by the coordinator and the
// publisher. Sections a binary does not use may stay empty.
type Config struct {
	// CoordinatorURL is the base URL clients of the admin API call.
	CoordinatorURL string `yaml:"coordinator_url"`
	// AdminToken is the bearer secret for admin operations. An empty value
	// makes the coordinator deny every admin call.
	AdminToken string `yaml:"admin_token"`
	// Timeout bounds outbound HTTP calls made by the publisher.
	Timeout Duration `yaml:"timeout"`
	// LogLevel selects the minimum emitted log level.
	LogLevel string `yaml:"log_level"`
	// Server configures the coordinator process.
	Server ServerConfig `yaml:"server"`
	// Stores selects the backends for the two external stores.
	Stores StoresConfig `yaml:"stores"`
	// Publish configures the publisher's packaging pipeline.
	Publish PublishConfig `yaml:"publish"`
}

// ServerConfig holds coordinator-only settings.
type ServerConfig struct {
	// ListenAddress is the TCP address the HTTP server binds.
	ListenAddress string `yaml:"listen_address"`
	// PollInterval is the cadence suggested to devices in state responses.
	PollInterval Duration `yaml:"poll_interval"`
	// DocumentationURL is handed to devices for operator-facing docs.
	DocumentationURL string `yaml:"documentation_url"`
	// TrustedProxies lists proxy addresses whose forwarding headers are
	// believed when recording a device's address.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// StoresConfig selects and parameterizes the metadata and blob backends.
type StoresConfig struct {
	// Metadata is the key-value store holding client and artifact records.
	Metadata StoreConfig `yaml:"metadata"`
	// Blob is the object store holding release archives.
	Blob StoreConfig `yaml:"blob"`
}

// StoreConfig describes one store backend.
type StoreConfig struct {
	// Backend picks the implementation, BackendFile or BackendNATS.
	Backend string `yaml:"backend"`
	// Path is the root directory of the file backend.
	Path string `yaml:"path"`
	// URL is the NATS server address for the nats backend.
	URL string `yaml:"url"`
	// Bucket is the JetStream bucket name for the nats backend.
	Bucket string `yaml:"bucket"`
}

// PublishConfig holds publisher-only settings.
type PublishConfig struct {
	// Source is the repository root the deployable subset is taken from.
	Source string `yaml:"source"`
	// Include lists the paths, relative to Source, that ship in a release.
	Include []string `yaml:"include"`
	// Entrypoints lists the staged scripts devices re-propagate to their
	// bin directory after an install.
	Entrypoints []string `yaml:"entrypoints"`
	// ObjectKeyPrefix namespaces uploaded archives inside the blob store.
	ObjectKeyPrefix string `yaml:"object_key_prefix"`
}

// Store backend names accepted in StoreConfig.Backend.
const (
	BackendFile = "file"
	BackendNATS = "nats"
)

const (
	// DefaultConfigFilename is the default operator config location.
	DefaultConfigFilename = "drydock.yaml"

	// DefaultTimeout is the default bound for outbound HTTP calls.
	DefaultTimeout = 15 * time.Second

	// DefaultListenAddress is the coordinator's default bind address.
	DefaultListenAddress = ":8844"

	// DefaultPollInterval is the default device polling cadence.
	DefaultPollInterval = 15 * time.Minute

	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"

	// DefaultMetadataPath is the file metadata store's default root.
	DefaultMetadataPath = "/var/lib/drydock/metadata"

	// DefaultBlobPath is the file blob store's default root.
	DefaultBlobPath = "/var/lib/drydock/blobs"

	// DefaultMetadataBucket names the JetStream key-value bucket.
	DefaultMetadataBucket = "drydock-metadata"

	// DefaultBlobBucket names the JetStream object-store bucket.
	DefaultBlobBucket = "drydock-blobs"

	// DefaultObjectKeyPrefix namespaces uploads when none is configured.
	DefaultObjectKeyPrefix = "releases"

	// DefaultFilePermissions is the mode for files holding secrets.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownBackend is returned for a backend outside file/nats.
	errUnknownBackend = errors.New(`store backend must be "file" or "nats"`)
	// errNATSURLRequired is returned when the nats backend has no URL.
	errNATSURLRequired = errors.New("nats backend requires a url")
)

// Load reads the operator configuration from the provided path, validates it
// and applies defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path with owner-only
// permissions, since it carries the admin token.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills defaults in place.
// Role-specific requirements, like the publisher needing an admin token, are
// enforced by the consuming service, not here.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.CoordinatorURL != "" {
		if _, err := url.ParseRequestURI(cfg.CoordinatorURL); err != nil {
			return fmt.Errorf("invalid coordinator URL: %w", err)
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = Duration(DefaultTimeout)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	if err := validateServer(&cfg.Server); err != nil {
		return err
	}

	if err := validateStore(&cfg.Stores.Metadata, DefaultMetadataPath, DefaultMetadataBucket); err != nil {
		return fmt.Errorf("metadata store: %w", err)
	}

	if err := validateStore(&cfg.Stores.Blob, DefaultBlobPath, DefaultBlobBucket); err != nil {
		return fmt.Errorf("blob store: %w", err)
	}

	if cfg.Publish.Source == "" {
		cfg.Publish.Source = "."
	}

	if cfg.Publish.ObjectKeyPrefix == "" {
		cfg.Publish.ObjectKeyPrefix = DefaultObjectKeyPrefix
	}

	return nil
}

// validateServer fills server defaults and checks the listen address shape.
func validateServer(server *ServerConfig) error {
	if server.ListenAddress == "" {
		server.ListenAddress = DefaultListenAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", server.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if server.PollInterval <= 0 {
		server.PollInterval = Duration(DefaultPollInterval)
	}

	return nil
}

// validateStore fills one store section's defaults and checks backend choice.
func validateStore(store *StoreConfig, defaultPath, defaultBucket string) error {
	if store.Backend == "" {
		store.Backend = BackendFile
	}

	switch store.Backend {
	case BackendFile:
		if store.Path == "" {
			store.Path = defaultPath
		}
	case BackendNATS:
		if store.URL == "" {
			return errNATSURLRequired
		}

		if store.Bucket == "" {
			store.Bucket = defaultBucket
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownBackend, store.Backend)
	}

	return nil
}
