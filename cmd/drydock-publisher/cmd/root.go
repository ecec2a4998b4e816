package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fleetbay/drydock/internal/config"
	"github.com/fleetbay/drydock/internal/service/publisher"
	"github.com/fleetbay/drydock/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// releaseVersion overrides automatic version selection when set.
	releaseVersion string
	// sourceDir overrides the configured source root when set.
	sourceDir string
	// dryRun stops the pipeline after packaging.
	dryRun bool
	// logLevel overrides the configured log level when set.
	logLevel string

	// rootCmd represents the base command for publishing a release.
	rootCmd = &cobra.Command{
		Use:   "drydock-publisher",
		Short: "Package and publish a release to the coordinator.",
		Long: `Stages the deployable subset of the source tree, packages it as tar.gz and
publishes it through the coordinator.

The version comes from an exact git tag when the source is on one, otherwise a
date-based version is synthesized; --version overrides both. The archive is
uploaded to the blob store before registration, so a release only becomes
visible to devices once every step succeeded.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &publisher.Options{
				ConfigPath: configPath,
				Version:    releaseVersion,
				SourceDir:  sourceDir,
				DryRun:     dryRun,
				LogLevel:   logLevel,
			}

			return publisher.Run(ctx, options)
		},
	}
)

// Execute runs the drydock-publisher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&releaseVersion, "version", "", "publish under this version instead of resolving one")
	rootCmd.Flags().StringVarP(&sourceDir, "source", "s", "", "override configured source root")
	rootCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "package and report without uploading or registering")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "override configured log level")
}
