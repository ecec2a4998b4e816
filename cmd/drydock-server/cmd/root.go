package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fleetbay/drydock/internal/config"
	"github.com/fleetbay/drydock/internal/service/coordinator"
	"github.com/fleetbay/drydock/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides the configured log level when set.
	logLevel string

	// rootCmd represents the base command for running the coordinator.
	rootCmd = &cobra.Command{
		Use:   "drydock-server [listen-address]",
		Short: "Run the drydock fleet coordinator.",
		Long: `Starts the HTTP coordinator that tracks the device fleet and distributes releases.

The server listens on the configured address unless one is provided as argument
(e.g. :8844, 0.0.0.0:8844). Client records and release metadata live in the
configured metadata store and release archives in the blob store; devices
always download through the server, never from the stores directly.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &coordinator.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				LogLevel:      logLevel,
			}

			return coordinator.Run(ctx, options)
		},
	}
)

// Execute runs the drydock-server CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "override configured log level")
}
