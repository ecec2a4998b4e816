package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fleetbay/drydock/internal/config"
	"github.com/fleetbay/drydock/internal/service/agent"
	"github.com/fleetbay/drydock/internal/version"
)

var (
	// configPath to the device settings file.
	configPath string
	// check reports whether an update is pending without installing it.
	check bool
	// force reinstalls the offered build even when versions match.
	force bool
	// targetVersion pins an explicit version instead of tracking latest.
	targetVersion string
	// logLevel overrides the log level for this run.
	logLevel string

	// rootCmd represents the base command for one agent cycle.
	rootCmd = &cobra.Command{
		Use:   "drydock-agent",
		Short: "Poll the coordinator and install the offered release.",
		Long: `Runs one update cycle on this device: report the installed version and host
metrics to the coordinator, and install the offered release when one is
pending.

The run is guarded by an advisory lock beside the install root. The previous
tree is kept in the backup directory before the new one is swapped in. With
--check the agent only reports: it exits non-zero when an update is pending
and installs nothing, so schedulers can branch on the outcome.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &agent.Options{
				ConfigPath: configPath,
				Check:      check,
				Force:      force,
				Version:    targetVersion,
				LogLevel:   logLevel,
			}

			return agent.Run(ctx, options)
		},
	}
)

// Execute runs the drydock-agent CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultDeviceConfigPath, "path to device settings file")
	rootCmd.Flags().BoolVar(&check, "check", false, "report whether an update is pending, install nothing")
	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "reinstall the offered build even when versions match")
	rootCmd.Flags().StringVar(&targetVersion, "version", "", "pin an explicit target version")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "override log level for this run")
}
