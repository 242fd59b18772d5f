package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/stream-notifier/internal/config"
	"github.com/oshokin/stream-notifier/internal/logger"
	"github.com/oshokin/stream-notifier/internal/service/watcher"
	"github.com/oshokin/stream-notifier/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// stateFile overrides the state location from the configuration.
	stateFile string
	// logLevel overrides the log level from the configuration.
	logLevel string

	// rootCmd represents the base command that watches the channel.
	rootCmd = &cobra.Command{
		Use:   "stream-notifier [channel-id]",
		Short: "Notify when a Picarto channel goes live or offline.",
		Long: `Background service that watches one Picarto channel and reports its transitions.

Polls the Picarto API at a fixed interval, compares the online flag with the last
persisted state and notifies the configured sinks (log, Discord, MQTT, Telegram)
when it changes. Failed requests are retried with exponential backoff.
The state survives restarts, so a restart never repeats a notification.

The channel can be provided as argument or loaded from the configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Runtime failures are not usage errors.
			cmd.SilenceUsage = true

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return logged(ctx, watcher.Run(ctx, options(args)))
		},
	}

	// checkCmd fetches the status once.
	checkCmd = &cobra.Command{
		Use:   "check [channel-id]",
		Short: "Fetch the channel status once and print it.",
		Long:  "Query the Picarto API once and print whether the channel is live. Nothing is persisted or notified.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			raw, err := cmd.Flags().GetBool("raw")
			if err != nil {
				return err
			}

			checkOptions := &watcher.CheckOptions{
				Options: *options(args),
				Raw:     raw,
			}

			return watcher.RunCheck(cmd.Context(), checkOptions, cmd.OutOrStdout())
		},
	}

	// stateCmd prints the persisted state.
	stateCmd = &cobra.Command{
		Use:   "state [channel-id]",
		Short: "Print the persisted channel state.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			return watcher.RunShowState(cmd.Context(), options(args), cmd.OutOrStdout())
		},
	}

	// initCmd writes a starter configuration file.
	initCmd = &cobra.Command{
		Use:   "init <channel-id>",
		Short: "Write a configuration file with the defaults for a channel.",
		Long:  "Create the configuration file given by --config with every setting at its default value.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}

			initOptions := &watcher.InitOptions{
				Options: *options(args),
				Force:   force,
			}

			return watcher.RunInit(cmd.Context(), initOptions, cmd.OutOrStdout())
		},
	}

	// healthCmd asks a running watcher for its health.
	healthCmd = &cobra.Command{
		Use:   "health [address]",
		Short: "Query the health endpoint of a running watcher.",
		Long:  "Exit with a non-zero status unless the watcher reports SERVING. Suitable for container health checks.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			var address string
			if len(args) > 0 {
				address = args[0]
			}

			return watcher.RunHealth(cmd.Context(), options(nil), address, cmd.OutOrStdout())
		},
	}
)

// Execute runs the stream-notifier CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.Execute()

	logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}

// options collects the shared flags and the optional channel argument.
func options(args []string) *watcher.Options {
	opts := &watcher.Options{
		ConfigPath: configPath,
		StateFile:  stateFile,
		LogLevel:   logLevel,
	}

	if len(args) > 0 {
		opts.ChannelID = args[0]
	}

	return opts
}

// logged writes a startup failure to the service log before cobra reports it.
func logged(ctx context.Context, err error) error {
	if err != nil {
		logger.ErrorKV(ctx, "Command failed", "error", err)
	}

	return err
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultPath(), "path to configuration file (env "+config.ConfigPathEnv+")")
	flags.StringVarP(&stateFile, "state-file", "s", "", "path to the state file, overrides state_file")
	flags.StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error), overrides log_level")

	checkCmd.Flags().Bool("raw", false, "print the whole API payload as JSON")
	initCmd.Flags().Bool("force", false, "replace an existing configuration file")

	rootCmd.AddCommand(checkCmd, stateCmd, initCmd, healthCmd)
}
