package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"socketmode/internal/config"
	"socketmode/internal/logging"
	"socketmode/internal/socket"
)

// globals holds the persistent flags shared by every subcommand.
var globals struct {
	configFile string
	logFormat  string
	logLevel   string
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "socketmode",
		Short:         "Slack Socket Mode client and event relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := commandLogger(cmd)
			if err != nil {
				return &socket.ConfigError{Err: err}
			}
			cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globals.configFile, "config", "",
		"config file (default: nearest .socketmode/config.yaml up to the repo root, then ~/.socketmode/config.yaml)")
	flags.StringVar(&globals.logFormat, "log-format", "", "log format: text|json (default: log.format from config, else text)")
	flags.StringVar(&globals.logLevel, "log-level", "", "log level: debug|info|warn|error (default: log.level from config, else info)")

	rootCmd.AddCommand(NewConfigCmd(), NewRunCmd())
	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}

// commandLogger builds the logger from the flags, falling back to the log
// section of a config that loads and validates. A broken config is left
// for the command itself to report.
func commandLogger(cmd *cobra.Command) (logging.Logger, error) {
	opts := logging.Options{
		Level:  globals.logLevel,
		Format: globals.logFormat,
		Output: cmd.ErrOrStderr(),
	}
	if opts.Level == "" || opts.Format == "" {
		if cfg, err := config.Load(config.LoadOptions{ConfigFile: globals.configFile}); err == nil && cfg.Validate() == nil {
			opts.Level = firstNonEmpty(opts.Level, cfg.Log.Level)
			opts.Format = firstNonEmpty(opts.Format, cfg.Log.Format)
		}
	}
	return logging.NewLogger(opts)
}

// exitCode maps a run failure to the process status: 2 for configuration
// and credential problems, 3 for a remote disconnect, 1 otherwise.
func exitCode(err error) int {
	var (
		configErr  *socket.ConfigError
		connectErr *socket.ConnectError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &configErr):
		return 2
	case errors.As(err, &connectErr) && connectErr.Permanent():
		return 2
	case errors.Is(err, socket.ErrRemoteDisconnect):
		return 3
	default:
		return 1
	}
}
