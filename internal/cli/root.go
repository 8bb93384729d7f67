package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/me/supertask/internal/config"
	"github.com/me/supertask/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking SUPERTASK_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("SUPERTASK_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the supertask CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "supertask",
		Short: "supertask runs registered tasks under a bounded scheduler",
		Long: "supertask registers local, shared and foreign (JavaScript or Go source) tasks\n" +
			"and runs them with bounded concurrency, backlog reordering and capability sandboxing.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Default()
			if flagConfig != "" {
				loaded, err := config.Load(flagConfig)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.Server.LogLevel = flagLogLevel
			}
			if flags.Changed("log-format") {
				cfg.Server.LogFormat = flagLogFormat
			}
			if flagDebug {
				cfg.Server.LogLevel = "debug"
			}

			var err error
			logger, err = logging.Setup(cfg.Server, cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("logging: %w", err)
			}
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a TOML config file")
	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "supertask server URL (or SUPERTASK_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newTasksCmd(),
		newEngineCmd(),
	)

	return root
}
