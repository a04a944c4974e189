package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths     config.Paths
	log       *logging.Logger
	logCloser io.Closer = io.NopCloser(nil)
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinicbot",
		Short: "clinicbot: appointment booking assistant for clinics",
		Long:  "clinicbot books clinic appointments through conversation, over WebSocket, IRC or the terminal.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}

			// The config file only tunes logging here; commands load it again.
			lc := config.Defaults().Logging
			if cfg, err := config.Load(paths.Config); err == nil {
				lc = cfg.Logging
			}
			if logLevel != "" {
				lc.Level = logLevel
			}
			log, logCloser, err = logging.Open(logging.Options{
				Level: lc.Level,
				Style: lc.ConsoleStyle,
				File:  paths.LogFile(lc.File),
			})
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logCloser.Close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.clinicbot/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newGatewayCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newBookingsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newMailCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}
