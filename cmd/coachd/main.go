// coachd is the execution core behind the conversational fitness coach:
// an event-sourced session log, a bounded tool-calling loop, and the
// versioned command pipeline over workout sessions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"coachd/internal/config"
	"coachd/internal/logging"
)

var (
	cfgPath string
	debug   bool

	cfg    config.Config
	logger *zap.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "coachd",
		Short:         "Conversational fitness coaching core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			if debug {
				cfg.Logging.Debug = true
			}
			logger, err = logging.NewDevelopment(cfg.Logging.Debug)
			if err != nil {
				return err
			}
			logging.Initialize(logger, cfg.Logging.Off)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "coachd.yaml", "path to config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSessionCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newWorkoutCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "coachd: %v\n", err)
		os.Exit(1)
	}
}
