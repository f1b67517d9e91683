package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-sweep/internal/config"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	logger  *slog.Logger
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bskysweep",
		Short: "Preview and delete old BlueSky posts",
		Long: `bskysweep pages through a BlueSky account's posts and previews or
deletes the ones matching your filters: age, date range, and keywords.
Posts are appended to a JSONL backup before the first delete call goes
out, so a sweep is always recoverable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = setupLogger()
			config.LoadEnv(logger)
			if os.Geteuid() == 0 {
				logger.Warn("running as root is not recommended")
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default bskysweep.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress most output except errors")

	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newHistoryCmd())

	return rootCmd
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
