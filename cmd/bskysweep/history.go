package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-sweep/internal/archive"
	"github.com/blackmichael/bluesky-sweep/internal/config"
)

func newHistoryCmd() *cobra.Command {
	var (
		archiveDB string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show archived sweep runs and their outcomes",
		Long: `Lists archived sweep runs, newest first. Pass a run id to list the
posts that run touched and what happened to each.

Runs are only archived when sweeps are given an archive database via
--archive-db, the config file, or BSKYSWEEP_ARCHIVE_DB.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("archive-db") {
				cfg.Output.ArchiveDB = archiveDB
			}
			if cfg.Output.ArchiveDB == "" {
				return fmt.Errorf("no archive database configured (--archive-db, config file, or BSKYSWEEP_ARCHIVE_DB)")
			}

			store, err := archive.Open(cfg.Output.ArchiveDB)
			if err != nil {
				return err
			}
			defer closeQuietly(store, "archive database")

			if len(args) == 1 {
				return printRunPosts(cmd.Context(), cmd.OutOrStdout(), store, args[0])
			}
			return printRuns(cmd.Context(), cmd.OutOrStdout(), store, limit)
		},
	}

	cmd.Flags().StringVar(&archiveDB, "archive-db", "", "SQLite file recording run history")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	return cmd
}

func printRuns(ctx context.Context, out io.Writer, store *archive.Store, limit int) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no archived runs")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tMODE\tSCANNED\tMATCHED\tDELETED\tFAILED\tSKIPPED\tELAPSED")
	for _, run := range runs {
		mode := "delete"
		if run.Preview {
			mode = "preview"
		}
		elapsed := run.Elapsed.Round(time.Millisecond).String()
		if run.FinishedAt.IsZero() {
			elapsed = "unfinished"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			run.RunID,
			run.StartedAt.Format(time.RFC3339),
			mode,
			run.Scanned,
			run.Matched,
			run.Deleted,
			run.Failed,
			run.Skipped,
			elapsed,
		)
	}
	return w.Flush()
}

func printRunPosts(ctx context.Context, out io.Writer, store *archive.Store, runID string) error {
	posts, err := store.ListPosts(ctx, runID)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		fmt.Fprintf(out, "no archived posts for run %s\n", runID)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OUTCOME\tCREATED\tURI\tTEXT")
	for _, post := range posts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			post.Outcome,
			post.CreatedAt.Format(time.RFC3339),
			post.URI,
			oneLine(post.Text),
		)
	}
	return w.Flush()
}
