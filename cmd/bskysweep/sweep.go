package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blackmichael/bluesky-sweep/internal/archive"
	"github.com/blackmichael/bluesky-sweep/internal/backup"
	"github.com/blackmichael/bluesky-sweep/internal/bluesky"
	"github.com/blackmichael/bluesky-sweep/internal/cli"
	"github.com/blackmichael/bluesky-sweep/internal/config"
	"github.com/blackmichael/bluesky-sweep/internal/domain"
	"github.com/blackmichael/bluesky-sweep/internal/schedule"
)

// Record log names matching the mode, used when none is configured.
const (
	previewLogFile = "preview_log.txt"
	deleteLogFile  = "deleted_posts_log.txt"
)

type sweepOptions struct {
	handle         string
	password       string
	pds            string
	days           int
	after          string
	before         string
	match          []string
	regex          bool
	includeReplies bool
	includeReposts bool
	doDelete       bool
	pageLimit      int
	backupFile     string
	recordLog      string
	archiveDB      string
	scheduleSpec   string
}

func newSweepCmd() *cobra.Command {
	var opts sweepOptions

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Preview or delete posts matching the filters",
		Long: `Pages through the account's posts and previews the ones matching the
filters. Pass --delete to actually delete them; each post is appended
to the JSONL backup before its delete call goes out.

For automation, set the app password via the BSKYSWEEP_PASSWORD
environment variable instead of the --password flag.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := mergeSweepFlags(cfg, cmd, &opts); err != nil {
				return err
			}
			return runSweep(cmd, cfg, !opts.doDelete)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.handle, "handle", "u", "", "account handle, e.g. yourname.bsky.social")
	flags.StringVarP(&opts.password, "password", "p", "", "app password; prompts when not set here or via BSKYSWEEP_PASSWORD")
	flags.StringVar(&opts.pds, "pds", "", "PDS service URL")
	flags.IntVarP(&opts.days, "days", "d", config.DefaultMaxAgeDays, "match posts older than this many days (0 disables the age filter)")
	flags.StringVar(&opts.after, "after", "", "only consider posts created on or after this date (YYYY-MM-DD or RFC 3339)")
	flags.StringVar(&opts.before, "before", "", "only consider posts created on or before this date (YYYY-MM-DD or RFC 3339)")
	flags.StringArrayVarP(&opts.match, "match", "m", nil, "only match posts containing this keyword (repeatable)")
	flags.BoolVar(&opts.regex, "regex", false, "interpret --match patterns as regular expressions")
	flags.BoolVar(&opts.includeReplies, "include-replies", false, "consider replies too")
	flags.BoolVar(&opts.includeReposts, "include-reposts", false, "consider reposts too")
	flags.BoolVar(&opts.doDelete, "delete", false, "actually delete matches instead of previewing")
	flags.IntVar(&opts.pageLimit, "page-limit", config.DefaultPageLimit, "posts per feed page (1-100)")
	flags.StringVar(&opts.backupFile, "backup-file", "", "JSONL file deleted posts are appended to")
	flags.StringVarP(&opts.recordLog, "log-file", "l", "", "record log path (defaults to preview_log.txt or deleted_posts_log.txt)")
	flags.StringVar(&opts.archiveDB, "archive-db", "", "SQLite file recording run history")
	flags.StringVar(&opts.scheduleSpec, "schedule", "", `cron expression for repeated sweeps, e.g. "0 3 * * *"`)

	return cmd
}

// mergeSweepFlags lays explicitly set flags over the loaded config and
// re-validates the result.
func mergeSweepFlags(cfg *config.Config, cmd *cobra.Command, opts *sweepOptions) error {
	flags := cmd.Flags()

	if flags.Changed("handle") {
		cfg.Handle = opts.handle
	}
	if flags.Changed("password") {
		logger.Warn("passing the app password on the command line exposes it in the process list, " +
			"prefer the BSKYSWEEP_PASSWORD environment variable")
		cfg.Password = opts.password
	}
	if flags.Changed("pds") {
		cfg.PDS = opts.pds
	}
	if flags.Changed("days") {
		cfg.Sweep.MaxAgeDays = opts.days
	}
	if flags.Changed("after") {
		cfg.Sweep.After = opts.after
	}
	if flags.Changed("before") {
		cfg.Sweep.Before = opts.before
	}
	if flags.Changed("match") {
		cfg.Sweep.Match = opts.match
	}
	if flags.Changed("regex") {
		cfg.Sweep.Regex = opts.regex
	}
	if flags.Changed("include-replies") {
		cfg.Sweep.IncludeReplies = opts.includeReplies
	}
	if flags.Changed("include-reposts") {
		cfg.Sweep.IncludeReposts = opts.includeReposts
	}
	if flags.Changed("page-limit") {
		cfg.Sweep.PageLimit = opts.pageLimit
	}
	if flags.Changed("backup-file") {
		cfg.Output.BackupFile = opts.backupFile
	}
	if flags.Changed("log-file") {
		cfg.Output.RecordLog = opts.recordLog
	}
	if flags.Changed("archive-db") {
		cfg.Output.ArchiveDB = opts.archiveDB
	}
	if flags.Changed("schedule") {
		cfg.Schedule = opts.scheduleSpec
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func runSweep(cmd *cobra.Command, cfg *config.Config, preview bool) error {
	if cfg.Handle == "" {
		return fmt.Errorf("account handle is required (--handle, config file, or BSKYSWEEP_HANDLE)")
	}

	password := cfg.Password
	if password == "" {
		p, err := readPassword("App password: ")
		if err != nil {
			return err
		}
		password = p
	}
	if password == "" {
		return fmt.Errorf("app password is required")
	}

	ctx := cli.SetupSignalHandler(logger)
	out := cmd.OutOrStdout()

	if cfg.Schedule != "" {
		scheduler, err := schedule.New(cfg.Schedule, func(ctx context.Context) error {
			summary, err := sweepOnce(ctx, cfg, password, preview)
			if summary != nil {
				printSummary(out, summary, recordLogPath(cfg, preview))
			}
			return err
		}, logger)
		if err != nil {
			return err
		}
		if err := scheduler.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	summary, err := sweepOnce(ctx, cfg, password, preview)
	if summary != nil {
		printSummary(out, summary, recordLogPath(cfg, preview))
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("sweep interrupted")
		}
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d deletions failed", summary.Failed)
	}
	return nil
}

// sweepOnce performs a single full sweep, logging in fresh so scheduled
// runs never reuse an expired session.
func sweepOnce(ctx context.Context, cfg *config.Config, password string, preview bool) (*domain.RunSummary, error) {
	runID := uuid.NewString()

	criteriaCfg, err := cfg.SweepCriteria()
	if err != nil {
		return nil, err
	}
	criteria, err := domain.NewCriteria(criteriaCfg, time.Now())
	if err != nil {
		return nil, err
	}

	client := bluesky.NewClient(bluesky.Config{
		PDS:       cfg.PDS,
		PageLimit: cfg.Sweep.PageLimit,
	})

	params := domain.SweeperParams{
		Account:  cfg.Handle,
		RunID:    runID,
		Preview:  preview,
		Criteria: criteria,
		Source:   client,
		Logger:   logger,
	}

	// Local files open before the first network call.
	if !preview {
		params.Deleter = domain.NewDeleter(client, domain.DeleterConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseBackoff: cfg.Retry.BaseBackoff,
			MaxBackoff:  cfg.Retry.MaxBackoff,
		}, logger)

		sink, err := backup.OpenJSONLSink(cfg.Output.BackupFile, runID)
		if err != nil {
			return nil, err
		}
		defer closeQuietly(sink, "backup file")
		params.Backup = sink
		logger.Info("backing up posts before deletion", "file", cfg.Output.BackupFile)
	}

	recordLog, err := backup.OpenRecordLog(recordLogPath(cfg, preview))
	if err != nil {
		return nil, err
	}
	defer closeQuietly(recordLog, "record log")
	params.Recorder = recordLog

	if cfg.Output.ArchiveDB != "" {
		store, err := archive.Open(cfg.Output.ArchiveDB)
		if err != nil {
			return nil, err
		}
		defer closeQuietly(store, "archive database")
		params.Archive = store
	}

	if !quiet && term.IsTerminal(int(os.Stderr.Fd())) {
		params.Progress = cli.NewSweepProgress(os.Stderr)
	}

	if err := client.Login(ctx, cfg.Handle, password); err != nil {
		return nil, err
	}
	logger.Info("authenticated", "handle", client.Handle(), "did", client.DID())

	sweeper, err := domain.NewSweeper(params)
	if err != nil {
		return nil, err
	}
	return sweeper.Run(ctx)
}

func recordLogPath(cfg *config.Config, preview bool) string {
	if cfg.Output.RecordLog != "" {
		return cfg.Output.RecordLog
	}
	if preview {
		return previewLogFile
	}
	return deleteLogFile
}

// printSummary writes the run counters to w. It runs even in quiet mode
// and after aborted runs, reporting whatever was counted so far.
func printSummary(w io.Writer, s *domain.RunSummary, recordLog string) {
	fmt.Fprintln(w, "\n── Summary ──────────────────────────")
	fmt.Fprintf(w, " Posts scanned   : %d\n", s.Scanned)
	fmt.Fprintf(w, " Posts matched   : %d\n", s.Matched)
	if !s.Preview {
		fmt.Fprintf(w, " Posts deleted   : %d\n", s.Deleted)
		fmt.Fprintf(w, " Delete failures : %d\n", s.Failed)
	}
	fmt.Fprintf(w, " Posts skipped   : %d\n", s.Skipped)
	fmt.Fprintf(w, " Log file        : %s\n", recordLog)
	fmt.Fprintf(w, " Elapsed         : %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintln(w, "──────────────────────────────────────")
}

// readPassword prompts for the app password with echo disabled, falling
// back to a plain line read when stdin is not a terminal.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		line, rerr := bufio.NewReader(os.Stdin).ReadString('\n')
		if rerr != nil && line == "" {
			return "", fmt.Errorf("read password: %w", rerr)
		}
		return strings.TrimSpace(line), nil
	}
	return strings.TrimSpace(string(passBytes)), nil
}

func closeQuietly(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		logger.Warn("close failed", "target", what, "error", err)
	}
}
