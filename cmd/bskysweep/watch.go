package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-sweep/internal/bluesky"
	"github.com/blackmichael/bluesky-sweep/internal/cli"
	"github.com/blackmichael/bluesky-sweep/internal/config"
	"github.com/blackmichael/bluesky-sweep/internal/firehose"
)

func newWatchCmd() *cobra.Command {
	var (
		handle       string
		password     string
		did          string
		pds          string
		jetstreamURL string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail the firehose for the account's own post and repost commits",
		Long: `Connects to the Jetstream firehose and prints every post and repost
commit on the account as it happens. Deletions made by a sweep show up
here as delete commits, so you can watch them propagate.

Pass --did to watch without logging in.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("handle") {
				cfg.Handle = handle
			}
			if flags.Changed("password") {
				logger.Warn("passing the app password on the command line exposes it in the process list, " +
					"prefer the BSKYSWEEP_PASSWORD environment variable")
				cfg.Password = password
			}
			if flags.Changed("pds") {
				cfg.PDS = pds
			}
			if flags.Changed("jetstream-url") {
				cfg.JetstreamURL = jetstreamURL
			}

			ctx := cli.SetupSignalHandler(logger)

			accountDID := did
			if accountDID == "" {
				if cfg.Handle == "" {
					return fmt.Errorf("either --did or an account handle is required")
				}
				accountDID, err = resolveDID(ctx, cfg)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			watcher, err := firehose.NewWatcher(cfg.JetstreamURL, accountDID, func(ce firehose.CommitEvent) {
				fmt.Fprintf(out, "%s  %-6s  %s", ce.Time.Format(time.RFC3339), ce.Operation, ce.URI)
				if ce.Text != "" {
					fmt.Fprintf(out, "  %s", oneLine(ce.Text))
				}
				fmt.Fprintln(out)
			}, logger)
			if err != nil {
				return err
			}

			if err := watcher.Start(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&handle, "handle", "u", "", "account handle, e.g. yourname.bsky.social")
	flags.StringVarP(&password, "password", "p", "", "app password used to resolve the handle's DID")
	flags.StringVar(&did, "did", "", "account DID to watch, skips login")
	flags.StringVar(&pds, "pds", "", "PDS service URL")
	flags.StringVar(&jetstreamURL, "jetstream-url", "", "Jetstream WebSocket endpoint")

	return cmd
}

// resolveDID logs in once to translate the configured handle into the
// DID the firehose filters on.
func resolveDID(ctx context.Context, cfg *config.Config) (string, error) {
	password := cfg.Password
	if password == "" {
		p, err := readPassword("App password: ")
		if err != nil {
			return "", err
		}
		password = p
	}
	if password == "" {
		return "", fmt.Errorf("app password is required")
	}

	client := bluesky.NewClient(bluesky.Config{PDS: cfg.PDS})
	if err := client.Login(ctx, cfg.Handle, password); err != nil {
		return "", err
	}
	logger.Info("authenticated", "handle", client.Handle(), "did", client.DID())
	return client.DID(), nil
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
