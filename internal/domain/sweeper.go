package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SweeperParams collects everything a sweep needs. Source, Criteria, and a
// RunID are required; Deleter is required unless Preview is set. The
// remaining dependencies are optional and disabled when nil.
type SweeperParams struct {
	Account  string
	RunID    string
	Preview  bool
	Criteria *Criteria
	Source   PostSource
	Deleter  *Deleter
	Backup   BackupSink
	Recorder MatchRecorder
	Archive  RunArchive
	Progress ProgressReporter
	Logger   *slog.Logger
	Now      func() time.Time
}

// Sweeper owns one full sweep: page through the account's posts, filter each
// page, and take every match through record, backup, and delete. Candidates
// are handled strictly one at a time, in feed order.
type Sweeper struct {
	account  string
	runID    string
	preview  bool
	criteria *Criteria
	source   PostSource
	deleter  *Deleter
	backup   BackupSink
	recorder MatchRecorder
	archive  RunArchive
	progress ProgressReporter
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper validates the parameters and returns a ready Sweeper.
func NewSweeper(p SweeperParams) (*Sweeper, error) {
	if p.Source == nil {
		return nil, fmt.Errorf("post source is required")
	}
	if p.Criteria == nil {
		return nil, fmt.Errorf("criteria are required")
	}
	if p.RunID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if !p.Preview && p.Deleter == nil {
		return nil, fmt.Errorf("deleter is required outside preview mode")
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Now == nil {
		p.Now = time.Now
	}

	return &Sweeper{
		account:  p.Account,
		runID:    p.RunID,
		preview:  p.Preview,
		criteria: p.Criteria,
		source:   p.Source,
		deleter:  p.Deleter,
		backup:   p.Backup,
		recorder: p.Recorder,
		archive:  p.Archive,
		progress: p.Progress,
		logger:   p.Logger,
		now:      p.Now,
	}, nil
}

// Run executes the sweep and returns its summary. The summary is returned on
// every path that began scanning, so a non-nil error still comes with the
// partial counts accumulated before the abort.
func (s *Sweeper) Run(ctx context.Context) (*RunSummary, error) {
	started := s.now().UTC()
	summary := &RunSummary{
		RunID:     s.runID,
		Account:   s.account,
		Preview:   s.preview,
		StartedAt: started,
	}

	finish := func(err error) (*RunSummary, error) {
		summary.Elapsed = s.now().UTC().Sub(started)
		if s.progress != nil {
			s.progress.Finish()
		}
		if s.archive != nil {
			if aerr := s.archive.FinishRun(context.WithoutCancel(ctx), *summary); aerr != nil {
				s.logger.Warn("archiving run summary failed", "run_id", s.runID, "error", aerr)
			}
		}
		return summary, err
	}

	if s.archive != nil {
		if err := s.archive.BeginRun(ctx, *summary); err != nil {
			return finish(fmt.Errorf("archive run start: %w", err))
		}
	}

	s.logger.Info("sweep started",
		"run_id", s.runID,
		"account", s.account,
		"preview", s.preview,
	)

	// A cursor can replay items across pages; tracking matched URIs keeps
	// every candidate to a single backup+delete cycle per run.
	seen := make(map[string]struct{})

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		page, err := s.source.ListPosts(ctx, cursor)
		if err != nil {
			return finish(&ListingError{Err: err})
		}

		summary.Scanned += len(page.Posts)
		summary.Skipped += page.Skipped
		if s.progress != nil {
			s.progress.Scanned(summary.Scanned)
		}

		for _, post := range page.Posts {
			if !s.criteria.Matches(post) {
				continue
			}
			if _, done := seen[post.URI]; done {
				continue
			}
			seen[post.URI] = struct{}{}
			summary.Matched++
			if s.progress != nil {
				s.progress.Matched(summary.Matched)
			}
			if err := s.processCandidate(ctx, post, summary); err != nil {
				return finish(err)
			}
		}

		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	s.logger.Info("sweep finished",
		"run_id", s.runID,
		"scanned", summary.Scanned,
		"matched", summary.Matched,
		"deleted", summary.Deleted,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	return finish(nil)
}

// processCandidate takes one matched post to a terminal outcome. The record
// log and backup writes happen before the first delete attempt; a failure in
// either is fatal because continuing would delete posts without a trail.
func (s *Sweeper) processCandidate(ctx context.Context, post Post, summary *RunSummary) error {
	if s.recorder != nil {
		if err := s.recorder.Record(post); err != nil {
			return fmt.Errorf("record match %s: %w", post.URI, err)
		}
	}

	if s.preview {
		s.logger.Debug("would delete post", "uri", post.URI, "created_at", post.CreatedAt)
		return s.archivePost(ctx, post, OutcomePreviewed)
	}

	if s.backup != nil {
		if err := s.backup.Backup(post); err != nil {
			return fmt.Errorf("backup post %s: %w", post.URI, err)
		}
	}

	outcome, err := s.deleter.Delete(ctx, post)
	switch outcome {
	case OutcomeDeleted:
		summary.Deleted++
		s.logger.Info("deleted post", "uri", post.URI, "created_at", post.CreatedAt)
	case OutcomeSkipped:
		summary.Skipped++
		s.logger.Warn("skipping post", "uri", post.URI, "error", err)
	case OutcomeFailed:
		summary.Failed++
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		s.logger.Error("delete failed", "uri", post.URI, "error", err)
	}

	return s.archivePost(ctx, post, outcome)
}

func (s *Sweeper) archivePost(ctx context.Context, post Post, outcome Outcome) error {
	if s.archive == nil {
		return nil
	}
	if err := s.archive.RecordPost(ctx, s.runID, post, outcome); err != nil {
		return fmt.Errorf("archive post %s: %w", post.URI, err)
	}
	return nil
}
