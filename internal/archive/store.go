// Package archive keeps a local SQLite history of sweep runs and the posts
// they touched, for inspection after the fact.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/blackmichael/bluesky-sweep/internal/domain"
)

// Run is one archived sweep with its final counters. FinishedAt is zero
// while the run is still in flight (or was cut off before finishing).
type Run struct {
	domain.RunSummary
	FinishedAt time.Time
}

// Post is one archived candidate and its terminal outcome.
type Post struct {
	RunID      string
	URI        string
	CID        string
	CreatedAt  time.Time
	Text       string
	Outcome    domain.Outcome
	RecordedAt time.Time
}

// Store implements domain.RunArchive on a local SQLite file and serves the
// read side for run history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the archive database at path and ensures the
// schema exists. The caller should call Close when done.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL", path, 5000)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping archive database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize archive schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		account TEXT NOT NULL,
		preview INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		scanned INTEGER NOT NULL DEFAULT 0,
		matched INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		finished_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS posts (
		run_id TEXT NOT NULL REFERENCES runs(id),
		uri TEXT NOT NULL,
		cid TEXT,
		created_at INTEGER NOT NULL,
		text TEXT NOT NULL,
		outcome TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_posts_run ON posts(run_id);
	`

	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun inserts the run row with its starting state.
func (s *Store) BeginRun(ctx context.Context, summary domain.RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, account, preview, started_at)
		VALUES (?, ?, ?, ?)`,
		summary.RunID,
		summary.Account,
		boolToInt(summary.Preview),
		summary.StartedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordPost inserts one candidate row with its terminal outcome.
func (s *Store) RecordPost(ctx context.Context, runID string, post domain.Post, outcome domain.Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (run_id, uri, cid, created_at, text, outcome, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID,
		post.URI,
		post.CID,
		post.CreatedAt.UTC().UnixMilli(),
		post.Text,
		string(outcome),
		s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// FinishRun writes the final counters and marks the run finished.
func (s *Store) FinishRun(ctx context.Context, summary domain.RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET elapsed_ms = ?, scanned = ?, matched = ?, deleted = ?, failed = ?, skipped = ?, finished_at = ?
		WHERE id = ?`,
		summary.Elapsed.Milliseconds(),
		summary.Scanned,
		summary.Matched,
		summary.Deleted,
		summary.Failed,
		summary.Skipped,
		s.now().UTC().UnixMilli(),
		summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account, preview, started_at, elapsed_ms, scanned, matched, deleted, failed, skipped, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			preview   int
			startedMs int64
			elapsedMs int64
			finished  sql.NullInt64
		)
		err := rows.Scan(
			&r.RunID,
			&r.Account,
			&preview,
			&startedMs,
			&elapsedMs,
			&r.Scanned,
			&r.Matched,
			&r.Deleted,
			&r.Failed,
			&r.Skipped,
			&finished,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Preview = preview != 0
		r.StartedAt = time.UnixMilli(startedMs).UTC()
		r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64).UTC()
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// ListPosts returns the archived posts of one run in insertion order.
func (s *Store) ListPosts(ctx context.Context, runID string) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, uri, cid, created_at, text, outcome, recorded_at
		FROM posts
		WHERE run_id = ?
		ORDER BY rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var (
			p          Post
			outcome    string
			createdMs  int64
			recordedMs int64
		)
		err := rows.Scan(
			&p.RunID,
			&p.URI,
			&p.CID,
			&createdMs,
			&p.Text,
			&outcome,
			&recordedMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.Outcome = domain.Outcome(outcome)
		p.CreatedAt = time.UnixMilli(createdMs).UTC()
		p.RecordedAt = time.UnixMilli(recordedMs).UTC()
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
