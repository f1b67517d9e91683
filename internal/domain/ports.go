package domain

import "context"

// Page is one batch of posts from the source plus the cursor for the next
// call. Skipped counts items the source could not interpret as posts.
type Page struct {
	Posts   []Post
	Skipped int
	Cursor  string
}

// PostSource lists the account's posts newest-first, one page per call.
type PostSource interface {
	// ListPosts returns the page at cursor. An empty cursor starts from the
	// newest post; an empty returned cursor means the feed is exhausted.
	ListPosts(ctx context.Context, cursor string) (Page, error)
}

// PostDeleter deletes one post record. Implementations classify failures
// into RateLimitError, TransientError, or PermanentError so the deletion
// loop can decide whether another attempt is worthwhile.
type PostDeleter interface {
	DeletePost(ctx context.Context, post Post) error
}

// BackupSink persists a copy of a post. The orchestrator calls it exactly
// once per candidate, before the first deletion attempt.
type BackupSink interface {
	Backup(post Post) error
}

// MatchRecorder receives every matched post for the human-readable record
// log. It is called in preview and live mode alike.
type MatchRecorder interface {
	Record(post Post) error
}

// Outcome is the terminal state of one candidate.
type Outcome string

const (
	OutcomePreviewed Outcome = "previewed"
	OutcomeDeleted   Outcome = "deleted"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// RunArchive stores runs and per-post outcomes for later inspection.
type RunArchive interface {
	BeginRun(ctx context.Context, summary RunSummary) error
	RecordPost(ctx context.Context, runID string, post Post, outcome Outcome) error
	FinishRun(ctx context.Context, summary RunSummary) error
}

// ProgressReporter receives cumulative counts for interactive display.
type ProgressReporter interface {
	Scanned(n int)
	Matched(n int)
	Finish()
}
