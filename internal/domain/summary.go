package domain

import "time"

// RunSummary is the auditable outcome of a sweep. One is produced per run,
// whether the run finished the scan or stopped early on a fatal error.
type RunSummary struct {
	// RunID identifies the run across logs, backups, and the archive.
	RunID string

	// Account is the handle or DID the run swept.
	Account string

	// Preview reports that the run only recorded what it would delete.
	Preview bool

	// StartedAt is when the scan began, in UTC.
	StartedAt time.Time

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration

	// Scanned counts every post retrieved from the source.
	Scanned int

	// Matched counts posts that satisfied the criteria.
	Matched int

	// Deleted counts posts confirmed deleted. Always zero in preview.
	Deleted int

	// Failed counts posts whose deletion failed after exhausting retries.
	Failed int

	// Skipped counts posts abandoned for permanent, per-post reasons, such
	// as records the service reports as already gone.
	Skipped int
}
