package backup

import (
	"fmt"
	"os"
	"strings"

	"github.com/blackmichael/bluesky-sweep/internal/domain"
)

const recordTimeLayout = "2006-01-02 15:04:05"

// RecordLog appends a human-readable line per matched post, newlines
// flattened, each entry closed with a separator:
//
//	2024-05-01 10:00:00 UTC  the post text
//	---
type RecordLog struct {
	file *os.File
}

// OpenRecordLog opens (or creates) the record log for appending.
func OpenRecordLog(path string) (*RecordLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open record log: %w", err)
	}
	return &RecordLog{file: file}, nil
}

// Record appends one entry for the post.
func (l *RecordLog) Record(post domain.Post) error {
	text := strings.ReplaceAll(post.Text, "\n", " ")
	stamp := post.CreatedAt.UTC().Format(recordTimeLayout)
	if _, err := fmt.Fprintf(l.file, "%s UTC  %s\n---\n", stamp, text); err != nil {
		return fmt.Errorf("append record log: %w", err)
	}
	return nil
}

// Close closes the log file.
func (l *RecordLog) Close() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close record log: %w", err)
	}
	return nil
}
