// Package backup persists matched posts before deletion: a JSONL file with
// one full record per line, and a human-readable log of matched posts.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/blackmichael/bluesky-sweep/internal/domain"
)

// Record is one backup line. Post carries the raw feed-item JSON so the
// backup holds everything the service returned, not just the fields the
// sweep looked at.
type Record struct {
	RunID      string          `json:"run_id"`
	URI        string          `json:"uri"`
	CID        string          `json:"cid,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Text       string          `json:"text"`
	BackedUpAt time.Time       `json:"backed_up_at"`
	Post       json.RawMessage `json:"post,omitempty"`
}

// JSONLSink appends one Record per post to a file. Lines are written whole
// and never rewritten, so each parses independently of the rest.
type JSONLSink struct {
	runID string
	file  *os.File
	enc   *json.Encoder
	now   func() time.Time
}

// OpenJSONLSink opens (or creates) the backup file for appending.
func OpenJSONLSink(path, runID string) (*JSONLSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open backup file: %w", err)
	}
	return &JSONLSink{
		runID: runID,
		file:  file,
		enc:   json.NewEncoder(file),
		now:   time.Now,
	}, nil
}

// Backup appends the post's record to the file.
func (s *JSONLSink) Backup(post domain.Post) error {
	rec := Record{
		RunID:      s.runID,
		URI:        post.URI,
		CID:        post.CID,
		CreatedAt:  post.CreatedAt.UTC(),
		Text:       post.Text,
		BackedUpAt: s.now().UTC(),
		Post:       post.Raw,
	}
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("append backup record: %w", err)
	}
	return nil
}

// Close flushes the file to disk and closes it.
func (s *JSONLSink) Close() error {
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return fmt.Errorf("sync backup file: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close backup file: %w", err)
	}
	return nil
}
