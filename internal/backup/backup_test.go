package backup

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/bluesky-sweep/internal/domain"
)

func TestJSONLSinkWritesIndependentLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.jsonl")
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	sink, err := OpenJSONLSink(path, "run-1")
	require.NoError(t, err)
	sink.now = func() time.Time { return now }

	posts := []domain.Post{
		{
			URI:       "at://did:plc:me/app.bsky.feed.post/p1",
			CID:       "cid-1",
			CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			Text:      "first post",
			Raw:       json.RawMessage(`{"post":{"uri":"at://did:plc:me/app.bsky.feed.post/p1"}}`),
		},
		{
			URI:       "at://did:plc:me/app.bsky.feed.post/p2",
			CreatedAt: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
			Text:      "second\npost",
		},
	}
	for _, p := range posts {
		require.NoError(t, sink.Backup(p))
	}
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec), "every line parses on its own")
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, records, 2)
	assert.Equal(t, "run-1", records[0].RunID)
	assert.Equal(t, posts[0].URI, records[0].URI)
	assert.Equal(t, "cid-1", records[0].CID)
	assert.Equal(t, posts[0].CreatedAt, records[0].CreatedAt)
	assert.Equal(t, now, records[0].BackedUpAt)
	assert.JSONEq(t, string(posts[0].Raw), string(records[0].Post))
	assert.Equal(t, "second\npost", records[1].Text)
}

func TestJSONLSinkAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"run_id":"earlier","uri":"at://x/y/z"}`+"\n"), 0o644))

	sink, err := OpenJSONLSink(path, "run-2")
	require.NoError(t, err)
	require.NoError(t, sink.Backup(domain.Post{URI: "at://did:plc:me/app.bsky.feed.post/p1"}))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "earlier")
	assert.Contains(t, lines[1], "run-2")
}

func TestOpenJSONLSinkRejectsUnwritablePath(t *testing.T) {
	_, err := OpenJSONLSink(filepath.Join(t.TempDir(), "missing", "backup.jsonl"), "run-1")
	require.Error(t, err)
}

func TestRecordLogFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")

	log, err := OpenRecordLog(path)
	require.NoError(t, err)

	require.NoError(t, log.Record(domain.Post{
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Text:      "line one\nline two",
	}))
	require.NoError(t, log.Record(domain.Post{
		CreatedAt: time.Date(2024, 5, 2, 18, 30, 45, 0, time.UTC),
		Text:      "short",
	}))
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"2024-05-01 10:00:00 UTC  line one line two\n---\n"+
			"2024-05-02 18:30:45 UTC  short\n---\n",
		string(data))
}

func TestRecordLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")

	for i := 0; i < 2; i++ {
		log, err := OpenRecordLog(path)
		require.NoError(t, err)
		require.NoError(t, log.Record(domain.Post{
			CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			Text:      "entry",
		}))
		require.NoError(t, log.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "---\n"))
}
