package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const reconnectWait = 5 * time.Second

// watchedCollections are the record types a sweep touches. Watching
// both shows post deletions and repost removals as they propagate.
var watchedCollections = []string{
	"app.bsky.feed.post",
	"app.bsky.feed.repost",
}

// CommitEvent is a single create or delete of a watched record.
type CommitEvent struct {
	Time       time.Time
	Operation  string
	Collection string
	URI        string
	CID        string

	// Text carries the post text for post records and the subject
	// URI for repost records. Empty for deletes.
	Text string
}

// Watcher tails the Jetstream firehose for one account's own record
// commits. The reconnect cursor lives in memory only, so a restarted
// watcher begins at the live edge of the stream.
type Watcher struct {
	url      string
	did      string
	onCommit func(CommitEvent)
	logger   *slog.Logger

	cursor int64
}

func NewWatcher(jetstreamURL, did string, onCommit func(CommitEvent), logger *slog.Logger) (*Watcher, error) {
	if jetstreamURL == "" {
		return nil, fmt.Errorf("jetstream url is required")
	}
	if did == "" {
		return nil, fmt.Errorf("account did is required")
	}
	if onCommit == nil {
		onCommit = func(CommitEvent) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		url:      jetstreamURL,
		did:      did,
		onCommit: onCommit,
		logger:   logger,
	}, nil
}

// Start connects to the firehose and blocks until ctx is cancelled,
// reconnecting with a fixed backoff whenever the stream drops.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("starting firehose watcher", "url", w.url, "did", w.did)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := w.subscribe(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("firehose connection lost, reconnecting",
				"error", err,
				"wait", reconnectWait,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectWait):
		}
	}
}

func (w *Watcher) buildURL() string {
	params := url.Values{}
	params.Add("wantedDids", w.did)
	for _, collection := range watchedCollections {
		params.Add("wantedCollections", collection)
	}
	if w.cursor > 0 {
		params.Add("cursor", strconv.FormatInt(w.cursor, 10))
	}
	return fmt.Sprintf("%s?%s", w.url, params.Encode())
}

func (w *Watcher) subscribe(ctx context.Context) error {
	wsURL := w.buildURL()
	w.logger.Debug("connecting to jetstream", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial jetstream: %w", err)
	}
	defer conn.Close()

	// A single account produces events rarely, so ReadMessage can
	// block for a long time. Closing the connection is what actually
	// unblocks it on cancellation.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	w.logger.Info("connected to jetstream")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			w.logger.Warn("skipping unparseable event", "error", err)
			continue
		}

		if event.TimeUS > w.cursor {
			w.cursor = event.TimeUS
		}

		w.handleEvent(event)
	}
}

func (w *Watcher) handleEvent(event *jetstreamEvent) {
	if event.Kind != "commit" || event.Commit == nil {
		return
	}
	if event.DID != w.did {
		return
	}

	commit := event.Commit
	ce := CommitEvent{
		Time:       time.UnixMicro(event.TimeUS).UTC(),
		Operation:  commit.Operation,
		Collection: commit.Collection,
		URI:        fmt.Sprintf("at://%s/%s/%s", event.DID, commit.Collection, commit.RKey),
		CID:        commit.CID,
	}

	if commit.Operation == "create" && len(commit.Record) > 0 {
		switch commit.Collection {
		case "app.bsky.feed.post":
			var record postRecord
			if err := json.Unmarshal(commit.Record, &record); err == nil {
				ce.Text = record.Text
			}
		case "app.bsky.feed.repost":
			var record repostRecord
			if err := json.Unmarshal(commit.Record, &record); err == nil {
				ce.Text = record.Subject.URI
			}
		}
	}

	w.logger.Debug("record commit",
		"operation", ce.Operation,
		"uri", ce.URI,
		"text", truncate(ce.Text, 50),
	)

	w.onCommit(ce)
}

func parseEvent(data []byte) (*jetstreamEvent, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	var event jetstreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event fields: %w", err)
	}

	return &event, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
