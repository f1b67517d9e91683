package bluesky

import (
	"encoding/json"
	"time"

	"github.com/blackmichael/bluesky-sweep/internal/domain"
)

const (
	reasonRepostType    = "app.bsky.feed.defs#reasonRepost"
	recordEmbedViewType = "app.bsky.embed.record#view"
)

// feedResponse is the body of app.bsky.feed.getAuthorFeed. Items are kept
// raw so the full JSON can travel with each post into backups.
type feedResponse struct {
	Cursor string            `json:"cursor"`
	Feed   []json.RawMessage `json:"feed"`
}

type feedViewPost struct {
	Post   postView    `json:"post"`
	Reason *feedReason `json:"reason,omitempty"`
}

type feedReason struct {
	Type string `json:"$type"`
}

type postView struct {
	URI       string          `json:"uri"`
	CID       string          `json:"cid"`
	Record    postRecord      `json:"record"`
	IndexedAt string          `json:"indexedAt"`
	Viewer    *postViewer     `json:"viewer,omitempty"`
	Embed     json.RawMessage `json:"embed,omitempty"`
}

type postRecord struct {
	Text      string          `json:"text"`
	CreatedAt string          `json:"createdAt"`
	Reply     json.RawMessage `json:"reply,omitempty"`
}

type postViewer struct {
	Repost string `json:"repost,omitempty"`
}

type embedView struct {
	Type string `json:"$type"`
}

// toPage converts the wire feed into domain posts. Items that cannot be
// interpreted (no URI, no usable timestamp) are counted, not dropped
// silently.
func (fr feedResponse) toPage() domain.Page {
	page := domain.Page{Cursor: fr.Cursor}

	for _, raw := range fr.Feed {
		var item feedViewPost
		if err := json.Unmarshal(raw, &item); err != nil || item.Post.URI == "" {
			page.Skipped++
			continue
		}

		created, ok := postTime(item.Post)
		if !ok {
			page.Skipped++
			continue
		}

		post := domain.Post{
			URI:       item.Post.URI,
			CID:       item.Post.CID,
			CreatedAt: created,
			Text:      item.Post.Record.Text,
			IsReply:   isReply(item.Post.Record),
			IsRepost:  isRepost(item),
			Raw:       raw,
		}

		// A repost reason means the feed item is the account's repost of
		// someone else's post; the deletable record is the viewer's repost
		// record when the service exposes it.
		if item.Reason != nil && item.Reason.Type == reasonRepostType && item.Post.Viewer != nil && item.Post.Viewer.Repost != "" {
			post.URI = item.Post.Viewer.Repost
		}

		page.Posts = append(page.Posts, post)
	}

	return page
}

// postTime prefers the record's own createdAt and falls back to the
// service-side indexedAt.
func postTime(pv postView) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, pv.Record.CreatedAt); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, pv.IndexedAt); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func isReply(rec postRecord) bool {
	return len(rec.Reply) > 0 && string(rec.Reply) != "null"
}

// isRepost covers both shapes a repost takes in an author feed: a repost
// reason on the item, or a quote post embedding another record.
func isRepost(item feedViewPost) bool {
	if item.Reason != nil && item.Reason.Type == reasonRepostType {
		return true
	}
	if len(item.Post.Embed) > 0 {
		var embed embedView
		if err := json.Unmarshal(item.Post.Embed, &embed); err == nil && embed.Type == recordEmbedViewType {
			return true
		}
	}
	return false
}
