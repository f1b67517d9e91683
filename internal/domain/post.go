package domain

import (
	"encoding/json"
	"time"
)

// Post is a single item from the account's author feed, reduced to the
// attributes the sweep pipeline needs.
type Post struct {
	// URI is the AT-URI of the deletable record (e.g.
	// at://did:plc:abc/app.bsky.feed.post/3l3qo2vuowo2b). For reposts this
	// points at the viewer's repost record when the service exposes it.
	URI string

	// CID is the content identifier of the record.
	CID string

	// CreatedAt is the record's creation time in UTC. When the record
	// carries no usable timestamp the service's indexedAt is used instead.
	CreatedAt time.Time

	// Text is the post body used for keyword matching.
	Text string

	// IsReply reports whether the record replies to another post.
	IsReply bool

	// IsRepost reports whether the feed item is a repost of another
	// post's content (a repost reason or an embedded record).
	IsRepost bool

	// Raw is the full feed-item JSON as returned by the service, kept so
	// backups preserve everything the service knew about the post.
	Raw json.RawMessage
}

// Candidate pairs a post with the decision that it matched the active
// criteria. Candidates are processed one at a time and discarded.
type Candidate struct {
	Post Post
}
