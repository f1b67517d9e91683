package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	pages map[string]Page
	fail  map[string]error
	calls []string
}

func (f *fakeSource) ListPosts(ctx context.Context, cursor string) (Page, error) {
	f.calls = append(f.calls, cursor)
	if err, ok := f.fail[cursor]; ok {
		return Page{}, err
	}
	return f.pages[cursor], nil
}

// eventLog records the order of side effects across fakes so ordering
// invariants can be asserted.
type eventLog struct {
	events []string
}

type loggingBackup struct {
	log *eventLog
	err error
}

func (f *loggingBackup) Backup(post Post) error {
	if f.err != nil {
		return f.err
	}
	f.log.events = append(f.log.events, "backup "+post.URI)
	return nil
}

type loggingDeleter struct {
	log  *eventLog
	errs map[string][]error
}

func (f *loggingDeleter) DeletePost(ctx context.Context, post Post) error {
	f.log.events = append(f.log.events, "delete "+post.URI)
	if q := f.errs[post.URI]; len(q) > 0 {
		err := q[0]
		f.errs[post.URI] = q[1:]
		return err
	}
	return nil
}

type loggingRecorder struct {
	log  *eventLog
	uris []string
	err  error
}

func (f *loggingRecorder) Record(post Post) error {
	if f.err != nil {
		return f.err
	}
	f.log.events = append(f.log.events, "record "+post.URI)
	f.uris = append(f.uris, post.URI)
	return nil
}

type memoryArchive struct {
	begun    []RunSummary
	finished []RunSummary
	outcomes []string
}

func (f *memoryArchive) BeginRun(ctx context.Context, s RunSummary) error {
	f.begun = append(f.begun, s)
	return nil
}

func (f *memoryArchive) RecordPost(ctx context.Context, runID string, post Post, outcome Outcome) error {
	f.outcomes = append(f.outcomes, string(outcome)+" "+post.URI)
	return nil
}

func (f *memoryArchive) FinishRun(ctx context.Context, s RunSummary) error {
	f.finished = append(f.finished, s)
	return nil
}

func feedPost(rkey string, age time.Duration) Post {
	return Post{
		URI:       "at://did:plc:me/app.bsky.feed.post/" + rkey,
		CID:       "cid-" + rkey,
		CreatedAt: testNow.Add(-age),
		Text:      "post " + rkey,
	}
}

func mustCriteria(t *testing.T, cfg CriteriaConfig) *Criteria {
	t.Helper()
	c, err := NewCriteria(cfg, testNow)
	require.NoError(t, err)
	return c
}

// quietDeleter retries fast and without jitter so sweep tests stay focused
// on orchestration.
func quietDeleter(pd PostDeleter) *Deleter {
	d := NewDeleter(pd, DeleterConfig{MaxAttempts: 2, BaseBackoff: time.Millisecond}, discardLogger())
	d.sleep = func(ctx context.Context, _ time.Duration) error { return nil }
	d.jitter = func() float64 { return 0.5 }
	return d
}

func TestSweeperDeletesMatches(t *testing.T) {
	day := 24 * time.Hour
	old := feedPost("old", 40*day)
	recent := feedPost("recent", 10*day)
	reply := feedPost("reply", 50*day)
	reply.IsReply = true

	source := &fakeSource{pages: map[string]Page{
		"":   {Posts: []Post{old, recent}, Cursor: "c1"},
		"c1": {Posts: []Post{reply}},
	}}
	log := &eventLog{}
	remote := &loggingDeleter{log: log}
	backup := &loggingBackup{log: log}
	recorder := &loggingRecorder{log: log}
	archive := &memoryArchive{}

	s, err := NewSweeper(SweeperParams{
		Account:  "me.bsky.social",
		RunID:    "run-1",
		Criteria: mustCriteria(t, CriteriaConfig{MaxAge: 30 * day}),
		Source:   source,
		Deleter:  quietDeleter(remote),
		Backup:   backup,
		Recorder: recorder,
		Archive:  archive,
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Deleted)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, []string{"", "c1"}, source.calls)
	assert.Equal(t, []string{
		"record " + old.URI,
		"backup " + old.URI,
		"delete " + old.URI,
	}, log.events)
	assert.Equal(t, []string{"deleted " + old.URI}, archive.outcomes)
	require.Len(t, archive.finished, 1)
	assert.Equal(t, 1, archive.finished[0].Deleted)
}

func TestSweeperBackupPrecedesEveryDelete(t *testing.T) {
	p1 := feedPost("1", time.Hour)
	p2 := feedPost("2", 2*time.Hour)
	p3 := feedPost("3", 3*time.Hour)

	source := &fakeSource{pages: map[string]Page{
		"":   {Posts: []Post{p1, p2}, Cursor: "c1"},
		"c1": {Posts: []Post{p3}},
	}}
	log := &eventLog{}

	s, err := NewSweeper(SweeperParams{
		RunID:    "run-1",
		Criteria: mustCriteria(t, CriteriaConfig{}),
		Source:   source,
		Deleter:  quietDeleter(&loggingDeleter{log: log}),
		Backup:   &loggingBackup{log: log},
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.NoError(t, err)

	// One candidate's full cycle completes before the next begins.
	assert.Equal(t, []string{
		"backup " + p1.URI, "delete " + p1.URI,
		"backup " + p2.URI, "delete " + p2.URI,
		"backup " + p3.URI, "delete " + p3.URI,
	}, log.events)
}

func TestSweeperPreviewIssuesNoDeletes(t *testing.T) {
	p1 := feedPost("1", time.Hour)
	p2 := feedPost("2", 2*time.Hour)

	source := &fakeSource{pages: map[string]Page{
		"": {Posts: []Post{p1, p2}},
	}}
	log := &eventLog{}
	remote := &loggingDeleter{log: log}
	recorder := &loggingRecorder{log: log}
	archive := &memoryArchive{}

	s, err := NewSweeper(SweeperParams{
		RunID:    "run-1",
		Preview:  true,
		Criteria: mustCriteria(t, CriteriaConfig{}),
		Source:   source,
		Deleter:  quietDeleter(remote),
		Backup:   &loggingBackup{log: log},
		Recorder: recorder,
		Archive:  archive,
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, 0, summary.Deleted)
	assert.Equal(t, []string{"record " + p1.URI, "record " + p2.URI}, log.events)
	assert.Equal(t, []string{"previewed " + p1.URI, "previewed " + p2.URI}, archive.outcomes)
}

func TestSweeperPreviewIsIdempotent(t *testing.T) {
	pages := map[string]Page{
		"":   {Posts: []Post{feedPost("1", time.Hour), feedPost("2", 2*time.Hour)}, Cursor: "c1"},
		"c1": {Posts: []Post{feedPost("3", 3*time.Hour)}},
	}
	criteria := mustCriteria(t, CriteriaConfig{Patterns: []string{"post"}})

	run := func() (*RunSummary, []string) {
		recorder := &loggingRecorder{log: &eventLog{}}
		s, err := NewSweeper(SweeperParams{
			RunID:    "run-x",
			Preview:  true,
			Criteria: criteria,
			Source:   &fakeSource{pages: pages},
			Recorder: recorder,
			Logger:   discardLogger(),
		})
		require.NoError(t, err)
		summary, err := s.Run(context.Background())
		require.NoError(t, err)
		return summary, recorder.uris
	}

	first, firstURIs := run()
	second, secondURIs := run()

	assert.Equal(t, firstURIs, secondURIs)
	assert.Equal(t, first.Scanned, second.Scanned)
	assert.Equal(t, first.Matched, second.Matched)
	assert.Equal(t, first.Deleted, second.Deleted)
	assert.Equal(t, first.Failed, second.Failed)
	assert.Equal(t, first.Skipped, second.Skipped)
}

func TestSweeperContinuesPastPermanentFailure(t *testing.T) {
	p1 := feedPost("1", time.Hour)
	p2 := feedPost("2", 2*time.Hour)

	source := &fakeSource{pages: map[string]Page{
		"": {Posts: []Post{p1, p2}},
	}}
	log := &eventLog{}
	remote := &loggingDeleter{
		log: log,
		errs: map[string][]error{
			p1.URI: {&PermanentError{Err: errors.New("record not found")}},
		},
	}
	archive := &memoryArchive{}

	s, err := NewSweeper(SweeperParams{
		RunID:    "run-1",
		Criteria: mustCriteria(t, CriteriaConfig{}),
		Source:   source,
		Deleter:  quietDeleter(remote),
		Archive:  archive,
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Deleted)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, []string{"skipped " + p1.URI, "deleted " + p2.URI}, archive.outcomes)
}

func TestSweeperCountsFailureAfterRetryExhaustion(t *testing.T) {
	p1 := feedPost("1", time.Hour)
	p2 := feedPost("2", 2*time.Hour)
	boom := &TransientError{Err: errors.New("connection reset")}

	source := &fakeSource{pages: map[string]Page{
		"": {Posts: []Post{p1, p2}},
	}}
	remote := &loggingDeleter{
		log:  &eventLog{},
		errs: map[string][]error{p1.URI: {boom, boom}},
	}

	s, err := NewSweeper(SweeperParams{
		RunID:    "run-1",
		Criteria: mustCriteria(t, CriteriaConfig{}),
		Source:   source,
		Deleter:  quietDeleter(remote),
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Deleted)
}

func TestSweeperAbortsWhenListingFails(t *testing.T) {
	p1 := feedPost("1", time.Hour)

	source := &fakeSource{
		pages: map[string]Page{
			"": {Posts: []Post{p1}, Cursor: "c1"},
		},
		fail: map[string]error{"c1": errors.New("upstream 502")},
	}
	archive := &memoryArchive{}

	s, err := NewSweeper(SweeperParams{
		RunID:    "run-1",
		Criteria: mustCriteria(t, CriteriaConfig{}),
		Source:   source,
		Deleter:  quietDeleter(&loggingDeleter{log: &eventLog{}}),
		Archive:  archive,
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	summary, err := s.Run(context.Background())

	var listing *ListingError
	require.ErrorAs(t, err, &listing)
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 1, summary.Deleted)
	// The partial summary still reaches the archive.
	require.Len(t, archive.finished, 1)
	assert.Equal(t, 1, archive.finished[0].Scanned)
}

func TestSweeperAbortsWhenBackupFails(t *testing.T) {
	p1 := feedPost("1", time.Hour)

	source := &fakeSource{pages: map[string]Page{
		"": {Posts: []Post{p1}},
	}}
	log := &eventLog{}

	s, err := NewSweeper(SweeperParams{
		RunID:    "run-1",
		Criteria: mustCriteria(t, CriteriaConfig{}),
		Source:   source,
		Deleter:  quietDeleter(&loggingDeleter{log: log}),
		Backup:   &loggingBackup{log: log, err: errors.New("disk full")},
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	summary, err := s.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup post")
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 0, summary.Deleted)
	assert.Empty(t, log.events)
}

func TestSweeperAbortsWhenRecorderFails(t *testing.T) {
	source := &fakeSource{pages: map[string]Page{
		"": {Posts: []Post{feedPost("1", time.Hour)}},
	}}
	log := &eventLog{}

	s, err := NewSweeper(SweeperParams{
		RunID:    "run-1",
		Criteria: mustCriteria(t, CriteriaConfig{}),
		Source:   source,
		Deleter:  quietDeleter(&loggingDeleter{log: log}),
		Recorder: &loggingRecorder{err: errors.New("permission denied")},
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	_, err = s.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "record match")
	assert.Empty(t, log.events)
}

func TestSweeperDeletesRepeatedItemOnce(t *testing.T) {
	p1 := feedPost("1", time.Hour)

	source := &fakeSource{pages: map[string]Page{
		"":   {Posts: []Post{p1}, Cursor: "c1"},
		"c1": {Posts: []Post{p1}},
	}}
	log := &eventLog{}

	s, err := NewSweeper(SweeperParams{
		RunID:    "run-1",
		Criteria: mustCriteria(t, CriteriaConfig{}),
		Source:   source,
		Deleter:  quietDeleter(&loggingDeleter{log: log}),
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, []string{"delete " + p1.URI}, log.events)
}

func TestSweeperStopsWhenCancelled(t *testing.T) {
	source := &fakeSource{pages: map[string]Page{
		"": {Posts: []Post{feedPost("1", time.Hour)}},
	}}

	s, err := NewSweeper(SweeperParams{
		RunID:    "run-1",
		Preview:  true,
		Criteria: mustCriteria(t, CriteriaConfig{}),
		Source:   source,
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := s.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Scanned)
	assert.Empty(t, source.calls)
}

func TestSweeperCountsUninterpretableItems(t *testing.T) {
	source := &fakeSource{pages: map[string]Page{
		"": {Posts: []Post{feedPost("1", time.Hour)}, Skipped: 2},
	}}

	s, err := NewSweeper(SweeperParams{
		RunID:    "run-1",
		Criteria: mustCriteria(t, CriteriaConfig{}),
		Source:   source,
		Deleter:  quietDeleter(&loggingDeleter{log: &eventLog{}}),
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 1, summary.Deleted)
}

func TestNewSweeperValidatesParams(t *testing.T) {
	criteria := mustCriteria(t, CriteriaConfig{})
	source := &fakeSource{}

	tests := []struct {
		name    string
		params  SweeperParams
		wantErr bool
	}{
		{
			name:    "source required",
			params:  SweeperParams{RunID: "r", Preview: true, Criteria: criteria},
			wantErr: true,
		},
		{
			name:    "criteria required",
			params:  SweeperParams{RunID: "r", Preview: true, Source: source},
			wantErr: true,
		},
		{
			name:    "run id required",
			params:  SweeperParams{Preview: true, Criteria: criteria, Source: source},
			wantErr: true,
		},
		{
			name:    "deleter required outside preview",
			params:  SweeperParams{RunID: "r", Criteria: criteria, Source: source},
			wantErr: true,
		},
		{
			name:   "preview needs no deleter",
			params: SweeperParams{RunID: "r", Preview: true, Criteria: criteria, Source: source},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSweeper(tt.params)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
