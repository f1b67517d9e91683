package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/blackmichael/bluesky-sweep/internal/domain"
	"github.com/stretchr/testify/assert"
)

var _ domain.ProgressReporter = (*SweepProgress)(nil)

func TestSweepProgressRendersCounts(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewSweepProgress(buf)

	progress.Scanned(50)
	progress.Matched(3)
	progress.Finish()

	output := buf.String()
	assert.Contains(t, output, "scanned 50 posts")
	assert.Contains(t, output, "matched 3")
	assert.True(t, strings.HasSuffix(output, "\n"))
}

func TestSweepProgressSilentWhenUnused(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewSweepProgress(buf)

	progress.Finish()

	assert.Empty(t, buf.String())
}

func TestSweepProgressOverwritesOneLine(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewSweepProgress(buf)

	progress.Scanned(10)
	progress.Scanned(20)
	progress.Finish()

	output := buf.String()
	assert.Equal(t, 1, strings.Count(output, "\n"))
	assert.Equal(t, 2, strings.Count(output, "\r"))
	assert.Contains(t, output, "scanned 20 posts")
}

func TestNewSweepProgressNilWriter(t *testing.T) {
	progress := NewSweepProgress(nil)
	assert.NotNil(t, progress)
}
