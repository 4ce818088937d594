package recent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrap/papertrap/internal/job"
)

func infoFor(id uint64, doc string) job.Info {
	return job.Info{
		JobID:        id,
		DocumentName: doc,
		UserName:     "alice",
		OutputFormat: job.OutputPDF,
		Timestamp:    time.Now(),
		Origin:       job.OriginNetwork,
		DataSize:     128,
	}
}

func TestLog_CaptureThenCompletion(t *testing.T) {
	l := NewLog(10)
	ctx := context.Background()

	require.NoError(t, l.RecordCapture(ctx, infoFor(1, "report")))

	e, ok := l.Get(1)
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, e.Status)

	info := infoFor(1, "report")
	info.PageCount = 3
	require.NoError(t, l.RecordCompletion(ctx, info, []string{"/out/a.pdf"}, ""))

	e, ok = l.Get(1)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, e.Status)
	assert.Equal(t, []string{"/out/a.pdf"}, e.OutputFiles)
	assert.Equal(t, 3, e.PageCount)
	assert.False(t, e.CompletedAt.IsZero())
}

func TestLog_NilFilesMarksFailed(t *testing.T) {
	l := NewLog(10)
	ctx := context.Background()

	require.NoError(t, l.RecordCapture(ctx, infoFor(2, "bad job")))
	require.NoError(t, l.RecordCompletion(ctx, infoFor(2, "bad job"), nil, "render failed"))

	e, ok := l.Get(2)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, "render failed", e.Failure)
}

func TestLog_CompletionWithoutCaptureCreatesEntry(t *testing.T) {
	l := NewLog(10)

	require.NoError(t, l.RecordCompletion(context.Background(), infoFor(3, "spool timeout"), nil, "spool file never stabilized"))

	e, ok := l.Get(3)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, "spool timeout", e.DocumentName)
}

func TestLog_EvictsOldestBeyondCapacity(t *testing.T) {
	l := NewLog(3)
	ctx := context.Background()

	for id := uint64(1); id <= 5; id++ {
		require.NoError(t, l.RecordCapture(ctx, infoFor(id, "doc")))
	}

	_, ok := l.Get(1)
	assert.False(t, ok, "oldest entries are evicted")
	_, ok = l.Get(2)
	assert.False(t, ok)
	_, ok = l.Get(5)
	assert.True(t, ok)

	snap := l.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, uint64(5), snap[0].JobID, "snapshot is newest first")
	assert.Equal(t, uint64(3), snap[2].JobID)
}
