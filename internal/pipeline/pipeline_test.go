package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrap/papertrap/internal/job"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeConverter returns canned results and records call order.
type fakeConverter struct {
	mu     sync.Mutex
	calls  int
	result job.Result
	err    error
}

func (f *fakeConverter) Convert(ctx context.Context, payload []byte, detected job.Format, baseName, docName string) (job.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

type callbackRecorder struct {
	mu    sync.Mutex
	files [][]string
	infos []job.Info
}

func (c *callbackRecorder) fn(files []string, info job.Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = append(c.files, files)
	c.infos = append(c.infos, info)
}

func (c *callbackRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.infos)
}

func newTestPipeline(conv Converter, cb job.CompletionFunc) *Pipeline {
	return New(Config{
		OutputFormat: job.OutputPDF,
		Converter:    conv,
		OnComplete:   cb,
		CountPages:   func(string) int { return 0 },
	}, testLogger())
}

func TestSubmit_CallbackInvokedExactlyOnceOnSuccess(t *testing.T) {
	conv := &fakeConverter{result: job.Result{Files: []string{"/out/a.pdf"}}}
	rec := &callbackRecorder{}
	p := newTestPipeline(conv, rec.fn)

	p.Submit([]byte("%PDF-1.4 payload bytes"), job.Origin{Kind: job.OriginNetwork, PeerAddr: "127.0.0.1:555"})

	require.Equal(t, 1, rec.count())
	assert.Equal(t, []string{"/out/a.pdf"}, rec.files[0])
	assert.Equal(t, uint64(1), rec.infos[0].JobID)
	assert.Equal(t, "Unknown", rec.infos[0].DocumentName)
	assert.Equal(t, job.OriginNetwork, rec.infos[0].Origin)
}

func TestSubmit_CallbackInvokedExactlyOnceOnConversionFailure(t *testing.T) {
	conv := &fakeConverter{err: errors.New("conversion chain exhausted")}
	rec := &callbackRecorder{}
	p := newTestPipeline(conv, rec.fn)

	p.Submit([]byte("payload that cannot convert"), job.Origin{Kind: job.OriginNetwork})

	require.Equal(t, 1, rec.count())
	assert.Nil(t, rec.files[0], "failure reports nil files")
}

func TestSubmitFailure_CallbackReceivesNilFiles(t *testing.T) {
	conv := &fakeConverter{}
	rec := &callbackRecorder{}
	p := newTestPipeline(conv, rec.fn)

	p.SubmitFailure(job.Origin{
		Kind:         job.OriginSpooler,
		SpoolerJobID: 11,
		DocumentName: "stuck document",
		UserName:     "bob",
	}, job.ErrSpoolTimeout)

	require.Equal(t, 1, rec.count())
	assert.Nil(t, rec.files[0])
	assert.Equal(t, "stuck document", rec.infos[0].DocumentName)
	assert.Equal(t, "bob", rec.infos[0].UserName)
	assert.Equal(t, 0, conv.calls, "capture failures never reach the converter")
}

func TestSubmit_CallbackPanicIsContained(t *testing.T) {
	conv := &fakeConverter{result: job.Result{Files: []string{"/out/a.pdf"}}}
	p := newTestPipeline(conv, func(files []string, info job.Info) {
		panic("user callback exploded")
	})

	assert.NotPanics(t, func() {
		p.Submit([]byte("%PDF-1.4 payload"), job.Origin{Kind: job.OriginNetwork})
	})
}

func TestSubmit_JobIDsUniqueAndIncreasingUnderConcurrency(t *testing.T) {
	conv := &fakeConverter{result: job.Result{Files: []string{"/out/a.pdf"}}}
	rec := &callbackRecorder{}
	p := newTestPipeline(conv, rec.fn)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Submit([]byte("concurrent payload"), job.Origin{Kind: job.OriginNetwork})
		}()
	}
	wg.Wait()

	require.Equal(t, n, rec.count())

	ids := make([]uint64, 0, n)
	for _, info := range rec.infos {
		ids = append(ids, info.JobID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		assert.Equal(t, uint64(i+1), id, "ids must be unique and gap-free")
	}
}

func TestSubmit_RasterPageCountFromFileList(t *testing.T) {
	conv := &fakeConverter{result: job.Result{
		Files: []string{"/out/p_page001.png", "/out/p_page002.png", "/out/p_page003.png"},
	}}
	rec := &callbackRecorder{}
	p := New(Config{
		OutputFormat: job.OutputPNG,
		Converter:    conv,
		OnComplete:   rec.fn,
	}, testLogger())

	p.Submit([]byte("%!PS three pages"), job.Origin{Kind: job.OriginNetwork})

	require.Equal(t, 1, rec.count())
	assert.Equal(t, 3, rec.infos[0].PageCount)
}

func TestSubmit_SpoolerPageCountPreserved(t *testing.T) {
	conv := &fakeConverter{result: job.Result{Files: []string{"/out/a.pdf"}}}
	rec := &callbackRecorder{}
	p := newTestPipeline(conv, rec.fn)

	p.Submit([]byte("%PDF-1.4 data"), job.Origin{
		Kind:      job.OriginSpooler,
		PageCount: 7,
	})

	require.Equal(t, 1, rec.count())
	assert.Equal(t, 7, rec.infos[0].PageCount)
}

type failingRecorder struct {
	mu          sync.Mutex
	captures    int
	completions int
}

func (r *failingRecorder) RecordCapture(ctx context.Context, info job.Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures++
	return errors.New("database unavailable")
}

func (r *failingRecorder) RecordCompletion(ctx context.Context, info job.Info, files []string, failure string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions++
	return errors.New("database unavailable")
}

func TestSubmit_RecorderErrorsDoNotBlockCompletion(t *testing.T) {
	conv := &fakeConverter{result: job.Result{Files: []string{"/out/a.pdf"}}}
	rec := &callbackRecorder{}
	store := &failingRecorder{}

	p := New(Config{
		OutputFormat: job.OutputPDF,
		Converter:    conv,
		OnComplete:   rec.fn,
		Recorder:     store,
		CountPages:   func(string) int { return 1 },
	}, testLogger())

	p.Submit([]byte("%PDF-1.4 data"), job.Origin{Kind: job.OriginNetwork})

	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 1, store.captures)
	assert.Equal(t, 1, store.completions)
}

func TestOutputBaseName(t *testing.T) {
	arrived := time.Date(2024, 3, 5, 14, 30, 9, 0, time.UTC)

	tests := []struct {
		name    string
		docName string
		id      uint64
		want    string
	}{
		{
			name:    "network job falls back to id",
			docName: "",
			id:      12,
			want:    "20240305_143009_job12",
		},
		{
			name:    "document name is sanitized",
			docName: "Quarterly Report: Q1/2024 *final*",
			id:      13,
			want:    "20240305_143009_Quarterly_Report_Q12024_final",
		},
		{
			name:    "hostile path characters removed",
			docName: "../../etc/passwd",
			id:      14,
			want:    "20240305_143009_etcpasswd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &job.Job{
				ID:        tt.id,
				ArrivedAt: arrived,
				Origin:    job.Origin{DocumentName: tt.docName},
			}
			assert.Equal(t, tt.want, outputBaseName(j))
		})
	}
}
