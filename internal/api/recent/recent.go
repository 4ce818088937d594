// Package recent keeps an in-memory ring of the latest job outcomes so the
// status API can answer without touching the database.
package recent

import (
	"context"
	"sync"
	"time"

	"github.com/papertrap/papertrap/internal/job"
)

// Status values for an entry's lifecycle.
const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Entry is one observed job.
type Entry struct {
	JobID        uint64
	DocumentName string
	UserName     string
	MachineName  string
	Origin       string
	OutputFormat string
	OutputFiles  []string
	PageCount    int
	DataSize     int
	Status       string
	Failure      string
	CapturedAt   time.Time
	CompletedAt  time.Time
}

// Log is a fixed-capacity ring of entries, newest kept. It implements the
// pipeline's Recorder interface so it can be fanned in next to the
// persistent history store.
type Log struct {
	mu      sync.Mutex
	entries map[uint64]*Entry
	order   []uint64
	cap     int
}

// NewLog creates a ring keeping at most capacity entries.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 100
	}
	return &Log{
		entries: make(map[uint64]*Entry, capacity),
		cap:     capacity,
	}
}

// RecordCapture inserts an in-flight entry for a freshly captured job.
func (l *Log) RecordCapture(_ context.Context, info job.Info) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[info.JobID]; ok {
		return nil
	}

	l.entries[info.JobID] = &Entry{
		JobID:        info.JobID,
		DocumentName: info.DocumentName,
		UserName:     info.UserName,
		MachineName:  info.MachineName,
		Origin:       string(info.Origin),
		OutputFormat: string(info.OutputFormat),
		PageCount:    info.PageCount,
		DataSize:     info.DataSize,
		Status:       StatusProcessing,
		CapturedAt:   info.Timestamp,
	}
	l.order = append(l.order, info.JobID)
	l.evictLocked()
	return nil
}

// RecordCompletion finalizes an entry with the job's outcome. Jobs that
// failed before capture (no prior RecordCapture call) get a fresh entry.
func (l *Log) RecordCompletion(_ context.Context, info job.Info, files []string, failure string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[info.JobID]
	if !ok {
		e = &Entry{
			JobID:        info.JobID,
			DocumentName: info.DocumentName,
			UserName:     info.UserName,
			MachineName:  info.MachineName,
			Origin:       string(info.Origin),
			OutputFormat: string(info.OutputFormat),
			DataSize:     info.DataSize,
			CapturedAt:   info.Timestamp,
		}
		l.entries[info.JobID] = e
		l.order = append(l.order, info.JobID)
		l.evictLocked()
	}

	e.OutputFiles = files
	e.PageCount = info.PageCount
	e.Failure = failure
	e.CompletedAt = time.Now()
	if files == nil {
		e.Status = StatusFailed
	} else {
		e.Status = StatusCompleted
	}
	return nil
}

// Get returns a copy of the entry for a job id.
func (l *Log) Get(id uint64) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Snapshot returns copies of all retained entries, newest first.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.order))
	for i := len(l.order) - 1; i >= 0; i-- {
		if e, ok := l.entries[l.order[i]]; ok {
			out = append(out, *e)
		}
	}
	return out
}

func (l *Log) evictLocked() {
	for len(l.order) > l.cap {
		delete(l.entries, l.order[0])
		l.order = l.order[1:]
	}
}
