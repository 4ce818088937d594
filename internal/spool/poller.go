package spool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/papertrap/papertrap/internal/job"
)

// QueueJob is the queue-reported metadata for one pending print job.
type QueueJob struct {
	ID           uint32
	DocumentName string
	UserName     string
	MachineName  string
	PageCount    int
}

// Queue abstracts the OS print-queue API: enumerate pending jobs and remove
// one by id. Real bindings are platform glue and live outside this core.
type Queue interface {
	Jobs(ctx context.Context) ([]QueueJob, error)
	Remove(ctx context.Context, id uint32) error
}

// Sink receives captured payloads (or capture failures) from ingestion.
type Sink interface {
	Submit(payload []byte, origin job.Origin)
	SubmitFailure(origin job.Origin, err error)
}

// PollerConfig tunes the spooler ingestion loop.
type PollerConfig struct {
	PrinterName  string
	SpoolDir     string
	PollInterval time.Duration
	// ErrorBackoff is the extra pause after a queue enumeration error.
	ErrorBackoff time.Duration
	Monitor      MonitorConfig
}

func (c *PollerConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 2 * time.Second
	}
}

// Poller repeatedly enumerates the print queue, captures each new job's
// spool payload via the stability monitor, and removes the job from the
// queue exactly once whether capture succeeded or not. Jobs are processed
// serially: the OS queue already serializes arrival in practice, and a
// slow-to-stabilize job delaying later ones is an accepted trade-off.
type Poller struct {
	cfg     PollerConfig
	queue   Queue
	monitor *Monitor
	sink    Sink
	logger  *slog.Logger

	wg       sync.WaitGroup
	stopChan chan struct{}

	// handled tracks queue job ids already captured so a job is never
	// reprocessed while its removal is still in flight.
	handled map[uint32]bool
}

// NewPoller creates a spooler ingestion poller.
func NewPoller(cfg PollerConfig, queue Queue, sink Sink, logger *slog.Logger) *Poller {
	cfg.applyDefaults()
	return &Poller{
		cfg:      cfg,
		queue:    queue,
		monitor:  NewMonitor(cfg.Monitor, logger),
		sink:     sink,
		logger:   logger,
		stopChan: make(chan struct{}),
		handled:  make(map[uint32]bool),
	}
}

// Start launches the polling loop.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)

	p.logger.Info("Spooler ingestion started",
		slog.String("printer", p.cfg.PrinterName),
		slog.String("spool_dir", p.cfg.SpoolDir),
		slog.Duration("poll_interval", p.cfg.PollInterval),
	)
}

// Stop signals the loop to exit and waits for it.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
	p.logger.Info("Spooler ingestion stopped")
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.PollInterval):
		}

		jobs, err := p.queue.Jobs(ctx)
		if err != nil {
			p.logger.Error("Failed to enumerate print queue",
				slog.String("printer", p.cfg.PrinterName),
				slog.String("error", err.Error()),
			)
			select {
			case <-p.stopChan:
				return
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.ErrorBackoff):
			}
			continue
		}

		p.pruneHandled(jobs)

		for _, qj := range jobs {
			if p.handled[qj.ID] {
				continue
			}
			p.handled[qj.ID] = true
			p.captureJob(ctx, qj)

			select {
			case <-p.stopChan:
				return
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}

// captureJob locates the job's spool payload, waits for it to stabilize,
// and hands the bytes to the sink. The queue entry is removed exactly once
// in every path so the queue never stalls on a bad job.
func (p *Poller) captureJob(ctx context.Context, qj QueueJob) {
	origin := job.Origin{
		Kind:         job.OriginSpooler,
		SpoolerJobID: qj.ID,
		DocumentName: qj.DocumentName,
		UserName:     qj.UserName,
		MachineName:  qj.MachineName,
		PageCount:    qj.PageCount,
	}

	p.logger.Info("Spooler job discovered",
		slog.Uint64("queue_job_id", uint64(qj.ID)),
		slog.String("document", qj.DocumentName),
		slog.String("user", qj.UserName),
	)

	defer p.removeFromQueue(ctx, qj.ID)

	payload, err := p.capturePayload(ctx)
	if err != nil {
		p.logger.Warn("Spooler job capture failed",
			slog.Uint64("queue_job_id", uint64(qj.ID)),
			slog.String("error", err.Error()),
		)
		p.sink.SubmitFailure(origin, err)
		return
	}

	p.sink.Submit(payload, origin)
}

func (p *Poller) capturePayload(ctx context.Context) ([]byte, error) {
	path, err := p.locateSpoolFile()
	if err != nil {
		return nil, err
	}

	if _, err := p.monitor.Watch(ctx, path); err != nil {
		return nil, err
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool file %s: %w", path, err)
	}
	if len(payload) == 0 {
		return nil, job.ErrEmptyPayload
	}
	return payload, nil
}

// locateSpoolFile picks the most recently modified spool file in the
// spooler's storage directory. This is a heuristic match, not a guaranteed
// per-job mapping: with concurrent submissions to the same queue it can
// pair a job with its neighbor's payload. The OS API offers no per-job file
// handle, so recency is the best signal available.
func (p *Poller) locateSpoolFile() (string, error) {
	entries, err := os.ReadDir(p.cfg.SpoolDir)
	if err != nil {
		return "", fmt.Errorf("failed to read spool dir %s: %w", p.cfg.SpoolDir, err)
	}

	var (
		newest     string
		newestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !isSpoolFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(p.cfg.SpoolDir, e.Name())
			newestTime = info.ModTime()
		}
	}

	if newest == "" {
		return "", fmt.Errorf("no spool file found in %s", p.cfg.SpoolDir)
	}
	return newest, nil
}

func isSpoolFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".spl" || ext == ".tmp" || ext == ".prn"
}

func (p *Poller) removeFromQueue(ctx context.Context, id uint32) {
	if err := p.queue.Remove(ctx, id); err != nil {
		p.logger.Error("Failed to remove job from print queue",
			slog.Uint64("queue_job_id", uint64(id)),
			slog.String("error", err.Error()),
		)
	}
}

// pruneHandled drops ids that the queue no longer reports, so the handled
// set stays bounded over a long-running process.
func (p *Poller) pruneHandled(current []QueueJob) {
	if len(p.handled) == 0 {
		return
	}
	live := make(map[uint32]bool, len(current))
	for _, qj := range current {
		live[qj.ID] = true
	}
	for id := range p.handled {
		if !live[id] {
			delete(p.handled, id)
		}
	}
}
