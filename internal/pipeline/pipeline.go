// Package pipeline wires ingestion to conversion and owns job identity and
// completion reporting. One Pipeline instance is built at startup and passed
// to both ingestion paths; the job-id counter is its only shared mutable
// state.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/papertrap/papertrap/internal/job"
	"github.com/papertrap/papertrap/internal/sniff"
)

// Converter turns raw bytes into output files. Satisfied by
// convert.Orchestrator.
type Converter interface {
	Convert(ctx context.Context, payload []byte, detected job.Format, baseName, docName string) (job.Result, error)
}

// Recorder persists job history. Optional; a nil Recorder disables it.
type Recorder interface {
	RecordCapture(ctx context.Context, info job.Info) error
	RecordCompletion(ctx context.Context, info job.Info, files []string, failure string) error
}

// Publisher emits completion events to an external broker. Optional.
type Publisher interface {
	PublishCompletion(ctx context.Context, info job.Info, files []string, failure string) error
}

// Config holds pipeline wiring.
type Config struct {
	OutputFormat job.OutputFormat
	Converter    Converter
	OnComplete   job.CompletionFunc
	Recorder     Recorder
	Publisher    Publisher
	// CountPages resolves a PDF's page count for completion metadata when
	// the spooler did not report one. Defaults to a ledongthuc/pdf based
	// implementation.
	CountPages func(path string) int
}

// Pipeline processes captured payloads: sniff, convert, report. It
// implements the Sink interface both ingestion packages expect.
type Pipeline struct {
	logger       *slog.Logger
	converter    Converter
	outputFormat job.OutputFormat
	onComplete   job.CompletionFunc
	recorder     Recorder
	publisher    Publisher
	countPages   func(path string) int

	jobCounter atomic.Uint64
}

// New creates a Pipeline.
func New(cfg Config, logger *slog.Logger) *Pipeline {
	countPages := cfg.CountPages
	if countPages == nil {
		countPages = pdfPageCount
	}
	return &Pipeline{
		logger:       logger,
		converter:    cfg.Converter,
		outputFormat: cfg.OutputFormat,
		onComplete:   cfg.OnComplete,
		recorder:     cfg.Recorder,
		publisher:    cfg.Publisher,
		countPages:   countPages,
	}
}

// Submit processes one captured payload end to end. Exactly one completion
// report is produced whatever path execution takes.
func (p *Pipeline) Submit(payload []byte, origin job.Origin) {
	j := p.newJob(payload, origin)
	j.Format = sniff.Detect(payload)

	info := p.buildInfo(j)
	p.recordCapture(info)

	p.logger.Info("Processing job",
		slog.Uint64("job_id", j.ID),
		slog.String("origin", string(origin.Kind)),
		slog.String("detected", string(j.Format)),
		slog.Int("bytes", len(payload)),
	)

	baseName := outputBaseName(j)
	res, err := p.converter.Convert(context.Background(), j.Payload, j.Format, baseName, docNameOrUnknown(j.Origin))
	if err != nil {
		p.logger.Error("Job conversion failed",
			slog.Uint64("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		p.report(nil, info, err.Error())
		return
	}

	if info.PageCount == 0 {
		info.PageCount = p.resolvePageCount(res)
	}

	p.logger.Info("Job completed",
		slog.Uint64("job_id", j.ID),
		slog.Int("files", len(res.Files)),
		slog.Bool("degraded", res.Degraded),
	)

	p.report(res.Files, info, "")
}

// SubmitFailure reports a job whose payload never made it out of capture
// (vanished spool file, stability timeout, zero bytes). The callback still
// fires exactly once, with no files.
func (p *Pipeline) SubmitFailure(origin job.Origin, err error) {
	j := p.newJob(nil, origin)
	j.Format = job.FormatUnknown

	info := p.buildInfo(j)
	p.recordCapture(info)

	p.logger.Warn("Job failed during capture",
		slog.Uint64("job_id", j.ID),
		slog.String("origin", string(origin.Kind)),
		slog.String("error", err.Error()),
	)

	p.report(nil, info, err.Error())
}

func (p *Pipeline) newJob(payload []byte, origin job.Origin) *job.Job {
	return &job.Job{
		ID:        p.jobCounter.Add(1),
		ArrivedAt: time.Now(),
		Origin:    origin,
		Payload:   payload,
	}
}

func (p *Pipeline) buildInfo(j *job.Job) job.Info {
	return job.Info{
		JobID:        j.ID,
		DocumentName: docNameOrUnknown(j.Origin),
		UserName:     valueOrUnknown(j.Origin.UserName),
		MachineName:  valueOrUnknown(j.Origin.MachineName),
		PageCount:    j.Origin.PageCount,
		OutputFormat: p.outputFormat,
		Timestamp:    j.ArrivedAt,
		Origin:       j.Origin.Kind,
		DataSize:     len(j.Payload),
	}
}

// report delivers the completion exactly once: user callback first, then
// the optional history store and event publisher. Nothing in here may
// propagate back into the ingestion loops.
func (p *Pipeline) report(files []string, info job.Info, failure string) {
	p.invokeCallback(files, info)

	if p.recorder != nil {
		if err := p.recorder.RecordCompletion(context.Background(), info, files, failure); err != nil {
			p.logger.Error("Failed to record job completion",
				slog.Uint64("job_id", info.JobID),
				slog.String("error", err.Error()),
			)
		}
	}

	if p.publisher != nil {
		if err := p.publisher.PublishCompletion(context.Background(), info, files, failure); err != nil {
			p.logger.Error("Failed to publish completion event",
				slog.Uint64("job_id", info.JobID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Pipeline) invokeCallback(files []string, info job.Info) {
	if p.onComplete == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Completion callback panicked",
				slog.Uint64("job_id", info.JobID),
				slog.Any("panic", r),
			)
		}
	}()
	p.onComplete(files, info)
}

func (p *Pipeline) recordCapture(info job.Info) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordCapture(context.Background(), info); err != nil {
		p.logger.Error("Failed to record job capture",
			slog.Uint64("job_id", info.JobID),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pipeline) resolvePageCount(res job.Result) int {
	if p.outputFormat.IsRaster() {
		return len(res.Files)
	}
	if p.outputFormat == job.OutputPDF && len(res.Files) == 1 && !res.Degraded {
		return p.countPages(res.Files[0])
	}
	return 0
}
