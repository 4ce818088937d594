// Package convert maps (detected format, desired format) pairs to an
// ordered chain of conversion strategies with degradation fallbacks.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/papertrap/papertrap/internal/job"
	"github.com/papertrap/papertrap/internal/render"
)

// Options holds the per-pipeline conversion settings.
type Options struct {
	OutputDir     string
	TempDir       string
	DesiredFormat job.OutputFormat
	DPI           int
	ColorDepth    job.ColorDepth
}

func (o *Options) applyDefaults() {
	if o.DPI <= 0 {
		o.DPI = 300
	}
	if o.ColorDepth == "" {
		o.ColorDepth = job.Depth24Bit
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
}

// Orchestrator turns raw job bytes into output files. It never produces an
// empty success: an exhausted strategy chain degrades to writing the raw
// input bytes, and only a payload with no bytes at all is a hard failure.
type Orchestrator struct {
	opts       Options
	invoker    *render.Invoker
	candidates []render.Candidate
	logger     *slog.Logger
}

// New creates an Orchestrator. candidates may be empty; every render
// strategy then degrades immediately.
func New(opts Options, invoker *render.Invoker, candidates []render.Candidate, logger *slog.Logger) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		opts:       opts,
		invoker:    invoker,
		candidates: candidates,
		logger:     logger,
	}
}

// input carries one conversion request through the strategy chain.
type input struct {
	payload  []byte
	detected job.Format
	// baseName is the output filename stem (timestamp + job identity),
	// already sanitized by the reporter.
	baseName string
	// docName is the human-readable document name for placeholder pages.
	docName string
}

// strategy is one attempt in an ordered fallback chain.
type strategy struct {
	name string
	run  func(ctx context.Context, in input) (job.Result, error)
}

// Convert runs the strategy chain for the configured desired format.
func (o *Orchestrator) Convert(ctx context.Context, payload []byte, detected job.Format, baseName, docName string) (job.Result, error) {
	if len(payload) == 0 {
		return job.Result{}, job.ErrEmptyPayload
	}

	in := input{payload: payload, detected: detected, baseName: baseName, docName: docName}

	var lastErr error
	for _, s := range o.plan(detected) {
		res, err := s.run(ctx, in)
		if err == nil {
			if len(res.Files) == 0 {
				// Guard the invariant: success implies output.
				lastErr = fmt.Errorf("strategy %s produced no files", s.name)
				continue
			}
			if res.Degraded {
				o.logger.Warn("Conversion degraded",
					slog.String("strategy", s.name),
					slog.String("detected", string(detected)),
					slog.String("desired", string(o.opts.DesiredFormat)),
				)
			}
			return res, nil
		}
		lastErr = err
		o.logger.Warn("Conversion strategy failed, trying next",
			slog.String("strategy", s.name),
			slog.String("error", err.Error()),
		)
	}

	return job.Result{}, fmt.Errorf("conversion chain exhausted: %w", lastErr)
}

// plan builds the ordered strategy chain for one detected format and the
// configured desired format. The raw-bytes fallback terminates every chain
// that could fail, so a captured payload always yields some file.
func (o *Orchestrator) plan(detected job.Format) []strategy {
	switch o.opts.DesiredFormat {
	case job.OutputRAW:
		return []strategy{o.writeRaw()}

	case job.OutputPS:
		return []strategy{o.writeVerbatim(".ps")}

	case job.OutputPDF:
		switch detected {
		case job.FormatPDF:
			return []strategy{o.writeVerbatim(".pdf"), o.writeRaw()}
		case job.FormatPostScript, job.FormatXPS:
			return []strategy{o.renderToPDF(), o.writeRaw()}
		default:
			// Low-fidelity by design: the renderer cannot interpret
			// these inputs, so describe the job on a single page.
			return []strategy{o.placeholderPDF(), o.writeRaw()}
		}

	case job.OutputPNG, job.OutputJPEG, job.OutputTIFF:
		return []strategy{o.rasterize(), o.writeRaw()}

	default:
		return []strategy{o.writeRaw()}
	}
}

// writeVerbatim copies the payload into the output directory unchanged.
func (o *Orchestrator) writeVerbatim(ext string) strategy {
	return strategy{
		name: "verbatim" + ext,
		run: func(ctx context.Context, in input) (job.Result, error) {
			path := filepath.Join(o.opts.OutputDir, in.baseName+ext)
			if err := os.WriteFile(path, in.payload, 0o644); err != nil {
				return job.Result{}, fmt.Errorf("failed to write %s: %w", path, err)
			}
			return job.Result{Files: []string{path}}, nil
		},
	}
}

// writeRaw is the terminal degradation: raw bytes with a .prn marker.
func (o *Orchestrator) writeRaw() strategy {
	return strategy{
		name: "raw-fallback",
		run: func(ctx context.Context, in input) (job.Result, error) {
			path := filepath.Join(o.opts.OutputDir, in.baseName+"_raw.prn")
			if err := os.WriteFile(path, in.payload, 0o644); err != nil {
				return job.Result{}, fmt.Errorf("failed to write %s: %w", path, err)
			}
			degraded := o.opts.DesiredFormat != job.OutputRAW
			return job.Result{Files: []string{path}, Degraded: degraded}, nil
		},
	}
}

// renderToPDF performs a single renderer invocation with the pdfwrite
// device against the ranked candidate list.
func (o *Orchestrator) renderToPDF() strategy {
	return strategy{
		name: "render-pdf",
		run: func(ctx context.Context, in input) (job.Result, error) {
			tempIn, err := o.stagePayload(in)
			if err != nil {
				return job.Result{}, err
			}
			defer os.Remove(tempIn)

			outPath := filepath.Join(o.opts.OutputDir, in.baseName+".pdf")
			files, err := o.renderWithCandidates(ctx, in.detected, render.Invocation{
				Device:     "pdfwrite",
				DPI:        o.opts.DPI,
				InputPath:  tempIn,
				OutputPath: outPath,
			})
			if err != nil {
				return job.Result{}, err
			}
			return job.Result{Files: files}, nil
		},
	}
}

// rasterize is the two-stage path: obtain a PDF intermediate by the PDF
// rules, then render it per page with the desired raster device. The
// intermediate is deleted on success and retained for diagnosis on failure.
func (o *Orchestrator) rasterize() strategy {
	return strategy{
		name: "rasterize",
		run: func(ctx context.Context, in input) (job.Result, error) {
			intermediate, degraded, err := o.intermediatePDF(ctx, in)
			if err != nil {
				return job.Result{}, err
			}

			device := o.rasterDevice()
			pattern := filepath.Join(o.opts.OutputDir,
				fmt.Sprintf("%s_page%%03d%s", in.baseName, o.rasterExt()))

			files, err := o.renderWithCandidates(ctx, job.FormatPDF, render.Invocation{
				Device:     device,
				DPI:        o.opts.DPI,
				AntiAlias:  true,
				InputPath:  intermediate,
				OutputPath: pattern,
			})
			if err != nil {
				o.logger.Warn("Raster stage failed, keeping intermediate PDF for diagnosis",
					slog.String("intermediate", intermediate),
				)
				return job.Result{}, err
			}

			_ = os.Remove(intermediate)
			return job.Result{Files: files, Degraded: degraded}, nil
		},
	}
}

// intermediatePDF produces the private PDF used as raster input, following
// the same rules as the PDF output mode. The bool reports whether the
// intermediate is a descriptive placeholder rather than a faithful rendering,
// which makes the raster pages degraded output too.
func (o *Orchestrator) intermediatePDF(ctx context.Context, in input) (string, bool, error) {
	tempPDF := filepath.Join(o.opts.TempDir,
		fmt.Sprintf("%s_intermediate.pdf", uuid.NewString()))

	switch in.detected {
	case job.FormatPDF:
		if err := os.WriteFile(tempPDF, in.payload, 0o644); err != nil {
			return "", false, fmt.Errorf("failed to stage intermediate PDF: %w", err)
		}
		return tempPDF, false, nil

	case job.FormatPostScript, job.FormatXPS:
		tempIn, err := o.stagePayload(in)
		if err != nil {
			return "", false, err
		}
		defer os.Remove(tempIn)

		if _, err := o.renderWithCandidates(ctx, in.detected, render.Invocation{
			Device:     "pdfwrite",
			DPI:        o.opts.DPI,
			InputPath:  tempIn,
			OutputPath: tempPDF,
		}); err != nil {
			return "", false, err
		}
		return tempPDF, false, nil

	default:
		doc := placeholderDocument(in.docName, len(in.payload), in.detected)
		if err := os.WriteFile(tempPDF, doc, 0o644); err != nil {
			return "", false, fmt.Errorf("failed to write placeholder intermediate: %w", err)
		}
		return tempPDF, true, nil
	}
}

// placeholderPDF writes the single-page descriptive document directly to
// the output directory.
func (o *Orchestrator) placeholderPDF() strategy {
	return strategy{
		name: "placeholder-pdf",
		run: func(ctx context.Context, in input) (job.Result, error) {
			path := filepath.Join(o.opts.OutputDir, in.baseName+".pdf")
			doc := placeholderDocument(in.docName, len(in.payload), in.detected)
			if err := os.WriteFile(path, doc, 0o644); err != nil {
				return job.Result{}, fmt.Errorf("failed to write placeholder: %w", err)
			}
			return job.Result{Files: []string{path}, Degraded: true}, nil
		},
	}
}

// renderWithCandidates tries each ranked renderer executable until one both
// exits cleanly and produces output.
func (o *Orchestrator) renderWithCandidates(ctx context.Context, detected job.Format, call render.Invocation) ([]string, error) {
	ranked := render.Rank(detected, o.candidates)
	if len(ranked) == 0 {
		return nil, job.ErrNoRenderer
	}

	for _, cand := range ranked {
		call.Exe = cand.Path
		outcome, err := o.invoker.Run(ctx, call)
		if err != nil {
			o.logger.Warn("Renderer candidate unusable",
				slog.String("exe", cand.Path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if outcome.Succeeded() {
			return outcome.ProducedFiles, nil
		}
		o.logger.Warn("Renderer candidate failed",
			slog.String("exe", cand.Path),
			slog.Int("exit_code", outcome.ExitCode),
		)
	}

	return nil, job.ErrRenderFailed
}

// stagePayload writes the payload to a temp file with the extension the
// renderer expects for the detected input format.
func (o *Orchestrator) stagePayload(in input) (string, error) {
	ext := ".ps"
	switch in.detected {
	case job.FormatXPS:
		ext = ".xps"
	case job.FormatPDF:
		ext = ".pdf"
	}

	path := filepath.Join(o.opts.TempDir,
		fmt.Sprintf("%s_input%s", uuid.NewString(), ext))
	if err := os.WriteFile(path, in.payload, 0o644); err != nil {
		return "", fmt.Errorf("failed to stage renderer input: %w", err)
	}
	return path, nil
}

func (o *Orchestrator) rasterDevice() string {
	switch o.opts.DesiredFormat {
	case job.OutputPNG:
		switch o.opts.ColorDepth {
		case job.Depth8Bit:
			return "pnggray"
		case job.Depth1Bit:
			return "pngmono"
		default:
			return "png16m"
		}
	case job.OutputJPEG:
		return "jpeg"
	case job.OutputTIFF:
		return "tiff24nc"
	default:
		return "png16m"
	}
}

func (o *Orchestrator) rasterExt() string {
	switch o.opts.DesiredFormat {
	case job.OutputJPEG:
		return ".jpg"
	case job.OutputTIFF:
		return ".tiff"
	default:
		return ".png"
	}
}
