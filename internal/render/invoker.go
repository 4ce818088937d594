// Package render invokes the external renderer (a Ghostscript-family
// interpreter) and interprets its exit status and produced files.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Outcome captures everything the orchestrator needs to judge an invocation:
// the process exit code, its stderr, and the output files found on disk.
type Outcome struct {
	ExitCode      int
	Stderr        string
	ProducedFiles []string
}

// Succeeded reports whether the invocation both exited cleanly and left the
// expected output behind. A zero exit with no files is still a failure.
func (o *Outcome) Succeeded() bool {
	return o.ExitCode == 0 && len(o.ProducedFiles) > 0
}

// Invocation describes one renderer run.
type Invocation struct {
	Exe        string
	Device     string
	DPI        int
	AntiAlias  bool
	InputPath  string
	OutputPath string // may contain a %03d page-number verb
}

// Invoker runs renderer invocations with a bounded timeout.
type Invoker struct {
	logger  *slog.Logger
	timeout time.Duration
}

// NewInvoker creates an Invoker. timeout bounds each individual invocation;
// on expiry the renderer process is killed, not merely abandoned.
func NewInvoker(logger *slog.Logger, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Invoker{logger: logger, timeout: timeout}
}

// Run executes a single renderer invocation and collects its output files.
// An error is returned only when the process could not be run at all; a
// nonzero exit or missing output is reported through the Outcome.
func (inv *Invoker) Run(ctx context.Context, call Invocation) (*Outcome, error) {
	args := []string{
		"-dNOPAUSE",
		"-dBATCH",
		"-dSAFER",
		"-dQUIET",
		fmt.Sprintf("-sDEVICE=%s", call.Device),
		fmt.Sprintf("-r%d", call.DPI),
	}
	if call.AntiAlias {
		args = append(args,
			"-dTextAlphaBits=4",
			"-dGraphicsAlphaBits=4",
		)
	}
	args = append(args,
		fmt.Sprintf("-sOutputFile=%s", call.OutputPath),
		call.InputPath,
	)

	runCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, call.Exe, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// Renderers fork helper processes that inherit the stderr pipe; killing
	// only the direct child would leave Run blocked on the pipe until the
	// whole tree exits. Put the invocation in its own process group, kill
	// the group on deadline, and let WaitDelay force the pipes closed if
	// anything survives the kill.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = time.Second

	inv.logger.Debug("Invoking renderer",
		slog.String("exe", call.Exe),
		slog.String("device", call.Device),
		slog.String("output", call.OutputPath),
	)

	err := cmd.Run()

	outcome := &Outcome{Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) || errors.Is(err, exec.ErrWaitDelay):
			// The process group was killed at the deadline.
			inv.logger.Warn("Renderer invocation timed out",
				slog.String("exe", call.Exe),
				slog.Duration("timeout", inv.timeout),
			)
			outcome.ExitCode = -1
			return outcome, nil
		case errors.As(err, &exitErr):
			outcome.ExitCode = exitErr.ExitCode()
		default:
			// Could not start the process at all (missing binary, perms).
			return nil, fmt.Errorf("failed to run renderer %s: %w", call.Exe, err)
		}
	}

	outcome.ProducedFiles = collectOutputs(call.OutputPath)

	if outcome.ExitCode != 0 {
		inv.logger.Warn("Renderer exited with error",
			slog.String("exe", call.Exe),
			slog.Int("exit_code", outcome.ExitCode),
			slog.String("stderr", truncate(outcome.Stderr, 512)),
		)
	}

	return outcome, nil
}

// collectOutputs resolves the files an invocation produced. Patterned paths
// are probed page by page from 1 until a probe misses; the contiguous run is
// the page-ordered result. Plain paths are a single stat.
func collectOutputs(outputPath string) []string {
	if !strings.Contains(outputPath, "%") {
		if _, err := os.Stat(outputPath); err != nil {
			return nil
		}
		return []string{outputPath}
	}
	return CollectPages(outputPath)
}

// ExpandPage substitutes a 1-based page number into a renderer output
// pattern such as "job7_%03d.png".
func ExpandPage(pattern string, page int) string {
	return fmt.Sprintf(pattern, page)
}

// CollectPages probes sequential page numbers starting at 1 and returns the
// contiguous run of files that exist. Gaps terminate collection so the
// result is always ordered with no holes.
func CollectPages(pattern string) []string {
	var files []string
	for page := 1; ; page++ {
		path := ExpandPage(pattern, page)
		if _, err := os.Stat(path); err != nil {
			break
		}
		files = append(files, path)
	}
	return files
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
