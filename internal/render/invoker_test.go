package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrap/papertrap/internal/job"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writeFakeRenderer drops a shell script that mimics a renderer: on a zero
// exit code it scans its arguments for -sOutputFile= and creates that file
// (expanding a %03d page pattern into `pages` files); on a nonzero exit code
// it writes nothing, like a renderer that choked on its input.
func writeFakeRenderer(t *testing.T, dir string, pages int, exitCode int) string {
	t.Helper()

	script := fmt.Sprintf(`#!/bin/sh
code=%d
if [ "$code" -ne 0 ]; then
  exit "$code"
fi
out=""
for a in "$@"; do
  case "$a" in
    -sOutputFile=*) out="${a#-sOutputFile=}" ;;
  esac
done
if [ -n "$out" ]; then
  case "$out" in
    *%%03d*)
      i=1
      while [ "$i" -le %d ]; do
        touch "$(printf "$out" "$i")"
        i=$((i+1))
      done
      ;;
    *) touch "$out" ;;
  esac
fi
exit 0
`, exitCode, pages)

	path := filepath.Join(dir, "gs")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestInvokerRun_SingleOutput(t *testing.T) {
	dir := t.TempDir()
	exe := writeFakeRenderer(t, dir, 1, 0)

	input := filepath.Join(dir, "input.ps")
	require.NoError(t, os.WriteFile(input, []byte("%!PS"), 0o644))

	inv := NewInvoker(testLogger(), 10*time.Second)
	outcome, err := inv.Run(context.Background(), Invocation{
		Exe:        exe,
		Device:     "pdfwrite",
		DPI:        300,
		InputPath:  input,
		OutputPath: filepath.Join(dir, "out.pdf"),
	})

	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, 0, outcome.ExitCode)
	require.Len(t, outcome.ProducedFiles, 1)
	assert.FileExists(t, outcome.ProducedFiles[0])
}

func TestInvokerRun_MultiPagePattern(t *testing.T) {
	dir := t.TempDir()
	exe := writeFakeRenderer(t, dir, 3, 0)

	inv := NewInvoker(testLogger(), 10*time.Second)
	outcome, err := inv.Run(context.Background(), Invocation{
		Exe:        exe,
		Device:     "png16m",
		DPI:        150,
		AntiAlias:  true,
		InputPath:  filepath.Join(dir, "input.pdf"),
		OutputPath: filepath.Join(dir, "out_%03d.png"),
	})

	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
	require.Len(t, outcome.ProducedFiles, 3)
	for i, f := range outcome.ProducedFiles {
		assert.Contains(t, f, fmt.Sprintf("out_%03d.png", i+1))
	}
}

func TestInvokerRun_NonzeroExit(t *testing.T) {
	dir := t.TempDir()
	exe := writeFakeRenderer(t, dir, 0, 7)

	inv := NewInvoker(testLogger(), 10*time.Second)
	outcome, err := inv.Run(context.Background(), Invocation{
		Exe:        exe,
		Device:     "pdfwrite",
		DPI:        300,
		InputPath:  filepath.Join(dir, "input.ps"),
		OutputPath: filepath.Join(dir, "never-written.pdf"),
	})

	require.NoError(t, err)
	assert.False(t, outcome.Succeeded())
	assert.Equal(t, 7, outcome.ExitCode)
	assert.Empty(t, outcome.ProducedFiles)
}

func TestInvokerRun_ZeroExitWithoutOutputIsNotSuccess(t *testing.T) {
	dir := t.TempDir()

	// Script that exits 0 but never writes the output file.
	exe := filepath.Join(dir, "gs")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	inv := NewInvoker(testLogger(), 10*time.Second)
	outcome, err := inv.Run(context.Background(), Invocation{
		Exe:        exe,
		Device:     "pdfwrite",
		DPI:        300,
		InputPath:  filepath.Join(dir, "input.ps"),
		OutputPath: filepath.Join(dir, "out.pdf"),
	})

	require.NoError(t, err)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.False(t, outcome.Succeeded())
}

func TestInvokerRun_Timeout(t *testing.T) {
	dir := t.TempDir()

	// The script forks a child that inherits stderr, so killing only the
	// direct process would leave Run blocked on the pipe until the child
	// exits. The whole group must die at the deadline.
	exe := filepath.Join(dir, "gs")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\nsleep 30 &\nsleep 30\n"), 0o755))

	inv := NewInvoker(testLogger(), 200*time.Millisecond)

	start := time.Now()
	outcome, err := inv.Run(context.Background(), Invocation{
		Exe:        exe,
		Device:     "pdfwrite",
		DPI:        300,
		InputPath:  filepath.Join(dir, "input.ps"),
		OutputPath: filepath.Join(dir, "out.pdf"),
	})

	require.NoError(t, err)
	assert.False(t, outcome.Succeeded())
	assert.NotEqual(t, 0, outcome.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second, "process must be killed, not waited out")
}

func TestInvokerRun_MissingBinary(t *testing.T) {
	inv := NewInvoker(testLogger(), time.Second)
	_, err := inv.Run(context.Background(), Invocation{
		Exe:        "/nonexistent/renderer-binary",
		Device:     "pdfwrite",
		DPI:        300,
		InputPath:  "in.ps",
		OutputPath: "out.pdf",
	})
	require.Error(t, err)
}

func TestCollectPages_StopsAtGap(t *testing.T) {
	dir := t.TempDir()
	pattern := filepath.Join(dir, "page_%03d.png")

	// Pages 1, 2 and 4 exist; 3 is missing.
	for _, n := range []int{1, 2, 4} {
		require.NoError(t, os.WriteFile(ExpandPage(pattern, n), nil, 0o644))
	}

	files := CollectPages(pattern)
	require.Len(t, files, 2)
	assert.Equal(t, ExpandPage(pattern, 1), files[0])
	assert.Equal(t, ExpandPage(pattern, 2), files[1])
}

func TestRank_XPSInputPrefersXPSCapable(t *testing.T) {
	cands := []Candidate{
		{Path: "/opt/gs", XPSCapable: false},
		{Path: "/opt/gxps", XPSCapable: true},
	}

	ranked := Rank(job.FormatXPS, cands)
	require.Len(t, ranked, 2)
	assert.Equal(t, "/opt/gxps", ranked[0].Path)
	assert.Equal(t, "/opt/gs", ranked[1].Path)

	ranked = Rank(job.FormatPostScript, cands)
	assert.Equal(t, "/opt/gs", ranked[0].Path)
	assert.Equal(t, "/opt/gxps", ranked[1].Path)
}

func TestDiscover_FindsBundledExecutables(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gs"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gxps"), []byte("#!/bin/sh\n"), 0o755))

	cands := Discover([]string{dir})
	require.GreaterOrEqual(t, len(cands), 2)

	var sawGS, sawGXPS bool
	for _, c := range cands {
		switch filepath.Base(c.Path) {
		case "gs":
			if filepath.Dir(c.Path) == dir {
				sawGS = true
				assert.False(t, c.XPSCapable)
			}
		case "gxps":
			if filepath.Dir(c.Path) == dir {
				sawGXPS = true
				assert.True(t, c.XPSCapable)
			}
		}
	}
	assert.True(t, sawGS)
	assert.True(t, sawGXPS)
}
