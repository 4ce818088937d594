package render

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/papertrap/papertrap/internal/job"
)

// Candidate is one renderer executable that was found on this machine.
type Candidate struct {
	Path string
	// XPSCapable marks the gxps-flavored interpreters that understand XPS
	// input; plain Ghostscript builds do not.
	XPSCapable bool
}

// candidateName pairs a well-known executable name with its capability.
type candidateName struct {
	name       string
	xpsCapable bool
}

// knownNames lists renderer executables in discovery order: bundled Windows
// builds first, then the common Unix names.
var knownNames = []candidateName{
	{"gxpswin64.exe", true},
	{"gxpswin32.exe", true},
	{"gxps", true},
	{"gswin64c.exe", false},
	{"gswin32c.exe", false},
	{"gs.exe", false},
	{"gs", false},
}

// Discover searches the configured directories, then PATH, for renderer
// executables. The returned slice preserves discovery order and may be
// empty; the orchestrator treats that as "renderer unavailable".
func Discover(searchDirs []string) []Candidate {
	var found []Candidate
	seen := make(map[string]bool)

	add := func(path string, xps bool) {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		found = append(found, Candidate{Path: abs, XPSCapable: xps})
	}

	for _, dir := range searchDirs {
		for _, kn := range knownNames {
			path := filepath.Join(dir, kn.name)
			if fileExists(path) {
				add(path, kn.xpsCapable)
			}
		}
	}

	for _, kn := range knownNames {
		if path, err := exec.LookPath(kn.name); err == nil {
			add(path, kn.xpsCapable)
		}
	}

	return found
}

// Rank orders candidates for a given input format: XPS input prefers the
// XPS-capable interpreters, everything else prefers plain Ghostscript. All
// candidates stay in the list so callers can fall through on failure.
func Rank(format job.Format, candidates []Candidate) []Candidate {
	preferXPS := format == job.FormatXPS

	ranked := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.XPSCapable == preferXPS {
			ranked = append(ranked, c)
		}
	}
	for _, c := range candidates {
		if c.XPSCapable != preferXPS {
			ranked = append(ranked, c)
		}
	}
	return ranked
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
