// Package sniff classifies raw print payloads by byte signature.
package sniff

import (
	"bytes"
	"unicode"
	"unicode/utf8"

	"github.com/papertrap/papertrap/internal/job"
)

const (
	// minPayload is the smallest buffer worth inspecting; anything shorter
	// is reported as UNKNOWN without looking at the bytes.
	minPayload = 10

	// maxPrefix bounds how far into the payload the signature rules look.
	maxPrefix = 1000

	// textThreshold is the fraction of printable runes required to call a
	// payload plain text.
	textThreshold = 0.9
)

var (
	sigPDF     = []byte("%PDF")
	sigPS      = []byte("%!PS")
	sigPSAdobe = []byte("%!PS-Adobe")
	sigZIP     = []byte("PK")
	sigXPSDoc  = []byte("FixedDocument")
	sigPNG     = []byte("\x89PNG\r\n\x1a\n")
	sigJPEG    = []byte("\xff\xd8\xff")
	sigPJL     = []byte("@PJL")

	htmlMarkers = [][]byte{
		[]byte("<!doctype html"),
		[]byte("<html"),
	}
)

// Detect classifies a raw byte buffer. It is a pure, total function: every
// input maps to some Format, defaulting to UNKNOWN. Rules are checked in
// priority order against a bounded prefix; the first match wins.
func Detect(data []byte) job.Format {
	if len(data) < minPayload {
		return job.FormatUnknown
	}

	prefix := data
	if len(prefix) > maxPrefix {
		prefix = prefix[:maxPrefix]
	}

	switch {
	case bytes.HasPrefix(data, sigPDF):
		return job.FormatPDF
	case bytes.HasPrefix(data, sigPS) || bytes.Contains(prefix[:min(len(prefix), 100)], sigPSAdobe):
		return job.FormatPostScript
	case bytes.HasPrefix(data, sigZIP) && bytes.Contains(prefix, sigXPSDoc):
		return job.FormatXPS
	case containsHTMLMarker(prefix):
		return job.FormatHTML
	case data[0] == 0x1b || bytes.Contains(prefix, sigPJL):
		return job.FormatPCL
	case bytes.HasPrefix(data, sigPNG) || bytes.HasPrefix(data, sigJPEG):
		return job.FormatImage
	case looksLikeText(prefix):
		return job.FormatText
	default:
		return job.FormatUnknown
	}
}

func containsHTMLMarker(prefix []byte) bool {
	lower := bytes.ToLower(prefix)
	for _, m := range htmlMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return false
}

// looksLikeText decodes the prefix permissively as UTF-8 and checks that at
// least textThreshold of the decoded runes are printable or whitespace.
// Invalid bytes count against the ratio rather than aborting the check.
func looksLikeText(prefix []byte) bool {
	sample := prefix
	if len(sample) > 500 {
		sample = sample[:500]
	}

	var total, printable int
	for len(sample) > 0 {
		r, size := utf8.DecodeRune(sample)
		sample = sample[size:]
		total++
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}

	if total == 0 {
		return false
	}
	return float64(printable) >= float64(total)*textThreshold
}
