package pipeline

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/papertrap/papertrap/internal/job"
)

const maxDocNameLen = 60

// outputBaseName builds the deterministic filename stem for a job:
// {timestamp}_{jobIdOrDocName}. Spooler jobs carry a document name, network
// jobs fall back to the job id.
func outputBaseName(j *job.Job) string {
	ts := j.ArrivedAt.Format("20060102_150405")
	if name := sanitizeDocName(j.Origin.DocumentName); name != "" {
		return fmt.Sprintf("%s_%s", ts, name)
	}
	return fmt.Sprintf("%s_job%d", ts, j.ID)
}

// sanitizeDocName strips everything that is not filename-safe and bounds
// the length so spooler-supplied names cannot produce hostile paths.
func sanitizeDocName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), "._")
	if len(s) > maxDocNameLen {
		s = s[:maxDocNameLen]
	}
	return s
}

func docNameOrUnknown(o job.Origin) string {
	return valueOrUnknown(o.DocumentName)
}

func valueOrUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// pdfPageCount opens a produced PDF and counts its pages. Failures are
// metadata-only, so they degrade to zero rather than erroring.
func pdfPageCount(path string) int {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	return r.NumPage()
}
