package convert

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/papertrap/papertrap/internal/job"
)

// placeholderDocument builds a minimal single-page PDF describing a job the
// renderer could not interpret: document name, payload size, detected type.
// Hand-assembled object by object; the page is plain Helvetica text on US
// Letter, which every PDF consumer can open.
func placeholderDocument(docName string, size int, detected job.Format) []byte {
	if docName == "" {
		docName = "Unknown"
	}

	lines := []string{
		"Captured print job (unconverted)",
		"",
		fmt.Sprintf("Document: %s", docName),
		fmt.Sprintf("Payload size: %d bytes", size),
		fmt.Sprintf("Detected type: %s", detected),
		"",
		"The payload format is not renderable to the configured",
		"output format; this page stands in for the document.",
	}

	var content bytes.Buffer
	content.WriteString("BT\n/F1 12 Tf\n72 720 Td\n16 TL\n")
	for _, line := range lines {
		fmt.Fprintf(&content, "(%s) Tj\nT*\n", escapePDFString(line))
	}
	content.WriteString("ET\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] " +
			"/Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xrefStart := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n", len(objects)+1)
	out.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objects)+1, xrefStart)

	return out.Bytes()
}

// escapePDFString escapes the characters with meaning inside PDF literal
// strings and strips control bytes that would corrupt the stream.
func escapePDFString(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			if r < 0x20 {
				continue
			}
			if r > 0x7e {
				// Non-ASCII is outside WinAnsi's safe subset here.
				b.WriteByte('?')
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
