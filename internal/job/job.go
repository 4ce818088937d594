package job

import "time"

// Format identifies the content type sniffed from a raw print payload.
type Format string

const (
	FormatPDF        Format = "PDF"
	FormatPostScript Format = "POSTSCRIPT"
	FormatXPS        Format = "XPS"
	FormatPCL        Format = "PCL"
	FormatHTML       Format = "HTML"
	FormatImage      Format = "IMAGE"
	FormatText       Format = "TEXT"
	FormatUnknown    Format = "UNKNOWN"
)

// OutputFormat is the file format the pipeline is configured to produce.
type OutputFormat string

const (
	OutputPDF  OutputFormat = "PDF"
	OutputPNG  OutputFormat = "PNG"
	OutputJPEG OutputFormat = "JPEG"
	OutputTIFF OutputFormat = "TIFF"
	OutputPS   OutputFormat = "PS"
	OutputRAW  OutputFormat = "RAW"
)

// IsRaster reports whether the format is a per-page image format.
func (f OutputFormat) IsRaster() bool {
	return f == OutputPNG || f == OutputJPEG || f == OutputTIFF
}

// ColorDepth selects the raster device variant for PNG output.
type ColorDepth string

const (
	Depth24Bit ColorDepth = "24bit"
	Depth8Bit  ColorDepth = "8bit"
	Depth1Bit  ColorDepth = "1bit"
)

// OriginKind distinguishes the two ingestion paths.
type OriginKind string

const (
	OriginNetwork OriginKind = "network"
	OriginSpooler OriginKind = "spooler"
)

// Origin records where a job came from. For network jobs only PeerAddr is
// known; spooler jobs carry the queue-reported metadata.
type Origin struct {
	Kind         OriginKind
	PeerAddr     string
	SpoolerJobID uint32
	DocumentName string
	UserName     string
	MachineName  string
	PageCount    int
}

// Job is one captured print submission. Immutable once built: the detected
// format is assigned exactly once by the sniffer and never reassigned.
type Job struct {
	ID        uint64
	ArrivedAt time.Time
	Origin    Origin
	Payload   []byte
	Format    Format
}

// Info is the metadata handed to the completion callback.
type Info struct {
	JobID        uint64       `json:"job_id"`
	DocumentName string       `json:"document_name"`
	UserName     string       `json:"user_name"`
	MachineName  string       `json:"machine_name"`
	PageCount    int          `json:"page_count"`
	OutputFormat OutputFormat `json:"output_format"`
	Timestamp    time.Time    `json:"timestamp"`
	Origin       OriginKind   `json:"origin"`
	DataSize     int          `json:"data_size"`
}

// Result is the outcome of converting one job. Files is ordered by page
// number starting at 1 for multi-page raster output, or holds a single entry.
// A successful Result never has an empty Files list.
type Result struct {
	Files    []string
	Degraded bool
}

// CompletionFunc receives the final outcome for a job, exactly once.
// files is nil when the job failed outright. Panics and errors inside the
// callback are caught and logged by the reporter; they never reach the
// ingestion loops.
type CompletionFunc func(files []string, info Info)
