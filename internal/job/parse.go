package job

import (
	"fmt"
	"strings"
)

// ParseOutputFormat maps a config string like "pdf" or "png" to an
// OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(s) {
	case "", "pdf":
		return OutputPDF, nil
	case "png":
		return OutputPNG, nil
	case "jpeg", "jpg":
		return OutputJPEG, nil
	case "tiff", "tif":
		return OutputTIFF, nil
	case "ps", "postscript":
		return OutputPS, nil
	case "raw":
		return OutputRAW, nil
	default:
		return "", fmt.Errorf("unknown output format: %q", s)
	}
}

// ParseColorDepth maps a config string like "24bit" to a ColorDepth.
func ParseColorDepth(s string) (ColorDepth, error) {
	switch strings.ToLower(s) {
	case "", "24bit":
		return Depth24Bit, nil
	case "8bit":
		return Depth8Bit, nil
	case "1bit":
		return Depth1Bit, nil
	default:
		return "", fmt.Errorf("unknown color depth: %q", s)
	}
}
