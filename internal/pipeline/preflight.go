package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/jackzampolin/scanline/internal/enhance"
)

// Report is the advisory outcome of Preflight. It never blocks an attempt.
type Report struct {
	Valid            bool         `json:"valid"`
	Issues           []string     `json:"issues"`
	Recommendations  []string     `json:"recommendations"`
	Dims             enhance.Dims `json:"dims"`
	SizeBytes        int64        `json:"size_bytes"`
	HeapUsagePercent float64      `json:"heap_usage_percent"`
}

func (r *Report) issue(rec, format string, args ...any) {
	r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
	if rec != "" {
		r.Recommendations = append(r.Recommendations, rec)
	}
}

// Preflight checks a page against the thresholds without decoding pixels.
// pageCount is the number of pages in the enclosing document.
func Preflight(page PageBuffer, pageCount int, t Thresholds, mon MemoryMonitor) Report {
	r := Report{
		Issues:          []string{},
		Recommendations: []string{},
		SizeBytes:       int64(len(page.Data)),
	}

	if len(page.Data) == 0 {
		r.issue("upload the page again", "page buffer is empty")
	}
	if mime := strings.ToLower(page.MIMEType); mime != "" && !SupportedMIMETypes[mime] {
		r.issue("convert the page to JPEG or PNG", "%v: %s", ErrUnsupportedMIME, page.MIMEType)
	}

	if len(page.Data) > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(page.Data))
		if err != nil {
			r.issue("check that the file is a valid image", "cannot read image header: %v", err)
		} else {
			r.Dims = enhance.Dims{Width: cfg.Width, Height: cfg.Height}
			if max(cfg.Width, cfg.Height) > t.MaxResolutionPx {
				r.issue(fmt.Sprintf("downscale to at most %dpx on the longer side", t.MaxResolutionPx),
					"resolution %dx%d exceeds %dpx", cfg.Width, cfg.Height, t.MaxResolutionPx)
			}
			if area := int64(cfg.Width) * int64(cfg.Height); area > t.MaxPixelArea {
				r.issue("the page will be downscaled during retries",
					"pixel area %d exceeds %d", area, t.MaxPixelArea)
			}
		}
	}

	if r.SizeBytes > t.MaxFileSizeBytes {
		r.issue("the original will be skipped in favor of a compressed copy",
			"size %d bytes exceeds %d", r.SizeBytes, t.MaxFileSizeBytes)
	}
	if pageCount > t.MaxPageCount {
		r.issue(fmt.Sprintf("split the document into parts of at most %d pages", t.MaxPageCount),
			"page count %d exceeds %d", pageCount, t.MaxPageCount)
	}

	if mon != nil {
		r.HeapUsagePercent = mon.HeapUsagePercent()
		if r.HeapUsagePercent > t.MaxHeapUsagePercent {
			r.issue("retry when the server is less busy",
				"heap usage %.1f%% exceeds %.1f%%", r.HeapUsagePercent, t.MaxHeapUsagePercent)
		}
	}

	r.Valid = len(r.Issues) == 0
	return r
}
