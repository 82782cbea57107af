// Package pipeline runs one page through normalize → condition → extract and
// retries with progressively compressed buffers when an attempt fails.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/jackzampolin/scanline/internal/compress"
	"github.com/jackzampolin/scanline/internal/enhance"
	"github.com/jackzampolin/scanline/internal/normalize"
	"github.com/jackzampolin/scanline/internal/ocr"
)

// Sentinel errors for the pipeline package.
var (
	// ErrEmptyPage is returned for a zero-length page buffer.
	ErrEmptyPage = errors.New("empty page buffer")

	// ErrFileTooLarge fails an attempt whose input exceeds the byte ceiling
	// before the extractor is invoked.
	ErrFileTooLarge = errors.New("page buffer exceeds size ceiling")

	// ErrUnsupportedMIME is reported by preflight for unknown content types.
	ErrUnsupportedMIME = errors.New("unsupported MIME type")
)

// SupportedMIMETypes lists page content types the pipeline can decode.
var SupportedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/tiff": true,
	"image/bmp":  true,
	"image/webp": true,
}

// PageBuffer is one scanned page. It is never modified by the pipeline.
type PageBuffer struct {
	Data     []byte
	MIMEType string
	// SizeHint is the size declared by the uploader, if known.
	SizeHint int64
	// Corners is the detected page outline for perspective correction, in
	// the pixel space of Data.
	Corners *normalize.Quad
	// ColorMode overrides the pipeline's configured mode when set.
	ColorMode normalize.Mode
}

// Priority controls inter-retry waiting.
type Priority struct {
	ImmediateRetry bool `json:"immediate_retry"`
	LowPriority    bool `json:"low_priority"`
}

func (p Priority) skipDelay() bool { return p.ImmediateRetry || p.LowPriority }

// Correlation ties analytics back to the caller's records.
type Correlation struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
}

// ExtractionAttempt is one entry in a page's attempt log.
type ExtractionAttempt struct {
	AttemptNumber int `json:"attempt_number"`
	// CompressionLevel is nil for the original buffer.
	CompressionLevel        *int    `json:"compression_level"`
	InputSizeBytes          int64   `json:"input_size_bytes"`
	OutputSizeBytes         int64   `json:"output_size_bytes"`
	HeapUsagePercentAtStart float64 `json:"heap_usage_percent_at_start"`
	Success                 bool    `json:"success"`
	ErrorMessage            string  `json:"error_message,omitempty"`
	DurationMs              int64   `json:"duration_ms"`
}

// EnhancementMetadata describes how the winning image was produced.
type EnhancementMetadata struct {
	StepsApplied     []string     `json:"steps_applied"`
	Skipped          []string     `json:"skipped,omitempty"`
	Normalization    []string     `json:"normalization,omitempty"`
	OriginalDims     enhance.Dims `json:"original_dims"`
	ProcessedDims    enhance.Dims `json:"processed_dims"`
	CompressionRatio float64      `json:"compression_ratio"`
}

// ProcessedPage is the outcome of a successful SubmitPage.
type ProcessedPage struct {
	OriginalBuffer []byte
	OCR            *ocr.Result
	EnhancedImage  []byte
	Enhancement    EnhancementMetadata
	// CompressionLevel is nil when the original buffer succeeded.
	CompressionLevel *compress.Level
	Attempts         []ExtractionAttempt
}

// ExhaustedError is returned when every attempt for a page failed.
type ExhaustedError struct {
	Attempts          int
	LastError         error
	OriginalSizeBytes int64
	Log               []ExtractionAttempt
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("ocr failed after %d attempts (original %d bytes): %v",
		e.Attempts, e.OriginalSizeBytes, e.LastError)
}

func (e *ExhaustedError) Unwrap() error { return e.LastError }
