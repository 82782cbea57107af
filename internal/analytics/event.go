// Package analytics carries per-attempt OCR telemetry to pluggable sinks.
package analytics

import (
	"context"
	"time"
)

// SchemaVersion is stamped on every event and checked by the validator.
const SchemaVersion = 1

// Event names.
const (
	EventSuccessOriginal   = "ocr.success.original"
	EventSuccessCompressed = "ocr.success.compressed"
	EventFailureOriginal   = "ocr.failure.original"
	EventFailureCompressed = "ocr.failure.compressed"
	EventFailureExhausted  = "ocr.failure.all_retries_exhausted"
)

// AttemptEventName picks the event name for one attempt outcome.
func AttemptEventName(success, compressed bool) string {
	switch {
	case success && !compressed:
		return EventSuccessOriginal
	case success:
		return EventSuccessCompressed
	case !compressed:
		return EventFailureOriginal
	default:
		return EventFailureCompressed
	}
}

// AttemptPayload describes one extraction attempt.
type AttemptPayload struct {
	AttemptNumber int `json:"attempt_number"`
	// CompressionLevel is nil for the original buffer.
	CompressionLevel *int    `json:"compression_level"`
	InputSizeBytes   int64   `json:"input_size_bytes"`
	OutputSizeBytes  int64   `json:"output_size_bytes"`
	HeapUsagePercent float64 `json:"heap_usage_percent"`
	Success          bool    `json:"success"`
	Error            string  `json:"error,omitempty"`
	DurationMs       int64   `json:"duration_ms"`
	Confidence       float64 `json:"confidence,omitempty"`
}

// ExhaustedPayload summarizes a page that failed every attempt.
type ExhaustedPayload struct {
	Attempts          int    `json:"attempts"`
	OriginalSizeBytes int64  `json:"original_size_bytes"`
	LastError         string `json:"last_error"`
}

// Event is one analytics record.
type Event struct {
	Name       string            `json:"name"`
	Version    int               `json:"version"`
	Timestamp  time.Time         `json:"timestamp"`
	DocumentID string            `json:"document_id,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	Attempt    *AttemptPayload   `json:"attempt,omitempty"`
	Exhausted  *ExhaustedPayload `json:"exhausted,omitempty"`
}

// Sink receives events. Emit must not block the pipeline for long; sinks that
// talk to the network should apply their own timeouts.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }
