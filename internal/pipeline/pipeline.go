package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/scanline/internal/analytics"
	"github.com/jackzampolin/scanline/internal/compress"
	"github.com/jackzampolin/scanline/internal/enhance"
	"github.com/jackzampolin/scanline/internal/normalize"
	"github.com/jackzampolin/scanline/internal/ocr"
	"github.com/jackzampolin/scanline/internal/resources"
)

// Pipeline processes pages sequentially against one engine handle. It is not
// safe for concurrent SubmitPage calls; run one pipeline per worker.
type Pipeline struct {
	cfg       Config
	extractor *ocr.Extractor
	logger    *slog.Logger
}

// New validates cfg and builds a pipeline that owns cfg.Engine.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg: cfg,
		extractor: ocr.NewExtractor(ocr.ExtractorConfig{
			Engine:        cfg.Engine,
			FallbackBelow: cfg.FallbackConfidence,
			Logger:        cfg.Logger,
		}),
		logger: cfg.Logger.With("component", "pipeline"),
	}, nil
}

// Thresholds returns the configured limits.
func (p *Pipeline) Thresholds() Thresholds { return p.cfg.Thresholds }

// Tracker returns the resource tracker used for page buffers.
func (p *Pipeline) Tracker() *resources.Tracker { return p.cfg.Tracker }

// Preflight runs the advisory checks with this pipeline's thresholds.
func (p *Pipeline) Preflight(page PageBuffer, pageCount int) Report {
	return Preflight(page, pageCount, p.cfg.Thresholds, p.cfg.Monitor)
}

// MaxAttempts is min(MaxRetries, number of levels + 1).
func (p *Pipeline) MaxAttempts() int {
	return min(p.cfg.MaxRetries, len(p.cfg.Levels)+1)
}

// Close releases the engine handle.
func (p *Pipeline) Close() error {
	return p.cfg.Engine.Close()
}

// SubmitPage runs the original buffer and then each compression level in
// order until one attempt extracts text. Every attempt emits exactly one
// analytics event before the next begins. When all attempts fail the error
// is an *ExhaustedError.
func (p *Pipeline) SubmitPage(ctx context.Context, page PageBuffer, prio Priority, corr Correlation) (*ProcessedPage, error) {
	if len(page.Data) == 0 {
		return nil, ErrEmptyPage
	}

	logger := p.logger.With("document_id", corr.DocumentID)
	tracker := p.cfg.Tracker
	current := tracker.TrackBuffer(page.Data, "original")
	defer func() { current.Release() }()

	var (
		attemptLog []ExtractionAttempt
		attempt    int
	)

	delay := p.cfg.RetryDelay
	if prio.skipDelay() {
		delay = 0
	}

	run := func() (*ProcessedPage, error) {
		attempt++
		var level *compress.Level
		if attempt > 1 {
			lvl := p.cfg.Levels[attempt-2]
			level = &lvl
		}

		heap := p.cfg.Monitor.HeapUsagePercent()
		start := p.cfg.now()
		rec := ExtractionAttempt{
			AttemptNumber:           attempt,
			InputSizeBytes:          int64(current.Len()),
			HeapUsagePercentAtStart: heap,
		}
		if level != nil {
			n := level.Level
			rec.CompressionLevel = &n
		}

		pp, err := p.attempt(ctx, page, level, &current)
		rec.DurationMs = p.cfg.now().Sub(start).Milliseconds()
		rec.OutputSizeBytes = int64(current.Len())
		if err != nil {
			rec.ErrorMessage = err.Error()
			logger.Warn("ocr attempt failed", "attempt", attempt, "level", levelName(level), "error", err)
		} else {
			rec.Success = true
			pp.CompressionLevel = level
		}
		attemptLog = append(attemptLog, rec)
		p.emit(ctx, corr, rec, confidenceOf(pp))
		return pp, err
	}

	result, err := retry.DoWithData(run,
		retry.Context(ctx),
		retry.Attempts(uint(p.MaxAttempts())),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retry.OnRetry(func(n uint, err error) {
			if heap := p.cfg.Monitor.HeapUsagePercent(); heap > p.cfg.Thresholds.MaxHeapUsagePercent {
				logger.Info("heap above threshold, collecting before retry", "heap_pct", heap)
				p.cfg.gc()
			}
		}),
	)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		ex := &ExhaustedError{
			Attempts:          len(attemptLog),
			LastError:         err,
			OriginalSizeBytes: int64(len(page.Data)),
			Log:               attemptLog,
		}
		p.emitExhausted(ctx, corr, ex)
		return nil, ex
	}

	result.Attempts = attemptLog
	logger.Info("page extracted",
		"attempts", len(attemptLog),
		"level", levelName(result.CompressionLevel),
		"confidence", fmt.Sprintf("%.1f", result.OCR.Confidence),
		"strategy", result.OCR.Strategy,
		"words", len(result.OCR.Words))
	return result, nil
}

// attempt runs one pass. For compressed attempts the current buffer is
// replaced by its recompressed successor; the successor is tracked before the
// predecessor is released.
func (p *Pipeline) attempt(ctx context.Context, page PageBuffer, level *compress.Level, current **resources.Buffer) (*ProcessedPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if level != nil {
		out, err := compress.Apply((*current).Bytes(), *level, p.cfg.Thresholds.MaxFileSizeBytes)
		if err != nil {
			return nil, fmt.Errorf("apply %s: %w", level, err)
		}
		next := p.cfg.Tracker.TrackBuffer(out.Data, fmt.Sprintf("level-%d", level.Level))
		(*current).Release()
		*current = next
	}

	input := (*current).Bytes()
	if int64(len(input)) > p.cfg.Thresholds.MaxFileSizeBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, len(input), p.cfg.Thresholds.MaxFileSizeBytes)
	}

	buf := input
	var normSteps []string
	if corners := page.Corners; corners != nil {
		if level != nil {
			corners = rescaleCorners(page.Data, input, corners)
		}
		out := normalize.CorrectPerspective(buf, corners)
		if out.Applied() {
			buf = out.Buffer
			normSteps = append(normSteps, out.Steps...)
		} else {
			p.logger.Debug("perspective correction skipped", "reason", out.Reason)
		}
	}
	mode := p.cfg.ColorMode
	if page.ColorMode != "" {
		mode = page.ColorMode
	}
	if out := normalize.ApplyColorMode(buf, mode); out.Applied() {
		buf = out.Buffer
		normSteps = append(normSteps, out.Steps...)
	} else {
		p.logger.Debug("color mode skipped", "mode", mode, "reason", out.Reason)
	}

	cond, err := enhance.Condition(buf, p.cfg.Conditioning)
	if err != nil {
		return nil, err
	}

	res, err := p.extractor.Extract(ctx, cond.Enhanced)
	if err != nil {
		return nil, err
	}

	ratio := 0.0
	if len(page.Data) > 0 {
		ratio = float64(len(cond.Enhanced)) / float64(len(page.Data))
	}
	return &ProcessedPage{
		OriginalBuffer: page.Data,
		OCR:            res,
		EnhancedImage:  cond.Enhanced,
		Enhancement: EnhancementMetadata{
			StepsApplied:     cond.StepsApplied,
			Skipped:          cond.Skipped,
			Normalization:    normSteps,
			OriginalDims:     cond.BeforeDims,
			ProcessedDims:    cond.AfterDims,
			CompressionRatio: ratio,
		},
	}, nil
}

// rescaleCorners maps an outline given in the original page's pixel space
// onto a recompressed buffer with different dimensions.
func rescaleCorners(original, current []byte, q *normalize.Quad) *normalize.Quad {
	from, _, err := image.DecodeConfig(bytes.NewReader(original))
	if err != nil || from.Width == 0 || from.Height == 0 {
		return q
	}
	to, _, err := image.DecodeConfig(bytes.NewReader(current))
	if err != nil || (to.Width == from.Width && to.Height == from.Height) {
		return q
	}
	scaled := q.Scale(float64(to.Width)/float64(from.Width), float64(to.Height)/float64(from.Height))
	return &scaled
}

func (p *Pipeline) emit(ctx context.Context, corr Correlation, rec ExtractionAttempt, confidence float64) {
	e := analytics.Event{
		Name:       analytics.AttemptEventName(rec.Success, rec.CompressionLevel != nil),
		Version:    analytics.SchemaVersion,
		Timestamp:  p.cfg.now().UTC(),
		DocumentID: corr.DocumentID,
		UserID:     corr.UserID,
		Attempt: &analytics.AttemptPayload{
			AttemptNumber:    rec.AttemptNumber,
			CompressionLevel: rec.CompressionLevel,
			InputSizeBytes:   rec.InputSizeBytes,
			OutputSizeBytes:  rec.OutputSizeBytes,
			HeapUsagePercent: rec.HeapUsagePercentAtStart,
			Success:          rec.Success,
			Error:            rec.ErrorMessage,
			DurationMs:       rec.DurationMs,
			Confidence:       confidence,
		},
	}
	if err := p.cfg.Sink.Emit(ctx, e); err != nil {
		p.logger.Warn("failed to emit analytics", "event", e.Name, "error", err)
	}
}

func (p *Pipeline) emitExhausted(ctx context.Context, corr Correlation, ex *ExhaustedError) {
	e := analytics.Event{
		Name:       analytics.EventFailureExhausted,
		Version:    analytics.SchemaVersion,
		Timestamp:  p.cfg.now().UTC(),
		DocumentID: corr.DocumentID,
		UserID:     corr.UserID,
		Exhausted: &analytics.ExhaustedPayload{
			Attempts:          ex.Attempts,
			OriginalSizeBytes: ex.OriginalSizeBytes,
			LastError:         ex.LastError.Error(),
		},
	}
	if err := p.cfg.Sink.Emit(ctx, e); err != nil {
		p.logger.Warn("failed to emit analytics", "event", e.Name, "error", err)
	}
}

func confidenceOf(pp *ProcessedPage) float64 {
	if pp == nil || pp.OCR == nil {
		return 0
	}
	return pp.OCR.Confidence
}

func levelName(l *compress.Level) string {
	if l == nil {
		return "original"
	}
	return fmt.Sprintf("%d", l.Level)
}
