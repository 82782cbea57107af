package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/jackzampolin/scanline/internal/analytics"
	"github.com/jackzampolin/scanline/internal/compress"
	"github.com/jackzampolin/scanline/internal/enhance"
	"github.com/jackzampolin/scanline/internal/normalize"
	"github.com/jackzampolin/scanline/internal/ocr"
	"github.com/jackzampolin/scanline/internal/resources"
)

// Thresholds are static resource limits checked by preflight and attempts.
type Thresholds struct {
	MaxResolutionPx     int     `mapstructure:"max_resolution_px" yaml:"max_resolution_px" json:"max_resolution_px"`
	MaxPixelArea        int64   `mapstructure:"max_pixel_area" yaml:"max_pixel_area" json:"max_pixel_area"`
	MaxFileSizeBytes    int64   `mapstructure:"max_file_size_bytes" yaml:"max_file_size_bytes" json:"max_file_size_bytes"`
	MaxPageCount        int     `mapstructure:"max_page_count" yaml:"max_page_count" json:"max_page_count"`
	MaxHeapUsagePercent float64 `mapstructure:"max_heap_usage_percent" yaml:"max_heap_usage_percent" json:"max_heap_usage_percent"`
}

// DefaultThresholds returns production limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxResolutionPx:     10000,
		MaxPixelArea:        50_000_000,
		MaxFileSizeBytes:    10 << 20,
		MaxPageCount:        50,
		MaxHeapUsagePercent: 85,
	}
}

// Validate rejects non-positive limits.
func (t Thresholds) Validate() error {
	var errs []error
	if t.MaxResolutionPx <= 0 {
		errs = append(errs, errors.New("max_resolution_px must be positive"))
	}
	if t.MaxPixelArea <= 0 {
		errs = append(errs, errors.New("max_pixel_area must be positive"))
	}
	if t.MaxFileSizeBytes <= 0 {
		errs = append(errs, errors.New("max_file_size_bytes must be positive"))
	}
	if t.MaxPageCount <= 0 {
		errs = append(errs, errors.New("max_page_count must be positive"))
	}
	if t.MaxHeapUsagePercent <= 0 || t.MaxHeapUsagePercent > 100 {
		errs = append(errs, errors.New("max_heap_usage_percent must be in (0,100]"))
	}
	return errors.Join(errs...)
}

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// Config configures a Pipeline.
type Config struct {
	// Engine is owned by the pipeline and closed by Close.
	Engine  ocr.Engine
	Tracker *resources.Tracker
	Sink    analytics.Sink
	Monitor MemoryMonitor
	Logger  *slog.Logger

	Thresholds Thresholds
	Levels     []compress.Level
	MaxRetries int
	RetryDelay time.Duration

	FallbackConfidence float64
	ColorMode          normalize.Mode
	Conditioning       enhance.Options

	// now and gc are overridden in tests.
	now func() time.Time
	gc  func()
}

func (c *Config) applyDefaults() error {
	if c.Engine == nil {
		return errors.New("pipeline: engine is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracker == nil {
		c.Tracker = resources.NewTracker(resources.WithLogger(c.Logger))
	}
	if c.Sink == nil {
		c.Sink = analytics.LogSink{Logger: c.Logger}
	}
	if c.Monitor == nil {
		c.Monitor = &RuntimeMonitor{}
	}
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = DefaultThresholds()
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("pipeline thresholds: %w", err)
	}
	if c.Levels == nil {
		c.Levels = compress.DefaultLevels()
	}
	if err := compress.ValidateLevels(c.Levels); err != nil {
		return err
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.FallbackConfidence <= 0 {
		c.FallbackConfidence = ocr.DefaultFallbackBelow
	}
	if c.ColorMode == "" {
		c.ColorMode = normalize.ModeAuto
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.gc == nil {
		c.gc = runtime.GC
	}
	return nil
}
