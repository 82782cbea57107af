// Package jobcfg builds pipeline, worker pool, ingest and store configurations
// from the loaded config. The builder reads the current config on every call,
// so pipelines built after a hot reload pick up the new settings.
package jobcfg

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/jackzampolin/scanline/internal/analytics"
	"github.com/jackzampolin/scanline/internal/config"
	"github.com/jackzampolin/scanline/internal/enhance"
	"github.com/jackzampolin/scanline/internal/home"
	"github.com/jackzampolin/scanline/internal/ingest"
	"github.com/jackzampolin/scanline/internal/normalize"
	"github.com/jackzampolin/scanline/internal/ocr"
	"github.com/jackzampolin/scanline/internal/ocr/tesseract"
	"github.com/jackzampolin/scanline/internal/pipeline"
	"github.com/jackzampolin/scanline/internal/rasterize"
	"github.com/jackzampolin/scanline/internal/resources"
	"github.com/jackzampolin/scanline/internal/searchpdf"
	"github.com/jackzampolin/scanline/internal/store"
	"github.com/jackzampolin/scanline/internal/workers"
)

// Deps are the shared services every pipeline is wired to.
type Deps struct {
	Tracker *resources.Tracker
	Sink    analytics.Sink
	Logger  *slog.Logger
}

// Builder turns config sections into component configs.
type Builder struct {
	source func() *config.Config
}

// NewBuilder creates a builder that follows the manager's current config.
func NewBuilder(m *config.Manager) *Builder {
	return &Builder{source: m.Get}
}

// FromConfig creates a builder over a fixed config.
func FromConfig(cfg *config.Config) *Builder {
	return &Builder{source: func() *config.Config { return cfg }}
}

// Config returns the config the next build will use.
func (b *Builder) Config() *config.Config {
	return b.source()
}

// Engine creates the configured OCR engine. Each call returns a new engine
// with its own handle.
func (b *Builder) Engine() (ocr.Engine, error) {
	p := b.source().Pipeline
	switch p.Engine {
	case tesseract.EngineName:
		engine, err := tesseract.New(p.Language)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case ocr.MockEngineName:
		return ocr.NewMockEngine(), nil
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", p.Engine)
	}
}

// PipelineConfig builds a pipeline.Config around engine.
func (b *Builder) PipelineConfig(engine ocr.Engine, deps Deps) (pipeline.Config, error) {
	cfg := b.source()
	mode, err := normalize.ParseMode(cfg.Pipeline.ColorMode)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Engine:             engine,
		Tracker:            deps.Tracker,
		Sink:               deps.Sink,
		Logger:             deps.Logger,
		Thresholds:         cfg.Thresholds,
		Levels:             slices.Clone(cfg.CompressionLevels),
		MaxRetries:         cfg.Pipeline.MaxRetries,
		RetryDelay:         cfg.Pipeline.RetryDelay,
		FallbackConfidence: cfg.Pipeline.FallbackConfidence,
		ColorMode:          mode,
		Conditioning:       enhance.DefaultOptions(),
	}, nil
}

// PipelineFactory returns a workers.Factory that gives every worker its own
// engine and pipeline.
func (b *Builder) PipelineFactory(deps Deps) workers.Factory {
	return func(id int) (*pipeline.Pipeline, error) {
		engine, err := b.Engine()
		if err != nil {
			return nil, fmt.Errorf("worker %d: %w", id, err)
		}
		pcfg, err := b.PipelineConfig(engine, deps)
		if err != nil {
			engine.Close()
			return nil, err
		}
		p, err := pipeline.New(pcfg)
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("worker %d: %w", id, err)
		}
		return p, nil
	}
}

// PoolConfig builds the worker pool config.
func (b *Builder) PoolConfig(deps Deps) workers.Config {
	w := b.source().Workers
	return workers.Config{
		Name:      "ocr",
		Logger:    deps.Logger,
		Workers:   w.Count,
		QueueSize: w.QueueSize,
		Factory:   b.PipelineFactory(deps),
	}
}

// IngestConfig builds the ingest service config.
func (b *Builder) IngestConfig(runner ingest.Runner, sink store.Sink, logger *slog.Logger) ingest.Config {
	cfg := b.source()
	return ingest.Config{
		Runner:     runner,
		Sink:       sink,
		Logger:     logger,
		Thresholds: cfg.Thresholds,
		Rasterize: rasterize.Options{
			DPI:      cfg.Pipeline.RasterDPI,
			MaxPages: cfg.Thresholds.MaxPageCount,
		},
		PDF: searchpdf.Options{
			MinWordConfidence: cfg.Pipeline.MinWordConfidence,
			TextOpacity:       cfg.Pipeline.TextOpacity,
			Logger:            logger,
		},
	}
}

// StoreConfig resolves store paths, defaulting to the home directory.
func (b *Builder) StoreConfig(h *home.Dir, logger *slog.Logger) store.Config {
	s := b.source().Store
	cfg := store.Config{
		DatabasePath: s.DatabasePath,
		PDFDir:       s.DocumentsDir,
		Logger:       logger,
	}
	if cfg.DatabasePath == "" && h != nil {
		cfg.DatabasePath = h.DatabasePath()
	}
	if cfg.PDFDir == "" && h != nil {
		cfg.PDFDir = h.DocumentsPath()
	}
	return cfg
}
