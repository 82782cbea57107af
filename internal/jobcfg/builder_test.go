package jobcfg

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jackzampolin/scanline/internal/analytics"
	"github.com/jackzampolin/scanline/internal/config"
	"github.com/jackzampolin/scanline/internal/home"
	"github.com/jackzampolin/scanline/internal/normalize"
	"github.com/jackzampolin/scanline/internal/ocr"
)

func mockConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pipeline.Engine = "mock"
	return cfg
}

func TestBuilder_Engine(t *testing.T) {
	t.Run("mock", func(t *testing.T) {
		engine, err := FromConfig(mockConfig()).Engine()
		if err != nil {
			t.Fatalf("Engine() error = %v", err)
		}
		if engine.Name() != ocr.MockEngineName {
			t.Errorf("Name() = %q", engine.Name())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := mockConfig()
		cfg.Pipeline.Engine = "cuneiform"
		if _, err := FromConfig(cfg).Engine(); err == nil {
			t.Error("expected error for unknown engine")
		}
	})
}

func TestBuilder_PipelineConfig(t *testing.T) {
	cfg := mockConfig()
	cfg.Pipeline.MaxRetries = 2
	cfg.Pipeline.RetryDelay = 750 * time.Millisecond
	cfg.Pipeline.ColorMode = "bw"
	cfg.Thresholds.MaxPageCount = 7

	b := FromConfig(cfg)
	pcfg, err := b.PipelineConfig(ocr.NewMockEngine(), Deps{Sink: analytics.Nop{}})
	if err != nil {
		t.Fatalf("PipelineConfig() error = %v", err)
	}
	if pcfg.MaxRetries != 2 || pcfg.RetryDelay != 750*time.Millisecond {
		t.Errorf("retry settings = %d/%v", pcfg.MaxRetries, pcfg.RetryDelay)
	}
	if pcfg.ColorMode != normalize.ModeBW {
		t.Errorf("ColorMode = %q", pcfg.ColorMode)
	}
	if pcfg.Thresholds.MaxPageCount != 7 {
		t.Errorf("thresholds = %+v", pcfg.Thresholds)
	}
	if len(pcfg.Levels) != len(cfg.CompressionLevels) {
		t.Fatalf("levels = %d", len(pcfg.Levels))
	}

	// The level table is copied per pipeline.
	pcfg.Levels[0].JPEGQuality = 1
	if cfg.CompressionLevels[0].JPEGQuality == 1 {
		t.Error("pipeline config shares the level table with the loaded config")
	}

	t.Run("bad color mode", func(t *testing.T) {
		cfg := mockConfig()
		cfg.Pipeline.ColorMode = "sepia"
		if _, err := FromConfig(cfg).PipelineConfig(ocr.NewMockEngine(), Deps{}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestBuilder_PipelineFactory(t *testing.T) {
	factory := FromConfig(mockConfig()).PipelineFactory(Deps{Sink: analytics.Nop{}})

	p1, err := factory(0)
	if err != nil {
		t.Fatalf("factory(0) error = %v", err)
	}
	defer p1.Close()
	p2, err := factory(1)
	if err != nil {
		t.Fatalf("factory(1) error = %v", err)
	}
	defer p2.Close()

	if p1 == p2 {
		t.Error("factory returned the same pipeline twice")
	}
	if p1.MaxAttempts() != 3 {
		t.Errorf("MaxAttempts() = %d, want 3", p1.MaxAttempts())
	}
}

func TestBuilder_PoolConfig(t *testing.T) {
	cfg := mockConfig()
	cfg.Workers.Count = 3
	cfg.Workers.QueueSize = 9

	pc := FromConfig(cfg).PoolConfig(Deps{})
	if pc.Workers != 3 || pc.QueueSize != 9 || pc.Factory == nil {
		t.Errorf("pool config = %+v", pc)
	}
}

func TestBuilder_IngestConfig(t *testing.T) {
	cfg := mockConfig()
	cfg.Pipeline.RasterDPI = 150
	cfg.Pipeline.MinWordConfidence = 45
	cfg.Thresholds.MaxPageCount = 12

	ic := FromConfig(cfg).IngestConfig(nil, nil, nil)
	if ic.Rasterize.DPI != 150 || ic.Rasterize.MaxPages != 12 {
		t.Errorf("rasterize = %+v", ic.Rasterize)
	}
	if ic.PDF.MinWordConfidence != 45 || ic.PDF.TextOpacity != 0.01 {
		t.Errorf("pdf = %+v", ic.PDF)
	}
}

func TestBuilder_StoreConfig(t *testing.T) {
	root := t.TempDir()
	h, err := home.New(root)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("defaults to home", func(t *testing.T) {
		sc := FromConfig(mockConfig()).StoreConfig(h, nil)
		if sc.DatabasePath != filepath.Join(root, "scanline.db") {
			t.Errorf("DatabasePath = %q", sc.DatabasePath)
		}
		if sc.PDFDir != filepath.Join(root, "documents") {
			t.Errorf("PDFDir = %q", sc.PDFDir)
		}
	})

	t.Run("explicit paths win", func(t *testing.T) {
		cfg := mockConfig()
		cfg.Store.DatabasePath = "/var/lib/scanline/db.sqlite"
		cfg.Store.DocumentsDir = "/var/lib/scanline/pdf"
		sc := FromConfig(cfg).StoreConfig(h, nil)
		if sc.DatabasePath != cfg.Store.DatabasePath || sc.PDFDir != cfg.Store.DocumentsDir {
			t.Errorf("store config = %+v", sc)
		}
	})
}
