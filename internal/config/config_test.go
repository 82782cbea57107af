package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/scanline/internal/compress"
	"github.com/jackzampolin/scanline/internal/pipeline"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Thresholds != pipeline.DefaultThresholds() {
		t.Errorf("thresholds = %+v", cfg.Thresholds)
	}
	if len(cfg.CompressionLevels) != 3 {
		t.Errorf("expected 3 compression levels, got %d", len(cfg.CompressionLevels))
	}
	if cfg.Pipeline.MaxRetries != 3 || cfg.Pipeline.FallbackConfidence != 60 || cfg.Pipeline.MinWordConfidence != 30 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_REDIS_PASSWORD", "secret123")

		result := ResolveEnvVars("${TEST_REDIS_PASSWORD}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_ToRedisConfig(t *testing.T) {
	t.Setenv("TEST_STREAM_PASSWORD", "pw-123")

	cfg := DefaultConfig()
	cfg.Analytics.Redis.Password = "${TEST_STREAM_PASSWORD}"
	cfg.Analytics.Redis.DB = 2

	rc := cfg.ToRedisConfig()
	if rc.Password != "pw-123" {
		t.Errorf("password = %q, want resolved value", rc.Password)
	}
	if rc.DB != 2 || rc.Stream != "scanline:ocr-events" || rc.Addr != "127.0.0.1:6379" {
		t.Errorf("redis config = %+v", rc)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero page count", func(c *Config) { c.Thresholds.MaxPageCount = 0 }, "max_page_count"},
		{"heap over 100", func(c *Config) { c.Thresholds.MaxHeapUsagePercent = 120 }, "max_heap_usage_percent"},
		{"no levels", func(c *Config) { c.CompressionLevels = nil }, "at least one level"},
		{"quality increases", func(c *Config) { c.CompressionLevels[1].JPEGQuality = 95 }, "compression_levels"},
		{"unknown engine", func(c *Config) { c.Pipeline.Engine = "cuneiform" }, "pipeline.engine"},
		{"unknown color mode", func(c *Config) { c.Pipeline.ColorMode = "sepia" }, "pipeline.color_mode"},
		{"no workers", func(c *Config) { c.Workers.Count = 0 }, "workers.count"},
		{"opacity out of range", func(c *Config) { c.Pipeline.TextOpacity = 2 }, "text_opacity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}

	t.Run("level errors keep their sentinel", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.CompressionLevels[2].Level = 1
		if err := cfg.Validate(); !errors.Is(err, compress.ErrInvalidLevels) {
			t.Errorf("Validate() error = %v, want ErrInvalidLevels", err)
		}
	})
}

func TestNewManager(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		mgr, err := NewManager(writeConfig(t, "{}\n"))
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if cfg.Thresholds != pipeline.DefaultThresholds() {
			t.Errorf("thresholds = %+v", cfg.Thresholds)
		}
		if cfg.Pipeline.RetryDelay != 2*time.Second {
			t.Errorf("retry delay = %v", cfg.Pipeline.RetryDelay)
		}
		if len(cfg.CompressionLevels) != 3 || cfg.CompressionLevels[2].JPEGQuality != 50 {
			t.Errorf("levels = %+v", cfg.CompressionLevels)
		}
	})

	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
thresholds:
  max_page_count: 10
compression_levels:
  - level: 1
    jpeg_quality: 70
    max_width: 2000
  - level: 2
    jpeg_quality: 40
    max_width: 1000
    force_grayscale: true
pipeline:
  engine: mock
  retry_delay: 500ms
`)
		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Thresholds.MaxPageCount != 10 {
			t.Errorf("max_page_count = %d, want 10", cfg.Thresholds.MaxPageCount)
		}
		if cfg.Thresholds.MaxResolutionPx != 10000 {
			t.Errorf("unset threshold lost its default: %d", cfg.Thresholds.MaxResolutionPx)
		}
		if len(cfg.CompressionLevels) != 2 || !cfg.CompressionLevels[1].ForceGrayscale {
			t.Errorf("levels = %+v", cfg.CompressionLevels)
		}
		if cfg.Pipeline.Engine != "mock" || cfg.Pipeline.RetryDelay != 500*time.Millisecond {
			t.Errorf("pipeline = %+v", cfg.Pipeline)
		}
		if mgr.ConfigFileUsed() != configFile {
			t.Errorf("ConfigFileUsed() = %q", mgr.ConfigFileUsed())
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("SCANLINE_SERVER_PORT", "9191")
		t.Setenv("SCANLINE_WORKERS_COUNT", "6")

		mgr, err := NewManager(writeConfig(t, "server:\n  port: \"8081\"\n"))
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if cfg.Server.Port != "9191" {
			t.Errorf("server.port = %q, want env override", cfg.Server.Port)
		}
		if cfg.Workers.Count != 6 {
			t.Errorf("workers.count = %d, want 6", cfg.Workers.Count)
		}
	})

	t.Run("rejects invalid levels", func(t *testing.T) {
		configFile := writeConfig(t, `
compression_levels:
  - level: 1
    jpeg_quality: 50
    max_width: 1000
  - level: 2
    jpeg_quality: 80
    max_width: 1000
`)
		if _, err := NewManager(configFile); !errors.Is(err, compress.ErrInvalidLevels) {
			t.Errorf("NewManager() error = %v, want ErrInvalidLevels", err)
		}
	})

	t.Run("unreadable file", func(t *testing.T) {
		if _, err := NewManager(writeConfig(t, "thresholds: [not, a, map\n")); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Scanline configuration") {
		t.Error("missing header")
	}
	if !strings.Contains(string(data), "retry_delay: 2s") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("written default does not load: %v", err)
	}
	cfg := mgr.Get()
	want := DefaultConfig()
	if cfg.Thresholds != want.Thresholds || cfg.Pipeline != want.Pipeline || cfg.Server != want.Server {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", cfg, want)
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Register multiple callbacks
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Call Get concurrently to verify no race conditions
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Thresholds.MaxPageCount
			}
			done <- struct{}{}
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "thresholds:\n  max_page_count: 20\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	if got := mgr.Get().Thresholds.MaxPageCount; got != 20 {
		t.Errorf("initial value mismatch: expected 20, got %d", got)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Int64

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(int64(cfg.Thresholds.MaxPageCount))
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("thresholds:\n  max_page_count: 40\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	// Wait for the watcher to detect the change (fsnotify is async)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if lastValue.Load() == 40 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Thresholds.MaxPageCount; got != 40 {
		t.Errorf("config not updated: expected 40, got %d", got)
	}
	if v := lastValue.Load(); v != 40 {
		t.Errorf("callback received wrong value: expected 40, got %d", v)
	}
}
