package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackzampolin/scanline/internal/analytics"
	"github.com/jackzampolin/scanline/internal/compress"
	"github.com/jackzampolin/scanline/internal/normalize"
	"github.com/jackzampolin/scanline/internal/pipeline"
)

// Config holds scanline configuration.
// Stored at: ~/.scanline/config.yaml
type Config struct {
	Thresholds        pipeline.Thresholds `mapstructure:"thresholds" yaml:"thresholds"`
	CompressionLevels []compress.Level    `mapstructure:"compression_levels" yaml:"compression_levels"`
	Pipeline          PipelineCfg         `mapstructure:"pipeline" yaml:"pipeline"`
	Tracker           TrackerCfg          `mapstructure:"tracker" yaml:"tracker"`
	Workers           WorkersCfg          `mapstructure:"workers" yaml:"workers"`
	Analytics         AnalyticsCfg        `mapstructure:"analytics" yaml:"analytics"`
	Store             StoreCfg            `mapstructure:"store" yaml:"store"`
	Server            ServerCfg           `mapstructure:"server" yaml:"server"`
}

// PipelineCfg configures each OCR pipeline instance.
type PipelineCfg struct {
	Engine             string        `mapstructure:"engine" yaml:"engine"`     // "tesseract" or "mock"
	Language           string        `mapstructure:"language" yaml:"language"` // tesseract language code
	MaxRetries         int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	FallbackConfidence float64       `mapstructure:"fallback_confidence" yaml:"fallback_confidence"`
	MinWordConfidence  float64       `mapstructure:"min_word_confidence" yaml:"min_word_confidence"`
	ColorMode          string        `mapstructure:"color_mode" yaml:"color_mode"`
	TextOpacity        float64       `mapstructure:"text_opacity" yaml:"text_opacity"`
	RasterDPI          float64       `mapstructure:"raster_dpi" yaml:"raster_dpi"`
}

// TrackerCfg configures the resource tracker sweeper.
type TrackerCfg struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	MaxAge        time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// WorkersCfg sizes the pipeline worker pool.
type WorkersCfg struct {
	Count     int `mapstructure:"count" yaml:"count"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// AnalyticsCfg configures where attempt events go.
type AnalyticsCfg struct {
	// MemoryEvents is the size of the ring served by /api/events.
	MemoryEvents int      `mapstructure:"memory_events" yaml:"memory_events"`
	Redis        RedisCfg `mapstructure:"redis" yaml:"redis"`
}

// RedisCfg configures the optional Redis stream sink.
type RedisCfg struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"` // supports ${ENV_VAR} syntax
	DB       int    `mapstructure:"db" yaml:"db"`
	Stream   string `mapstructure:"stream" yaml:"stream"`
	MaxLen   int64  `mapstructure:"max_len" yaml:"max_len"`
	// Container starts a local Redis container with Docker before connecting.
	Container     bool   `mapstructure:"container" yaml:"container"`
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	Image         string `mapstructure:"image" yaml:"image"`
	Port          string `mapstructure:"port" yaml:"port"`
}

// StoreCfg locates the document store. Empty paths resolve under the home
// directory.
type StoreCfg struct {
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	DocumentsDir string `mapstructure:"documents_dir" yaml:"documents_dir"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           string        `mapstructure:"port" yaml:"port"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Thresholds:        pipeline.DefaultThresholds(),
		CompressionLevels: compress.DefaultLevels(),
		Pipeline: PipelineCfg{
			Engine:             "tesseract",
			Language:           "eng",
			MaxRetries:         pipeline.DefaultMaxRetries,
			RetryDelay:         pipeline.DefaultRetryDelay,
			FallbackConfidence: 60,
			MinWordConfidence:  30,
			ColorMode:          string(normalize.ModeAuto),
			TextOpacity:        0.01,
			RasterDPI:          200,
		},
		Tracker: TrackerCfg{
			SweepInterval: 5 * time.Minute,
			MaxAge:        30 * time.Minute,
		},
		Workers: WorkersCfg{
			Count:     2,
			QueueSize: 100,
		},
		Analytics: AnalyticsCfg{
			MemoryEvents: 512,
			Redis: RedisCfg{
				Addr:     "127.0.0.1:6379",
				Password: "${SCANLINE_REDIS_PASSWORD}",
				Stream:   "scanline:ocr-events",
				MaxLen:   10000,
				Image:    "redis:7-alpine",
				Port:     "6379",
			},
		},
		Server: ServerCfg{
			Host:           "127.0.0.1",
			Port:           "8080",
			MaxUploadBytes: 200 << 20,
			RequestTimeout: 10 * time.Minute,
		},
	}
}

// Validate checks every section and returns all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("thresholds: %w", err))
	}
	if len(c.CompressionLevels) == 0 {
		errs = append(errs, errors.New("compression_levels: at least one level is required"))
	} else if err := compress.ValidateLevels(c.CompressionLevels); err != nil {
		errs = append(errs, fmt.Errorf("compression_levels: %w", err))
	}
	switch c.Pipeline.Engine {
	case "tesseract", "mock":
	default:
		errs = append(errs, fmt.Errorf("pipeline.engine: unknown engine %q", c.Pipeline.Engine))
	}
	if _, err := normalize.ParseMode(c.Pipeline.ColorMode); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.color_mode: %w", err))
	}
	if c.Pipeline.MaxRetries < 1 {
		errs = append(errs, errors.New("pipeline.max_retries must be at least 1"))
	}
	if c.Pipeline.RetryDelay < 0 {
		errs = append(errs, errors.New("pipeline.retry_delay must not be negative"))
	}
	if c.Pipeline.TextOpacity < 0 || c.Pipeline.TextOpacity > 1 {
		errs = append(errs, errors.New("pipeline.text_opacity must be in [0,1]"))
	}
	if c.Workers.Count < 1 {
		errs = append(errs, errors.New("workers.count must be at least 1"))
	}
	if c.Workers.QueueSize < 1 {
		errs = append(errs, errors.New("workers.queue_size must be at least 1"))
	}
	return errors.Join(errs...)
}

// ToRedisConfig converts the analytics.redis section for analytics.NewRedisSink.
// It resolves ${ENV_VAR} references in the password.
func (c *Config) ToRedisConfig() analytics.RedisConfig {
	r := c.Analytics.Redis
	return analytics.RedisConfig{
		Addr:     r.Addr,
		Password: ResolveEnvVars(r.Password),
		DB:       r.DB,
		Stream:   r.Stream,
		MaxLen:   r.MaxLen,
	}
}
