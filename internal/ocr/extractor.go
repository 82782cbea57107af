package ocr

import (
	"context"
	"log/slog"
)

// DefaultFallbackBelow is the auto-pass confidence under which fallback
// strategies are tried.
const DefaultFallbackBelow = 60.0

// DefaultOverlayConfidence is the minimum word confidence drawn into the text
// layer.
const DefaultOverlayConfidence = 30.0

// Extractor runs an engine across strategies and keeps the most confident
// result.
type Extractor struct {
	engine        Engine
	fallbackBelow float64
	logger        *slog.Logger
}

// ExtractorConfig configures an Extractor.
type ExtractorConfig struct {
	Engine        Engine
	FallbackBelow float64
	Logger        *slog.Logger
}

// NewExtractor creates an extractor over the given engine.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fb := cfg.FallbackBelow
	if fb <= 0 {
		fb = DefaultFallbackBelow
	}
	return &Extractor{
		engine:        cfg.Engine,
		fallbackBelow: fb,
		logger:        logger.With("component", "extractor", "engine", cfg.Engine.Name()),
	}
}

// Engine returns the underlying engine.
func (x *Extractor) Engine() Engine { return x.engine }

// Extract runs the auto strategy and, when it fails or scores below the
// fallback threshold, the remaining strategies. The highest-confidence
// successful run wins; ties keep the earlier strategy.
func (x *Extractor) Extract(ctx context.Context, image []byte) (*Result, error) {
	failures := make(map[Strategy]error)

	best, err := x.run(ctx, image, StrategyAuto)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		failures[StrategyAuto] = err
	} else if best.Confidence >= x.fallbackBelow {
		return best, nil
	}

	if best != nil {
		x.logger.Debug("auto pass below threshold, trying fallbacks",
			"confidence", best.Confidence, "threshold", x.fallbackBelow)
	}

	for _, s := range FallbackStrategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := x.run(ctx, image, s)
		if err != nil {
			failures[s] = err
			continue
		}
		if best == nil || res.Confidence > best.Confidence {
			best = res
		}
	}

	if best == nil {
		return nil, &EngineError{Engine: x.engine.Name(), Failures: failures}
	}
	return best, nil
}

func (x *Extractor) run(ctx context.Context, image []byte, s Strategy) (*Result, error) {
	res, err := x.engine.Recognize(ctx, image, s)
	if err != nil {
		x.logger.Debug("strategy failed", "strategy", s, "error", err)
		return nil, err
	}
	res.Strategy = s
	return res, nil
}
