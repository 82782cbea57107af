// Package ocr defines the text extraction contract and the multi-strategy
// extractor that picks the best result across page segmentation modes.
package ocr

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Strategy is a page segmentation mode passed to the engine.
type Strategy string

const (
	StrategyAuto        Strategy = "auto"
	StrategySingleBlock Strategy = "single_block"
	StrategySingleLine  Strategy = "single_line"
	StrategySparseText  Strategy = "sparse_text"
)

// FallbackStrategies run when the auto pass is weak or fails.
var FallbackStrategies = []Strategy{StrategySingleBlock, StrategySingleLine, StrategySparseText}

// BBox is a pixel rectangle with the origin at the top-left of the image.
type BBox struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Width returns X1-X0.
func (b BBox) Width() int { return b.X1 - b.X0 }

// Height returns Y1-Y0.
func (b BBox) Height() int { return b.Y1 - b.Y0 }

// Word is a single recognized token.
type Word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Result is the output of one recognition run.
type Result struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"` // 0-100
	Words      []Word   `json:"words"`
	Strategy   Strategy `json:"strategy"`
}

// OverlayWords returns words that clear the confidence floor, in reading order
// as produced by the engine. Blank tokens are dropped.
func (r *Result) OverlayWords(min float64) []Word {
	if r == nil {
		return nil
	}
	out := make([]Word, 0, len(r.Words))
	for _, w := range r.Words {
		if w.Confidence > min && strings.TrimSpace(w.Text) != "" {
			out = append(out, w)
		}
	}
	return out
}

// Engine is an OCR backend. Implementations may hold native state and are not
// required to be safe for concurrent use.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, strategy Strategy) (*Result, error)
	Close() error
}

// EngineError is returned when every strategy failed for a page.
type EngineError struct {
	Engine   string
	Failures map[Strategy]error
}

func (e *EngineError) Error() string {
	keys := make([]string, 0, len(e.Failures))
	for s := range e.Failures {
		keys = append(keys, string(s))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Failures[Strategy(k)]))
	}
	return fmt.Sprintf("%s: all strategies failed (%s)", e.Engine, strings.Join(parts, "; "))
}

// Unwrap exposes the auto strategy failure, which is usually the most telling.
func (e *EngineError) Unwrap() error {
	if err, ok := e.Failures[StrategyAuto]; ok {
		return err
	}
	for _, err := range e.Failures {
		return err
	}
	return nil
}
