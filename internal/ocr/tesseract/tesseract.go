// Package tesseract implements ocr.Engine with gosseract.
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/jackzampolin/scanline/internal/ocr"
)

const EngineName = "tesseract"

var psmByStrategy = map[ocr.Strategy]gosseract.PageSegMode{
	ocr.StrategyAuto:        gosseract.PSM_AUTO,
	ocr.StrategySingleBlock: gosseract.PSM_SINGLE_BLOCK,
	ocr.StrategySingleLine:  gosseract.PSM_SINGLE_LINE,
	ocr.StrategySparseText:  gosseract.PSM_SPARSE_TEXT,
}

// Engine owns a single gosseract client for its lifetime. One engine per
// pipeline; concurrent Recognize calls are serialized.
type Engine struct {
	mu       sync.Mutex
	client   *gosseract.Client
	language string
}

// New creates an engine for one recognition language (e.g. "eng").
func New(language string) (*Engine, error) {
	if language == "" {
		language = "eng"
	}
	c := gosseract.NewClient()
	if err := c.SetLanguage(language); err != nil {
		c.Close()
		return nil, fmt.Errorf("set language %q: %w", language, err)
	}
	return &Engine{client: c, language: language}, nil
}

// LibraryVersion reports the linked Tesseract version.
func LibraryVersion() string { return gosseract.Version() }

func (e *Engine) Name() string { return EngineName }

// Language returns the configured recognition language.
func (e *Engine) Language() string { return e.language }

// Recognize runs tesseract with the page segmentation mode for s.
func (e *Engine) Recognize(ctx context.Context, image []byte, s ocr.Strategy) (*ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	psm, ok := psmByStrategy[s]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", s)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil, errors.New("tesseract engine closed")
	}

	if err := e.client.SetPageSegMode(psm); err != nil {
		return nil, fmt.Errorf("set page seg mode: %w", err)
	}
	if err := e.client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("word boxes: %w", err)
	}

	words := make([]ocr.Word, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		words = append(words, ocr.Word{
			Text:       b.Word,
			Confidence: b.Confidence,
			BBox: ocr.BBox{
				X0: b.Box.Min.X,
				Y0: b.Box.Min.Y,
				X1: b.Box.Max.X,
				Y1: b.Box.Max.Y,
			},
		})
		sum += b.Confidence
	}

	var conf float64
	if len(words) > 0 {
		conf = sum / float64(len(words))
	}
	return &ocr.Result{
		Text:       strings.TrimSpace(text),
		Confidence: conf,
		Words:      words,
	}, nil
}

// Close frees the native client. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
