package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

const MockEngineName = "mock"

// MockEngine is an Engine for testing and dry runs.
type MockEngine struct {
	// Configurable behavior
	Text       string
	Confidence map[Strategy]float64 // per-strategy confidence; missing = DefaultConfidence
	Failing    map[Strategy]bool
	// FailWhen, if set, is consulted before each call. A non-nil return fails
	// the call.
	FailWhen          func(call int, image []byte, s Strategy) error
	DefaultConfidence float64

	// State
	calls  atomic.Int64
	closed atomic.Bool
}

// NewMockEngine creates a mock engine returning confident text.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		Text:              "mock page text",
		DefaultConfidence: 92,
	}
}

func (m *MockEngine) Name() string { return MockEngineName }

// Calls returns the number of Recognize calls so far.
func (m *MockEngine) Calls() int { return int(m.calls.Load()) }

// Closed reports whether Close was called.
func (m *MockEngine) Closed() bool { return m.closed.Load() }

// Recognize returns a canned result with one word per whitespace token laid
// out left to right on a single line.
func (m *MockEngine) Recognize(ctx context.Context, image []byte, s Strategy) (*Result, error) {
	call := int(m.calls.Add(1))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.closed.Load() {
		return nil, errors.New("mock engine closed")
	}
	if len(image) == 0 {
		return nil, errors.New("empty image")
	}
	if m.FailWhen != nil {
		if err := m.FailWhen(call, image, s); err != nil {
			return nil, err
		}
	}
	if m.Failing[s] {
		return nil, fmt.Errorf("mock failure for %s", s)
	}

	conf := m.DefaultConfidence
	if c, ok := m.Confidence[s]; ok {
		conf = c
	}

	var words []Word
	x := 10
	for _, tok := range strings.Fields(m.Text) {
		w := len(tok) * 12
		words = append(words, Word{
			Text:       tok,
			Confidence: conf,
			BBox:       BBox{X0: x, Y0: 10, X1: x + w, Y1: 32},
		})
		x += w + 8
	}
	return &Result{Text: m.Text, Confidence: conf, Words: words}, nil
}

func (m *MockEngine) Close() error {
	m.closed.Store(true)
	return nil
}
