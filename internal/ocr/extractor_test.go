package ocr

import (
	"context"
	"errors"
	"testing"
)

func TestExtract(t *testing.T) {
	img := []byte("fake-jpeg")

	tests := []struct {
		name         string
		engine       *MockEngine
		wantStrategy Strategy
		wantConf     float64
		wantCalls    int
		wantErr      bool
	}{
		{
			name:         "confident auto pass skips fallbacks",
			engine:       &MockEngine{Text: "hello world", DefaultConfidence: 85},
			wantStrategy: StrategyAuto,
			wantConf:     85,
			wantCalls:    1,
		},
		{
			name:         "auto exactly at threshold skips fallbacks",
			engine:       &MockEngine{Text: "hello", DefaultConfidence: 60},
			wantStrategy: StrategyAuto,
			wantConf:     60,
			wantCalls:    1,
		},
		{
			name: "weak auto picks best fallback",
			engine: &MockEngine{Text: "receipt total", Confidence: map[Strategy]float64{
				StrategyAuto:        40,
				StrategySingleBlock: 55,
				StrategySingleLine:  30,
				StrategySparseText:  71,
			}},
			wantStrategy: StrategySparseText,
			wantConf:     71,
			wantCalls:    4,
		},
		{
			name: "weak auto still wins when fallbacks are worse",
			engine: &MockEngine{Text: "faded", Confidence: map[Strategy]float64{
				StrategyAuto:        50,
				StrategySingleBlock: 20,
				StrategySingleLine:  10,
				StrategySparseText:  45,
			}},
			wantStrategy: StrategyAuto,
			wantConf:     50,
			wantCalls:    4,
		},
		{
			name: "auto error falls through to fallbacks",
			engine: &MockEngine{
				Text:              "line",
				DefaultConfidence: 66,
				Failing:           map[Strategy]bool{StrategyAuto: true},
			},
			wantStrategy: StrategySingleBlock,
			wantConf:     66,
			wantCalls:    4,
		},
		{
			name: "every strategy failing is an engine error",
			engine: &MockEngine{Text: "x", Failing: map[Strategy]bool{
				StrategyAuto:        true,
				StrategySingleBlock: true,
				StrategySingleLine:  true,
				StrategySparseText:  true,
			}},
			wantCalls: 4,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := NewExtractor(ExtractorConfig{Engine: tt.engine})
			res, err := x.Extract(context.Background(), img)

			if tt.engine.Calls() != tt.wantCalls {
				t.Errorf("engine calls = %d, want %d", tt.engine.Calls(), tt.wantCalls)
			}
			if tt.wantErr {
				var ee *EngineError
				if !errors.As(err, &ee) {
					t.Fatalf("expected *EngineError, got %v", err)
				}
				if len(ee.Failures) != 4 {
					t.Errorf("failures = %d, want 4", len(ee.Failures))
				}
				if res != nil {
					t.Error("result must be nil on engine error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if res.Strategy != tt.wantStrategy {
				t.Errorf("strategy = %s, want %s", res.Strategy, tt.wantStrategy)
			}
			if res.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", res.Confidence, tt.wantConf)
			}
		})
	}
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	x := NewExtractor(ExtractorConfig{Engine: NewMockEngine()})
	if _, err := x.Extract(ctx, []byte("img")); !errors.Is(err, context.Canceled) {
		t.Errorf("Extract() error = %v, want context.Canceled", err)
	}
}

func TestOverlayWords(t *testing.T) {
	res := &Result{Words: []Word{
		{Text: "keep", Confidence: 31},
		{Text: "edge", Confidence: 30},
		{Text: "drop", Confidence: 5},
		{Text: "  ", Confidence: 99},
	}}
	got := res.OverlayWords(DefaultOverlayConfidence)
	if len(got) != 1 || got[0].Text != "keep" {
		t.Errorf("OverlayWords() = %+v, want only 'keep'", got)
	}

	var nilResult *Result
	if nilResult.OverlayWords(0) != nil {
		t.Error("nil result should yield nil words")
	}
}
