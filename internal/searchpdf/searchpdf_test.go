package searchpdf

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/scanline/internal/enhance"
	"github.com/jackzampolin/scanline/internal/ocr"
	"github.com/jackzampolin/scanline/internal/pipeline"
	"github.com/jackzampolin/scanline/internal/testutil"
)

func grayPage(t *testing.T, w, h int, lines ...string) []byte {
	t.Helper()
	src := testutil.TextPage(w, h, lines...)
	g := image.NewGray(src.Bounds())
	draw.Draw(g, g.Bounds(), src, image.Point{}, draw.Src)
	return testutil.JPEG(t, g, 90)
}

func processed(t *testing.T, w, h int, words ...ocr.Word) *pipeline.ProcessedPage {
	t.Helper()
	texts := make([]string, len(words))
	for i, word := range words {
		texts[i] = word.Text
	}
	return &pipeline.ProcessedPage{
		EnhancedImage: grayPage(t, w, h, strings.Join(texts, " ")),
		OCR: &ocr.Result{
			Text:       strings.Join(texts, " "),
			Confidence: 88,
			Words:      words,
			Strategy:   ocr.StrategyAuto,
		},
		Enhancement: pipeline.EnhancementMetadata{
			ProcessedDims:    enhance.Dims{Width: w, Height: h},
			CompressionRatio: 0.5,
		},
	}
}

func word(text string, conf float64, x0, y0, x1, y1 int) ocr.Word {
	return ocr.Word{Text: text, Confidence: conf, BBox: ocr.BBox{X0: x0, Y0: y0, X1: x1, Y1: y1}}
}

func fixedNow() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

func TestPlaceWord(t *testing.T) {
	tests := []struct {
		name   string
		word   ocr.Word
		height float64
		want   Placement
	}{
		{"bottom edge maps to zero", word("a", 90, 10, 380, 40, 400), 400, Placement{X: 10, Y: 0, FontSize: 20}},
		{"top of page", word("b", 90, 0, 0, 30, 12), 400, Placement{X: 0, Y: 388, FontSize: 12}},
		{"degenerate height floors font size", word("c", 90, 5, 50, 9, 50), 100, Placement{X: 5, Y: 50, FontSize: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlaceWord(tt.word, tt.height); got != tt.want {
				t.Errorf("PlaceWord() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAssemble(t *testing.T) {
	pages := []*pipeline.ProcessedPage{
		processed(t, 320, 240, word("Invoice", 91, 20, 18, 69, 32), word("Total", 85, 80, 18, 115, 32)),
		processed(t, 200, 300, word("Receipt", 77, 20, 18, 69, 32), word("noise", 12, 100, 100, 140, 120)),
	}

	out, err := Assemble(pages, Options{Title: "Scan", Now: fixedNow})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	t.Run("header and trailer", func(t *testing.T) {
		if !bytes.HasPrefix(out.PDF, []byte("%PDF-1.4\n")) {
			t.Error("missing PDF header")
		}
		if !bytes.HasSuffix(out.PDF, []byte("%%EOF\n")) {
			t.Error("missing EOF marker")
		}
		if !bytes.Contains(out.PDF, []byte("/CreationDate (D:20260304050607Z)")) {
			t.Error("creation date not stamped from clock")
		}
		if !bytes.Contains(out.PDF, []byte("/ca 0.01 /CA 0.01")) {
			t.Error("text layer opacity missing")
		}
	})

	t.Run("metadata", func(t *testing.T) {
		m := out.Metadata
		if m.PageCount != 2 {
			t.Errorf("PageCount = %d, want 2", m.PageCount)
		}
		if m.OverlayWords != 3 {
			t.Errorf("OverlayWords = %d, want 3 (low-confidence word excluded)", m.OverlayWords)
		}
		if m.AverageConfidence != 88 {
			t.Errorf("AverageConfidence = %v, want 88", m.AverageConfidence)
		}
		if m.CompressionRatio != 0.5 {
			t.Errorf("CompressionRatio = %v, want 0.5", m.CompressionRatio)
		}
		if m.PageTexts[0] != "Invoice Total" {
			t.Errorf("PageTexts[0] = %q", m.PageTexts[0])
		}
		if m.TotalTextLength != len("Invoice Total")+len("Receipt noise") {
			t.Errorf("TotalTextLength = %d", m.TotalTextLength)
		}
	})

	t.Run("page dimensions round trip", func(t *testing.T) {
		ins, err := Inspect(out.PDF)
		if err != nil {
			t.Fatalf("Inspect() error = %v", err)
		}
		if ins.PageCount != 2 {
			t.Fatalf("PageCount = %d, want 2", ins.PageCount)
		}
		for i, p := range pages {
			want := p.Enhancement.ProcessedDims
			got := ins.Pages[i]
			if got.ImageWidth != want.Width || got.ImageHeight != want.Height {
				t.Errorf("page %d image = %dx%d, want %dx%d", i+1, got.ImageWidth, got.ImageHeight, want.Width, want.Height)
			}
		}
	})

	t.Run("text layer is extractable", func(t *testing.T) {
		texts, err := ReadText(out.PDF)
		if err != nil {
			t.Fatalf("ReadText() error = %v", err)
		}
		if len(texts) != 2 {
			t.Fatalf("got %d pages of text, want 2", len(texts))
		}
		for _, want := range []string{"Invoice", "Total"} {
			if !strings.Contains(texts[0], want) {
				t.Errorf("page 1 text %q missing %q", texts[0], want)
			}
		}
		if !strings.Contains(texts[1], "Receipt") {
			t.Errorf("page 2 text %q missing Receipt", texts[1])
		}
		if strings.Contains(texts[1], "noise") {
			t.Errorf("page 2 text %q includes a word below the confidence floor", texts[1])
		}
	})
}

func TestAssembleFailures(t *testing.T) {
	t.Run("no pages", func(t *testing.T) {
		if _, err := Assemble(nil, Options{}); !errors.Is(err, ErrNoPages) {
			t.Errorf("error = %v, want ErrNoPages", err)
		}
	})

	t.Run("corrupt image aborts the document", func(t *testing.T) {
		good := processed(t, 100, 100, word("ok", 90, 1, 1, 20, 12))
		bad := processed(t, 100, 100, word("bad", 90, 1, 1, 20, 12))
		bad.EnhancedImage = []byte("not an image")
		out, err := Assemble([]*pipeline.ProcessedPage{good, bad}, Options{})
		if err == nil {
			t.Fatal("expected error")
		}
		if out != nil {
			t.Error("expected no output on failure")
		}
		if !strings.Contains(err.Error(), "page 2") {
			t.Errorf("error %q does not name the failing page", err)
		}
	})

	t.Run("missing OCR result", func(t *testing.T) {
		p := processed(t, 100, 100)
		p.OCR = nil
		if _, err := Assemble([]*pipeline.ProcessedPage{p}, Options{}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestPrepareImageReencodesPNG(t *testing.T) {
	img, err := prepareImage(testutil.PNG(t, testutil.TextPage(64, 48, "png")))
	if err != nil {
		t.Fatalf("prepareImage() error = %v", err)
	}
	if img.width != 64 || img.height != 48 {
		t.Errorf("dims = %dx%d, want 64x48", img.width, img.height)
	}
	if !bytes.HasPrefix(img.jpeg, []byte{0xFF, 0xD8}) {
		t.Error("output is not a JPEG")
	}
	if img.colorSpace != "DeviceRGB" {
		t.Errorf("colorSpace = %s, want DeviceRGB", img.colorSpace)
	}
}

func TestTextHelpers(t *testing.T) {
	t.Run("literal escapes", func(t *testing.T) {
		if got := literal([]byte(`a(b)\c`)); got != `(a\(b\)\\c)` {
			t.Errorf("literal = %s", got)
		}
		if got := literal([]byte{0xE9}); got != `(\351)` {
			t.Errorf("literal = %s", got)
		}
	})
	t.Run("winansi", func(t *testing.T) {
		if got := encodeWinAnsi("café"); !bytes.Equal(got, []byte{'c', 'a', 'f', 0xE9}) {
			t.Errorf("encodeWinAnsi = %v", got)
		}
	})
	t.Run("unicode info strings", func(t *testing.T) {
		if got := textString("plain"); got != "(plain)" {
			t.Errorf("textString = %s", got)
		}
		if got := textString("é"); got != "<FEFF00E9>" {
			t.Errorf("textString = %s", got)
		}
	})
	t.Run("num", func(t *testing.T) {
		for in, want := range map[float64]string{0: "0", 12.5: "12.5", 100: "100", -0.001: "0", 3.14159: "3.14"} {
			if got := num(in); got != want {
				t.Errorf("num(%v) = %s, want %s", in, got, want)
			}
		}
	})
	t.Run("width", func(t *testing.T) {
		if got := textWidth([]byte("AA")); got != 1.334 {
			t.Errorf("textWidth = %v, want 1.334", got)
		}
	})
}
