package normalize

import (
	"bytes"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/jackzampolin/scanline/internal/testutil"
)

func TestAdaptiveThreshold(t *testing.T) {
	tests := []struct {
		mean float64
		want uint8
	}{
		{40, 101},
		{128, 128},
		{0, 89},
		{255, 166},
		{200, 149},
		{-500, 80},
		{1000, 176},
	}
	for _, tt := range tests {
		if got := AdaptiveThreshold(tt.mean); got != tt.want {
			t.Errorf("AdaptiveThreshold(%v) = %d, want %d", tt.mean, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"", "auto", "color", "grayscale", "bw"} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q) error = %v", s, err)
		}
	}
	if _, err := ParseMode("sepia"); err == nil {
		t.Error("ParseMode(sepia) should fail")
	}
}

func TestApplyColorMode(t *testing.T) {
	textPage := testutil.JPEG(t, testutil.TextPage(200, 100, "INVOICE 42"), 95)

	t.Run("grayscale yields a single channel image", func(t *testing.T) {
		out := ApplyColorMode(textPage, ModeGrayscale)
		if !out.Applied() {
			t.Fatalf("not applied: %s", out.Reason)
		}
		img := testutil.Decode(t, out.Buffer)
		if _, ok := img.(*image.Gray); !ok {
			t.Errorf("decoded %T, want *image.Gray", img)
		}
	})

	t.Run("bw yields only black and white", func(t *testing.T) {
		out := ApplyColorMode(textPage, ModeBW)
		if !out.Applied() {
			t.Fatalf("not applied: %s", out.Reason)
		}
		img := testutil.Decode(t, out.Buffer)
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				v := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
				if v != 0 && v != 255 {
					t.Fatalf("pixel (%d,%d) = %d, want 0 or 255", x, y, v)
				}
			}
		}
	})

	t.Run("auto binarizes flat gray pages", func(t *testing.T) {
		flat := testutil.PNG(t, testutil.Solid(64, 64, color.RGBA{120, 121, 119, 255}))
		out := ApplyColorMode(flat, ModeAuto)
		if !out.Applied() {
			t.Fatalf("not applied: %s", out.Reason)
		}
		if len(out.Steps) != 2 || !strings.HasPrefix(out.Steps[1], "binarize@") {
			t.Errorf("steps = %v, want grayscale then binarize", out.Steps)
		}
	})

	t.Run("auto keeps color pages colored", func(t *testing.T) {
		red := testutil.PNG(t, testutil.Solid(64, 64, color.RGBA{200, 40, 40, 255}))
		out := ApplyColorMode(red, ModeAuto)
		if !out.Applied() {
			t.Fatalf("not applied: %s", out.Reason)
		}
		if len(out.Steps) != 1 || out.Steps[0] != "desaturate" {
			t.Errorf("steps = %v, want [desaturate]", out.Steps)
		}
		st := ComputeStats(testutil.Decode(t, out.Buffer))
		if st.ChannelSpread() <= grayTolerance {
			t.Errorf("color page collapsed to gray (spread %.1f)", st.ChannelSpread())
		}
	})

	t.Run("color brightens", func(t *testing.T) {
		gray := testutil.PNG(t, testutil.Solid(32, 32, color.RGBA{100, 100, 100, 255}))
		out := ApplyColorMode(gray, ModeColor)
		if !out.Applied() {
			t.Fatalf("not applied: %s", out.Reason)
		}
		if st := ComputeStats(testutil.Decode(t, out.Buffer)); st.Luma <= 100 {
			t.Errorf("luma = %.1f, want > 100", st.Luma)
		}
	})

	t.Run("undecodable input passes through", func(t *testing.T) {
		junk := []byte("not an image")
		out := ApplyColorMode(junk, ModeBW)
		if out.Applied() {
			t.Fatal("expected skip")
		}
		if !bytes.Equal(out.Buffer, junk) {
			t.Error("input not returned unchanged")
		}
	})
}

func TestCorrectPerspective(t *testing.T) {
	src := testutil.JPEG(t, testutil.TextPage(300, 200, "RECEIPT"), 95)

	t.Run("nil corners skip", func(t *testing.T) {
		out := CorrectPerspective(src, nil)
		if out.Applied() || !bytes.Equal(out.Buffer, src) {
			t.Error("nil corners must return input unchanged")
		}
	})

	t.Run("skewed quad warps to upright rectangle", func(t *testing.T) {
		q := &Quad{
			TopLeft:     Point{20, 10},
			TopRight:    Point{280, 30},
			BottomRight: Point{270, 190},
			BottomLeft:  Point{30, 170},
		}
		out := CorrectPerspective(src, q)
		if !out.Applied() {
			t.Fatalf("not applied: %s", out.Reason)
		}
		w, h := q.OutputSize()
		b := testutil.Decode(t, out.Buffer).Bounds()
		if b.Dx() != w || b.Dy() != h {
			t.Errorf("output %dx%d, want %dx%d", b.Dx(), b.Dy(), w, h)
		}
	})

	t.Run("counter-clockwise quad rejected", func(t *testing.T) {
		q := &Quad{
			TopLeft:     Point{20, 10},
			TopRight:    Point{30, 170},
			BottomRight: Point{270, 190},
			BottomLeft:  Point{280, 30},
		}
		out := CorrectPerspective(src, q)
		if out.Applied() || !strings.Contains(out.Reason, "invalid corners") {
			t.Errorf("reason = %q, want invalid corners", out.Reason)
		}
	})

	t.Run("corner outside image rejected", func(t *testing.T) {
		q := &Quad{
			TopLeft:     Point{0, 0},
			TopRight:    Point{900, 0},
			BottomRight: Point{300, 200},
			BottomLeft:  Point{0, 200},
		}
		if out := CorrectPerspective(src, q); out.Applied() {
			t.Error("expected skip for out-of-bounds corner")
		}
	})
}

func TestSolveHomographyIdentity(t *testing.T) {
	pts := [4]Point{{0, 0}, {99, 0}, {99, 49}, {0, 49}}
	h, err := solveHomography(pts, pts)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []Point{{10, 10}, {50, 25}, {99, 49}} {
		x, y := h.apply(p.X, p.Y)
		if abs(x-p.X) > 1e-6 || abs(y-p.Y) > 1e-6 {
			t.Errorf("apply(%v) = (%v,%v), want identity", p, x, y)
		}
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
