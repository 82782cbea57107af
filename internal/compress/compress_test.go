package compress

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"github.com/jackzampolin/scanline/internal/testutil"
)

func TestValidateLevels(t *testing.T) {
	tests := []struct {
		name    string
		levels  []Level
		wantErr bool
	}{
		{"defaults", DefaultLevels(), false},
		{"empty table", nil, false},
		{"equal quality allowed", []Level{
			{Level: 1, JPEGQuality: 70, MaxWidth: 2000},
			{Level: 2, JPEGQuality: 70, MaxWidth: 1500},
		}, false},
		{"level zero", []Level{{Level: 0, JPEGQuality: 80, MaxWidth: 2000}}, true},
		{"duplicate level", []Level{
			{Level: 1, JPEGQuality: 80, MaxWidth: 2000},
			{Level: 1, JPEGQuality: 70, MaxWidth: 1500},
		}, true},
		{"quality increases", []Level{
			{Level: 1, JPEGQuality: 60, MaxWidth: 2000},
			{Level: 2, JPEGQuality: 70, MaxWidth: 1500},
		}, true},
		{"width increases", []Level{
			{Level: 1, JPEGQuality: 80, MaxWidth: 1500},
			{Level: 2, JPEGQuality: 70, MaxWidth: 2000},
		}, true},
		{"quality out of range", []Level{{Level: 1, JPEGQuality: 101, MaxWidth: 2000}}, true},
		{"grayscale turned back off", []Level{
			{Level: 1, JPEGQuality: 70, MaxWidth: 800, ForceGrayscale: true},
			{Level: 2, JPEGQuality: 70, MaxWidth: 800},
		}, true},
		{"metadata kept after strip", []Level{
			{Level: 1, JPEGQuality: 70, MaxWidth: 800, StripMetadata: true},
			{Level: 2, JPEGQuality: 60, MaxWidth: 600},
		}, true},
		{"grayscale introduced later", []Level{
			{Level: 1, JPEGQuality: 70, MaxWidth: 800, StripMetadata: true},
			{Level: 2, JPEGQuality: 70, MaxWidth: 800, StripMetadata: true, ForceGrayscale: true},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLevels(tt.levels)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateLevels() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidLevels) {
				t.Errorf("error %v does not wrap ErrInvalidLevels", err)
			}
		})
	}
}

func TestApplyLevels(t *testing.T) {
	src := testutil.JPEG(t, testutil.Noise(1000, 600, 1), 95)

	t.Run("monotonic shrinkage across default levels", func(t *testing.T) {
		prev := len(src)
		for _, lvl := range DefaultLevels() {
			lvl.MaxWidth = lvl.MaxWidth / 3 // scale table to the fixture
			out, err := Apply(src, lvl, 0)
			if err != nil {
				t.Fatalf("%s: %v", lvl, err)
			}
			if len(out.Data) > prev {
				t.Errorf("%s grew output: %d > %d", lvl, len(out.Data), prev)
			}
			if out.Width > lvl.MaxWidth {
				t.Errorf("%s width %d exceeds %d", lvl, out.Width, lvl.MaxWidth)
			}
			prev = len(out.Data)
		}
	})

	t.Run("force grayscale", func(t *testing.T) {
		out, err := Apply(src, Level{Level: 2, JPEGQuality: 60, MaxWidth: 500, ForceGrayscale: true}, 0)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := testutil.Decode(t, out.Data).(*image.Gray); !ok {
			t.Error("output is not grayscale")
		}
		if out.Width != 500 || out.Height != 300 {
			t.Errorf("size %dx%d, want 500x300", out.Width, out.Height)
		}
	})

	t.Run("ceiling enforced", func(t *testing.T) {
		const ceiling = 60_000
		out, err := Apply(src, Level{Level: 1, JPEGQuality: 90, MaxWidth: 1000}, ceiling)
		if err != nil {
			t.Fatal(err)
		}
		if len(out.Data) > ceiling {
			t.Errorf("output %d bytes exceeds ceiling %d", len(out.Data), ceiling)
		}
		if out.Quality >= 90 && out.Width == 1000 {
			t.Error("expected quality or size reduction to meet the ceiling")
		}
	})

	t.Run("impossible ceiling", func(t *testing.T) {
		_, err := Apply(src, Level{Level: 1, JPEGQuality: 80, MaxWidth: 1000}, 10)
		if !errors.Is(err, ErrOverCeiling) {
			t.Errorf("Apply() error = %v, want ErrOverCeiling", err)
		}
	})

	t.Run("undecodable", func(t *testing.T) {
		if _, err := Apply([]byte("nope"), DefaultLevels()[0], 0); err == nil {
			t.Error("expected decode error")
		}
	})
}

func TestExifPassthrough(t *testing.T) {
	base := testutil.JPEG(t, testutil.Noise(64, 64, 2), 90)
	payload := append([]byte("Exif\x00\x00"), []byte("MM\x00\x2a fake tiff")...)
	size := len(payload) + 2
	seg := append([]byte{0xFF, markerAPP1, byte(size >> 8), byte(size)}, payload...)
	withExif := insertSegment(base, seg)

	if got := exifSegment(withExif); !bytes.Equal(got, seg) {
		t.Fatalf("exifSegment() = %q, want %q", got, seg)
	}

	kept, err := Apply(withExif, Level{Level: 1, JPEGQuality: 80, MaxWidth: 64}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if exifSegment(kept.Data) == nil {
		t.Error("metadata dropped without StripMetadata")
	}

	stripped, err := Apply(withExif, Level{Level: 1, JPEGQuality: 80, MaxWidth: 64, StripMetadata: true}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if exifSegment(stripped.Data) != nil {
		t.Error("metadata kept with StripMetadata")
	}
}
