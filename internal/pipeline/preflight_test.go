package pipeline

import (
	"strings"
	"testing"

	"github.com/jackzampolin/scanline/internal/testutil"
)

func TestPreflight(t *testing.T) {
	small := testutil.JPEG(t, testutil.TextPage(300, 200, "receipt"), 90)
	limits := DefaultThresholds()

	t.Run("within every limit is valid", func(t *testing.T) {
		r := Preflight(PageBuffer{Data: small, MIMEType: "image/jpeg"}, 1, limits, FixedMonitor(20))
		if !r.Valid || len(r.Issues) != 0 {
			t.Errorf("report = %+v, want valid with no issues", r)
		}
		if r.Dims.Width != 300 || r.Dims.Height != 200 {
			t.Errorf("dims = %+v, want 300x200", r.Dims)
		}
	})

	tests := []struct {
		name      string
		page      PageBuffer
		pageCount int
		mutate    func(*Thresholds)
		heap      float64
		wantIssue string
	}{
		{"oversized bytes", PageBuffer{Data: small, MIMEType: "image/jpeg"}, 1,
			func(th *Thresholds) { th.MaxFileSizeBytes = 100 }, 0, "size"},
		{"resolution", PageBuffer{Data: small, MIMEType: "image/jpeg"}, 1,
			func(th *Thresholds) { th.MaxResolutionPx = 250 }, 0, "resolution"},
		{"pixel area", PageBuffer{Data: small, MIMEType: "image/jpeg"}, 1,
			func(th *Thresholds) { th.MaxPixelArea = 1000 }, 0, "pixel area"},
		{"page count", PageBuffer{Data: small, MIMEType: "image/jpeg"}, 51,
			nil, 0, "page count"},
		{"heap pressure", PageBuffer{Data: small, MIMEType: "image/jpeg"}, 1,
			nil, 91, "heap usage"},
		{"mime", PageBuffer{Data: small, MIMEType: "application/msword"}, 1,
			nil, 0, "unsupported MIME"},
		{"unreadable", PageBuffer{Data: []byte("%PDF-1.4"), MIMEType: "image/png"}, 1,
			nil, 0, "image header"},
		{"empty", PageBuffer{MIMEType: "image/png"}, 1,
			nil, 0, "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := limits
			if tt.mutate != nil {
				tt.mutate(&th)
			}
			r := Preflight(tt.page, tt.pageCount, th, FixedMonitor(tt.heap))
			if r.Valid {
				t.Fatal("expected invalid report")
			}
			found := false
			for _, issue := range r.Issues {
				if strings.Contains(issue, tt.wantIssue) {
					found = true
				}
			}
			if !found {
				t.Errorf("issues %v missing %q", r.Issues, tt.wantIssue)
			}
			if len(r.Recommendations) == 0 {
				t.Error("expected at least one recommendation")
			}
		})
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
	bad := DefaultThresholds()
	bad.MaxHeapUsagePercent = 150
	bad.MaxPageCount = 0
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"max_heap_usage_percent", "max_page_count"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %s", err, want)
		}
	}
}
