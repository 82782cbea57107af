package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/scanline/internal/analytics"
	"github.com/jackzampolin/scanline/internal/enhance"
	"github.com/jackzampolin/scanline/internal/normalize"
	"github.com/jackzampolin/scanline/internal/ocr"
	"github.com/jackzampolin/scanline/internal/pipeline"
	"github.com/jackzampolin/scanline/internal/searchpdf"
	"github.com/jackzampolin/scanline/internal/store"
	"github.com/jackzampolin/scanline/internal/testutil"
	"github.com/jackzampolin/scanline/internal/workers"
)

type fixture struct {
	svc   *Service
	store *store.Store
	sink  *analytics.MemorySink
}

func newFixture(t *testing.T, engine func() *ocr.MockEngine) *fixture {
	t.Helper()
	sink := analytics.NewMemorySink(128)
	pool, err := workers.New(workers.Config{
		Workers: 1,
		Factory: func(int) (*pipeline.Pipeline, error) {
			return pipeline.New(pipeline.Config{Engine: engine(), Sink: sink})
		},
	})
	if err != nil {
		t.Fatalf("workers.New() error = %v", err)
	}
	pool.Start(context.Background())
	t.Cleanup(func() { pool.Close() })

	dir := t.TempDir()
	st, err := store.Open(store.Config{
		DatabasePath: filepath.Join(dir, "scanline.db"),
		PDFDir:       filepath.Join(dir, "documents"),
	})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc, err := NewService(Config{Runner: pool, Sink: st, Monitor: pipeline.FixedMonitor(5)})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return &fixture{svc: svc, store: st, sink: sink}
}

func jpegFile(t *testing.T, name string, lines ...string) File {
	t.Helper()
	return File{Name: name, Data: testutil.JPEG(t, testutil.TextPage(400, 300, lines...), 90), MIMEType: "image/jpeg"}
}

var immediate = pipeline.Priority{ImmediateRetry: true}

func TestSubmitPage(t *testing.T) {
	f := newFixture(t, ocr.NewMockEngine)
	page := jpegFile(t, "receipt.jpg", "RECEIPT", "Total 12.00")

	res, err := f.svc.SubmitPage(context.Background(), PageRequest{
		Page:       pipeline.PageBuffer{Data: page.Data, MIMEType: page.MIMEType},
		Priority:   immediate,
		DocumentID: "doc-page",
		UserID:     "user-7",
	})
	if err != nil {
		t.Fatalf("SubmitPage() error = %v", err)
	}
	if res.Document.ID != "doc-page" || res.Metadata.PageCount != 1 {
		t.Errorf("result = %+v", res.Document)
	}

	stored, err := f.store.Get(context.Background(), "doc-page")
	if err != nil {
		t.Fatalf("store.Get() error = %v", err)
	}
	if stored.UserID != "user-7" || stored.PageCount != 1 {
		t.Errorf("stored = %+v", stored)
	}
	pdf, err := f.store.PDF(context.Background(), "doc-page")
	if err != nil {
		t.Fatalf("store.PDF() error = %v", err)
	}
	ins, err := searchpdf.Inspect(pdf)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if ins.PageCount != 1 {
		t.Errorf("stored pdf pages = %d, want 1", ins.PageCount)
	}

	names := f.sink.Names()
	if len(names) != 1 || names[0] != analytics.EventSuccessOriginal {
		t.Errorf("events = %v, want one %s", names, analytics.EventSuccessOriginal)
	}
	for _, e := range f.sink.Recent(10) {
		if e.DocumentID != "doc-page" || e.UserID != "user-7" {
			t.Errorf("event correlation = %s/%s", e.DocumentID, e.UserID)
		}
	}
}

func TestSubmitDocumentImages(t *testing.T) {
	f := newFixture(t, ocr.NewMockEngine)
	res, err := f.svc.SubmitDocument(context.Background(), DocumentRequest{
		Files: []File{
			jpegFile(t, "statement-1.jpg", "page one"),
			jpegFile(t, "statement-2.jpg", "page two"),
			jpegFile(t, "statement-3.jpg", "page three"),
		},
		Priority: immediate,
	})
	if err != nil {
		t.Fatalf("SubmitDocument() error = %v", err)
	}
	if len(res.Pages) != 3 || res.Metadata.PageCount != 3 {
		t.Errorf("pages = %d, metadata pages = %d, want 3", len(res.Pages), res.Metadata.PageCount)
	}
	if res.Document.Title != "statement" {
		t.Errorf("title = %q, want derived %q", res.Document.Title, "statement")
	}
	if res.Document.ID == "" {
		t.Error("expected generated document id")
	}
	for i, p := range res.Pages {
		if p.CompressionLevel != nil {
			t.Errorf("page %d used compression level %v", i+1, p.CompressionLevel)
		}
	}
}

func TestSubmitDocumentNormalization(t *testing.T) {
	outline := &normalize.Quad{
		TopLeft:     normalize.Point{X: 20, Y: 15},
		TopRight:    normalize.Point{X: 380, Y: 20},
		BottomRight: normalize.Point{X: 375, Y: 285},
		BottomLeft:  normalize.Point{X: 25, Y: 280},
	}

	t.Run("per-page outlines and request color mode", func(t *testing.T) {
		f := newFixture(t, ocr.NewMockEngine)
		res, err := f.svc.SubmitDocument(context.Background(), DocumentRequest{
			Files: []File{
				jpegFile(t, "photo-1.jpg", "first"),
				jpegFile(t, "photo-2.jpg", "second"),
			},
			Priority:  immediate,
			ColorMode: normalize.ModeBW,
			Corners:   []*normalize.Quad{outline},
		})
		if err != nil {
			t.Fatalf("SubmitDocument() error = %v", err)
		}
		first := res.Pages[0].Enhancement.Normalization
		if len(first) != 3 || !strings.HasPrefix(first[0], "perspective") || !strings.HasPrefix(first[2], "binarize@") {
			t.Errorf("page 1 normalization = %v", first)
		}
		second := res.Pages[1].Enhancement.Normalization
		if len(second) != 2 || second[0] != "grayscale" {
			t.Errorf("page 2 normalization = %v, want bw without perspective", second)
		}
	})

	t.Run("more outlines than pages", func(t *testing.T) {
		f := newFixture(t, ocr.NewMockEngine)
		_, err := f.svc.SubmitDocument(context.Background(), DocumentRequest{
			Files:    []File{jpegFile(t, "photo.jpg", "only")},
			Priority: immediate,
			Corners:  []*normalize.Quad{outline, outline},
		})
		if !errors.Is(err, ErrCornerCount) {
			t.Errorf("error = %v, want ErrCornerCount", err)
		}
	})
}

func TestSubmitDocumentPDF(t *testing.T) {
	var pages []*pipeline.ProcessedPage
	for i := 0; i < 2; i++ {
		pages = append(pages, &pipeline.ProcessedPage{
			EnhancedImage: testutil.JPEG(t, testutil.TextPage(300, 200, "scanned"), 90),
			OCR:           &ocr.Result{Text: "scanned", Confidence: 90},
			Enhancement:   pipeline.EnhancementMetadata{ProcessedDims: enhance.Dims{Width: 300, Height: 200}},
		})
	}
	upload, err := searchpdf.Assemble(pages, searchpdf.Options{})
	if err != nil {
		t.Fatalf("assemble fixture: %v", err)
	}

	f := newFixture(t, ocr.NewMockEngine)
	res, err := f.svc.SubmitDocument(context.Background(), DocumentRequest{
		Files:    []File{{Name: "upload.pdf", Data: upload.PDF, MIMEType: DetectMIME("upload.pdf", upload.PDF)}},
		Priority: immediate,
	})
	if err != nil {
		t.Fatalf("SubmitDocument() error = %v", err)
	}
	if res.Metadata.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", res.Metadata.PageCount)
	}
}

func TestSubmitDocumentFailures(t *testing.T) {
	t.Run("unsupported type", func(t *testing.T) {
		f := newFixture(t, ocr.NewMockEngine)
		_, err := f.svc.SubmitDocument(context.Background(), DocumentRequest{
			Files: []File{{Name: "notes.txt", Data: []byte("hello"), MIMEType: "text/plain"}},
		})
		if !errors.Is(err, pipeline.ErrUnsupportedMIME) {
			t.Errorf("error = %v, want ErrUnsupportedMIME", err)
		}
	})

	t.Run("no files", func(t *testing.T) {
		f := newFixture(t, ocr.NewMockEngine)
		if _, err := f.svc.SubmitDocument(context.Background(), DocumentRequest{}); !errors.Is(err, ErrNoPages) {
			t.Errorf("error = %v, want ErrNoPages", err)
		}
	})

	t.Run("exhausted page fails the document", func(t *testing.T) {
		broken := func() *ocr.MockEngine {
			e := ocr.NewMockEngine()
			e.Failing = map[ocr.Strategy]bool{
				ocr.StrategyAuto:        true,
				ocr.StrategySingleBlock: true,
				ocr.StrategySingleLine:  true,
				ocr.StrategySparseText:  true,
			}
			return e
		}
		f := newFixture(t, broken)
		_, err := f.svc.SubmitDocument(context.Background(), DocumentRequest{
			Files:      []File{jpegFile(t, "a.jpg", "a")},
			Priority:   immediate,
			DocumentID: "doc-broken",
		})
		var pageErr *PageError
		if !errors.As(err, &pageErr) || pageErr.Page != 1 {
			t.Fatalf("error = %v, want PageError for page 1", err)
		}
		var ex *pipeline.ExhaustedError
		if !errors.As(err, &ex) {
			t.Fatalf("error = %v, want ExhaustedError in chain", err)
		}
		if _, err := f.store.Get(context.Background(), "doc-broken"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("failed document was stored: %v", err)
		}
		names := f.sink.Names()
		if names[len(names)-1] != analytics.EventFailureExhausted {
			t.Errorf("last event = %s, want %s", names[len(names)-1], analytics.EventFailureExhausted)
		}
	})
}

func TestPreflight(t *testing.T) {
	f := newFixture(t, ocr.NewMockEngine)

	t.Run("valid pages", func(t *testing.T) {
		res, err := f.svc.Preflight(context.Background(), []File{
			jpegFile(t, "a-1.jpg", "one"),
			jpegFile(t, "a-2.jpg", "two"),
		})
		if err != nil {
			t.Fatalf("Preflight() error = %v", err)
		}
		if !res.Valid || res.PageCount != 2 || len(res.Pages) != 2 {
			t.Errorf("result = %+v", res)
		}
		if res.Pages[0].Dims.Width != 400 || res.Pages[0].HeapUsagePercent != 5 {
			t.Errorf("page report = %+v", res.Pages[0])
		}
	})

	t.Run("unsupported type is advisory", func(t *testing.T) {
		res, err := f.svc.Preflight(context.Background(), []File{
			{Name: "notes.txt", Data: []byte("hello"), MIMEType: "text/plain"},
		})
		if err != nil {
			t.Fatalf("Preflight() error = %v", err)
		}
		if res.Valid || len(res.Pages) != 1 || len(res.Pages[0].Issues) == 0 {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("unreadable pdf", func(t *testing.T) {
		res, err := f.svc.Preflight(context.Background(), []File{
			{Name: "broken.pdf", Data: []byte("%PDF-1.4 truncated"), MIMEType: "application/pdf"},
		})
		if err != nil {
			t.Fatalf("Preflight() error = %v", err)
		}
		if res.Valid || len(res.Issues) != 1 || !strings.Contains(res.Issues[0], "broken.pdf") {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("no files", func(t *testing.T) {
		if _, err := f.svc.Preflight(context.Background(), nil); !errors.Is(err, ErrNoPages) {
			t.Errorf("error = %v, want ErrNoPages", err)
		}
	})
}

func TestSortByNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "already sorted",
			input:    []string{"scan-1.jpg", "scan-2.jpg", "scan-3.jpg"},
			expected: []string{"scan-1.jpg", "scan-2.jpg", "scan-3.jpg"},
		},
		{
			name:     "reverse order",
			input:    []string{"scan-3.png", "scan-2.png", "scan-1.png"},
			expected: []string{"scan-1.png", "scan-2.png", "scan-3.png"},
		},
		{
			name:     "mixed with double digits",
			input:    []string{"scan-10.jpg", "scan-2.jpg", "scan-1.jpg"},
			expected: []string{"scan-1.jpg", "scan-2.jpg", "scan-10.jpg"},
		},
		{
			name:     "numbered and unnumbered",
			input:    []string{"scan-2.pdf", "cover.pdf", "scan-1.pdf"},
			expected: []string{"cover.pdf", "scan-1.pdf", "scan-2.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sortByNumber(tt.input)
			if strings.Join(result, ",") != strings.Join(tt.expected, ",") {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/path/to/invoice-march.pdf", "invoice-march"},
		{"/path/to/receipt-1.jpg", "receipt"},
		{"/path/to/receipt-10.png", "receipt"},
		{"simple.tiff", "simple"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := deriveTitle(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDetectMIME(t *testing.T) {
	jpeg := testutil.JPEG(t, testutil.TextPage(20, 20), 80)
	png := testutil.PNG(t, testutil.TextPage(20, 20))
	tests := []struct {
		name string
		file string
		data []byte
		want string
	}{
		{"jpeg by content", "x.bin", jpeg, "image/jpeg"},
		{"png despite extension", "x.jpg", png, "image/png"},
		{"pdf", "doc", []byte("%PDF-1.4\n..."), "application/pdf"},
		{"tiff by extension", "scan.TIF", []byte{0x49, 0x49, 0x2A, 0x00, 0x08}, "image/tiff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMIME(tt.file, tt.data); got != tt.want {
				t.Errorf("DetectMIME() = %s, want %s", got, tt.want)
			}
		})
	}
}
