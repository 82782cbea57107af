package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanline/internal/analytics"
	"github.com/jackzampolin/scanline/internal/ingest"
	"github.com/jackzampolin/scanline/internal/jobcfg"
	"github.com/jackzampolin/scanline/internal/normalize"
	"github.com/jackzampolin/scanline/internal/pipeline"
	"github.com/jackzampolin/scanline/internal/rasterize"
	"github.com/jackzampolin/scanline/internal/resources"
	"github.com/jackzampolin/scanline/internal/store"
	"github.com/jackzampolin/scanline/internal/workers"
)

var (
	scanOut       string
	scanTitle     string
	scanEngine    string
	scanColorMode string
	scanCorners   string
	scanImmediate bool
	scanSave      bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <files...>",
	Short: "OCR images or PDFs into a searchable PDF locally",
	Long: `Run the adaptive OCR pipeline on local files without a server.

Images become one page each, in numeric suffix order (scan-2.jpg before
scan-10.jpg). PDFs are rendered page by page. All pages are combined into a
single searchable PDF.

Examples:
  scanline scan receipt.jpg                      # writes receipt.pdf
  scanline scan page-*.png --out book.pdf        # multi-page document
  scanline scan scanned.pdf --color-mode bw      # force black & white
  scanline scan photo.jpg --corners '[{"top_left":{"x":40,"y":30},...}]'
  scanline scan letter.jpg --save                # also store in ~/.scanline`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		h, err := getHome()
		if err != nil {
			return err
		}
		cm, err := loadConfig(h)
		if err != nil {
			return err
		}

		cfg := *cm.Get()
		if scanEngine != "" {
			cfg.Pipeline.Engine = scanEngine
		}
		if scanColorMode != "" {
			cfg.Pipeline.ColorMode = scanColorMode
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		builder := jobcfg.FromConfig(&cfg)
		corners, err := parseCorners(scanCorners)
		if err != nil {
			return err
		}

		files, err := ingest.LoadFiles(args)
		if err != nil {
			return err
		}
		total, err := countPages(files)
		if err != nil {
			return err
		}

		title := scanTitle
		if title == "" {
			title = strings.TrimSuffix(files[0].Name, filepath.Ext(files[0].Name))
		}
		out := scanOut
		if out == "" {
			out = title + ".pdf"
		}

		tracker := resources.NewTracker(resources.WithLogger(logger))
		defer tracker.Shutdown(context.Background())

		bar := newPageBar(total, "ocr")
		events := analytics.NewMemorySink(256)
		sink := analytics.Multi{events, progressSink{bar: bar}}

		poolCfg := builder.PoolConfig(jobcfg.Deps{Tracker: tracker, Sink: sink, Logger: logger})
		poolCfg.Workers = 1
		pool, err := workers.New(poolCfg)
		if err != nil {
			return err
		}
		pool.Start(ctx)
		defer pool.Close()

		var docSink store.Sink = &fileSink{path: out}
		if scanSave {
			st, err := store.Open(builder.StoreConfig(h, logger))
			if err != nil {
				return err
			}
			defer st.Close()
			docSink = &fileSink{path: out, next: st}
		}

		svc, err := ingest.NewService(builder.IngestConfig(pool, docSink, logger))
		if err != nil {
			return err
		}

		res, err := svc.SubmitDocument(ctx, ingest.DocumentRequest{
			Files:    files,
			Priority: pipeline.Priority{ImmediateRetry: scanImmediate},
			Title:    title,
			Corners:  corners,
		})
		if err != nil {
			_ = bar.Clear()
			fmt.Fprintln(os.Stderr)
			reportFailure(err)
			return err
		}
		_ = bar.Finish()

		printOK("wrote %s", out)
		printField("pages", res.Metadata.PageCount)
		printField("average confidence", fmt.Sprintf("%.1f", res.Metadata.AverageConfidence))
		printField("text length", res.Metadata.TotalTextLength)
		printField("compression ratio", fmt.Sprintf("%.2f", res.Metadata.CompressionRatio))
		printField("duration", res.Duration.Round(time.Millisecond))
		if scanSave {
			printField("document id", res.Document.ID)
		}
		for i, p := range res.Pages {
			if len(p.Attempts) > 1 {
				printWarn("page %d needed %d attempts", i+1, len(p.Attempts))
			}
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanOut, "out", "", "Output PDF path (default <title>.pdf)")
	scanCmd.Flags().StringVar(&scanTitle, "title", "", "Document title (default: first file name)")
	scanCmd.Flags().StringVar(&scanEngine, "engine", "", "OCR engine: tesseract or mock (default from config)")
	scanCmd.Flags().StringVar(&scanColorMode, "color-mode", "", "auto, color, grayscale or bw (default from config)")
	scanCmd.Flags().StringVar(&scanCorners, "corners", "", "JSON array of page outlines in page order; null skips a page")
	scanCmd.Flags().BoolVar(&scanImmediate, "immediate", true, "Retry without waiting between attempts")
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "Also store the document in the home directory")

	rootCmd.AddCommand(scanCmd)
}

// countPages totals image files plus the pages of every PDF.
func countPages(files []ingest.File) (int, error) {
	total := 0
	for _, f := range files {
		if !f.IsPDF() {
			total++
			continue
		}
		n, err := rasterize.PageCount(f.Data)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", f.Name, err)
		}
		total += n
	}
	return total, nil
}

func reportFailure(err error) {
	var pageErr *ingest.PageError
	var ex *pipeline.ExhaustedError
	switch {
	case errors.As(err, &ex):
		page := 0
		if errors.As(err, &pageErr) {
			page = pageErr.Page
		}
		printFail("page %d failed after %d attempts", page, ex.Attempts)
		for _, a := range ex.Log {
			level := "original"
			if a.CompressionLevel != nil {
				level = fmt.Sprintf("level %d", *a.CompressionLevel)
			}
			printField(fmt.Sprintf("attempt %d", a.AttemptNumber), fmt.Sprintf("%s: %s", level, a.ErrorMessage))
		}
	default:
		printFail("%v", err)
	}
}

// fileSink writes the assembled PDF to a path and optionally forwards the
// record to another sink.
type fileSink struct {
	path string
	next store.Sink
}

func (s *fileSink) Save(ctx context.Context, rec store.Record) (*store.Document, error) {
	if err := os.WriteFile(s.path, rec.PDF, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", s.path, err)
	}
	if s.next != nil {
		return s.next.Save(ctx, rec)
	}
	id := rec.DocumentID
	if id == "" {
		id = uuid.New().String()
	}
	return &store.Document{
		ID:                id,
		Title:             rec.Title,
		PageCount:         rec.Metadata.PageCount,
		TotalTextLength:   rec.Metadata.TotalTextLength,
		AverageConfidence: rec.Metadata.AverageConfidence,
		CompressionRatio:  rec.Metadata.CompressionRatio,
		PDFPath:           s.path,
		PDFSizeBytes:      int64(len(rec.PDF)),
		PageTexts:         rec.Metadata.PageTexts,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

// parseCorners decodes --corners, the same outline list /api/documents takes.
func parseCorners(raw string) ([]*normalize.Quad, error) {
	if raw == "" {
		return nil, nil
	}
	var corners []*normalize.Quad
	if err := json.Unmarshal([]byte(raw), &corners); err != nil {
		return nil, fmt.Errorf("invalid --corners: %w", err)
	}
	return corners, nil
}
