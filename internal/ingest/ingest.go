// Package ingest is the document ingress: it turns uploaded images or PDFs
// into page buffers, runs them through a pipeline worker, assembles the
// searchable PDF and hands it to the persistence sink.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/scanline/internal/normalize"
	"github.com/jackzampolin/scanline/internal/pipeline"
	"github.com/jackzampolin/scanline/internal/rasterize"
	"github.com/jackzampolin/scanline/internal/searchpdf"
	"github.com/jackzampolin/scanline/internal/store"
	"github.com/jackzampolin/scanline/internal/workers"
)

var (
	// ErrNoPages is returned when a request contains nothing to process.
	ErrNoPages = errors.New("no pages in request")

	// ErrCornerCount is returned when a request carries more page outlines
	// than it has pages.
	ErrCornerCount = errors.New("more page outlines than pages")
)

// Runner executes a task on a pipeline. *workers.Pool implements it.
type Runner interface {
	Do(ctx context.Context, task workers.Task) error
}

// Config configures a Service.
type Config struct {
	Runner     Runner
	Sink       store.Sink
	Logger     *slog.Logger
	Thresholds pipeline.Thresholds
	Rasterize  rasterize.Options
	PDF        searchpdf.Options
	// Monitor reports heap usage for Preflight. Defaults to the runtime.
	Monitor pipeline.MemoryMonitor
}

// Service is the ingress for pages and documents.
type Service struct {
	runner     Runner
	sink       store.Sink
	logger     *slog.Logger
	thresholds pipeline.Thresholds
	raster     rasterize.Options
	pdf        searchpdf.Options
	monitor    pipeline.MemoryMonitor
}

// NewService creates a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Runner == nil {
		return nil, errors.New("ingest: runner is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("ingest: sink is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	th := cfg.Thresholds
	if th == (pipeline.Thresholds{}) {
		th = pipeline.DefaultThresholds()
	}
	raster := cfg.Rasterize
	if raster.MaxPages == 0 {
		raster.MaxPages = th.MaxPageCount
	}
	pdf := cfg.PDF
	if pdf.Logger == nil {
		pdf.Logger = logger
	}
	monitor := cfg.Monitor
	if monitor == nil {
		monitor = &pipeline.RuntimeMonitor{}
	}
	return &Service{
		monitor:    monitor,
		runner:     cfg.Runner,
		sink:       cfg.Sink,
		logger:     logger.With("component", "ingest"),
		thresholds: th,
		raster:     raster,
		pdf:        pdf,
	}, nil
}

// PageRequest submits a single scanned page.
type PageRequest struct {
	Page       pipeline.PageBuffer
	Priority   pipeline.Priority
	DocumentID string
	UserID     string
	Title      string
}

// DocumentRequest submits several image pages or one PDF.
type DocumentRequest struct {
	Files      []File
	Priority   pipeline.Priority
	DocumentID string
	UserID     string
	Title      string
	// ColorMode applies to every page. Empty uses the configured mode.
	ColorMode normalize.Mode
	// Corners holds per-page outlines in page order after PDF expansion.
	// Nil entries and missing trailing entries mean no correction.
	Corners []*normalize.Quad
}

// Result is a stored document plus the per-page pipeline output.
type Result struct {
	Document *store.Document
	Pages    []*pipeline.ProcessedPage
	Metadata searchpdf.Metadata
	Duration time.Duration
}

// PageError identifies the page that stopped a document. The cause is often
// a *pipeline.ExhaustedError.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string { return fmt.Sprintf("page %d: %v", e.Page, e.Err) }

func (e *PageError) Unwrap() error { return e.Err }

// SubmitPage processes one page into a one-page document.
func (s *Service) SubmitPage(ctx context.Context, req PageRequest) (*Result, error) {
	return s.run(ctx, []pipeline.PageBuffer{req.Page}, req.Priority, req.DocumentID, req.UserID, req.Title)
}

// SubmitDocument expands PDFs into pages, then processes every page in order
// on a single pipeline. Any page failure fails the document.
func (s *Service) SubmitDocument(ctx context.Context, req DocumentRequest) (*Result, error) {
	pages, err := s.Expand(ctx, req.Files)
	if err != nil {
		return nil, err
	}
	if len(req.Corners) > len(pages) {
		return nil, fmt.Errorf("%w: %d outlines for %d pages", ErrCornerCount, len(req.Corners), len(pages))
	}
	for i := range pages {
		pages[i].ColorMode = req.ColorMode
		if i < len(req.Corners) {
			pages[i].Corners = req.Corners[i]
		}
	}
	title := req.Title
	if title == "" && len(req.Files) > 0 {
		title = deriveTitle(req.Files[0].Name)
	}
	return s.run(ctx, pages, req.Priority, req.DocumentID, req.UserID, title)
}

// Expand converts files to page buffers, rasterizing PDFs.
func (s *Service) Expand(ctx context.Context, files []File) ([]pipeline.PageBuffer, error) {
	var pages []pipeline.PageBuffer
	for _, f := range files {
		if f.IsPDF() {
			rendered, err := rasterize.Pages(ctx, f.Data, s.raster)
			if err != nil {
				return nil, fmt.Errorf("rasterize %s: %w", f.Name, err)
			}
			pages = append(pages, rendered...)
			continue
		}
		if !pipeline.SupportedMIMETypes[f.MIMEType] {
			return nil, fmt.Errorf("%s: %w: %s", f.Name, pipeline.ErrUnsupportedMIME, f.MIMEType)
		}
		pages = append(pages, pipeline.PageBuffer{
			Data:     f.Data,
			MIMEType: f.MIMEType,
			SizeHint: int64(len(f.Data)),
		})
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	if len(pages) > s.thresholds.MaxPageCount {
		return nil, fmt.Errorf("%w: %d pages, limit %d", rasterize.ErrTooManyPages, len(pages), s.thresholds.MaxPageCount)
	}
	return pages, nil
}

// PreflightResult is the advisory check of every page in a request.
type PreflightResult struct {
	Valid     bool              `json:"valid"`
	PageCount int               `json:"page_count"`
	Issues    []string          `json:"issues"`
	Pages     []pipeline.Report `json:"pages"`
}

// Preflight checks files against the thresholds without running OCR. PDFs
// over the page limit are counted but not rendered.
func (s *Service) Preflight(ctx context.Context, files []File) (*PreflightResult, error) {
	res := &PreflightResult{Valid: true, Issues: []string{}, Pages: []pipeline.Report{}}
	if len(files) == 0 {
		return nil, ErrNoPages
	}

	var pages []pipeline.PageBuffer
	for _, f := range files {
		if !f.IsPDF() {
			pages = append(pages, pipeline.PageBuffer{Data: f.Data, MIMEType: f.MIMEType})
			res.PageCount++
			continue
		}
		n, err := rasterize.PageCount(f.Data)
		if err == nil && n == 0 {
			err = errors.New("pdf has no pages")
		}
		if err != nil {
			res.Valid = false
			res.Issues = append(res.Issues, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		res.PageCount += n
		if n > s.thresholds.MaxPageCount {
			continue
		}
		opts := s.raster
		opts.MaxPages = 0
		rendered, err := rasterize.Pages(ctx, f.Data, opts)
		if err != nil {
			return nil, fmt.Errorf("rasterize %s: %w", f.Name, err)
		}
		pages = append(pages, rendered...)
	}

	if res.PageCount > s.thresholds.MaxPageCount {
		res.Valid = false
		res.Issues = append(res.Issues, fmt.Sprintf("document has %d pages, limit %d", res.PageCount, s.thresholds.MaxPageCount))
	}
	for _, page := range pages {
		report := pipeline.Preflight(page, res.PageCount, s.thresholds, s.monitor)
		if !report.Valid {
			res.Valid = false
		}
		res.Pages = append(res.Pages, report)
	}
	return res, nil
}

func (s *Service) run(ctx context.Context, pages []pipeline.PageBuffer, prio pipeline.Priority, docID, userID, title string) (*Result, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	if docID == "" {
		docID = uuid.New().String()
	}
	log := s.logger.With("document_id", docID)
	start := time.Now()
	log.Info("processing document", "pages", len(pages))

	processed := make([]*pipeline.ProcessedPage, 0, len(pages))
	corr := pipeline.Correlation{DocumentID: docID, UserID: userID}
	err := s.runner.Do(ctx, func(ctx context.Context, p *pipeline.Pipeline) error {
		for i, page := range pages {
			report := p.Preflight(page, len(pages))
			if !report.Valid {
				log.Warn("preflight issues", "page", i+1, "issues", report.Issues)
			}
			pp, err := p.SubmitPage(ctx, page, prio, corr)
			if err != nil {
				return &PageError{Page: i + 1, Err: err}
			}
			processed = append(processed, pp)
		}
		return nil
	})
	if err != nil {
		log.Error("document failed", "error", err)
		return nil, err
	}

	opts := s.pdf
	if title != "" {
		opts.Title = title
	}
	out, err := searchpdf.Assemble(processed, opts)
	if err != nil {
		return nil, fmt.Errorf("assemble pdf: %w", err)
	}

	doc, err := s.sink.Save(ctx, store.Record{
		DocumentID: docID,
		UserID:     userID,
		Title:      title,
		PDF:        out.PDF,
		Metadata:   out.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	res := &Result{Document: doc, Pages: processed, Metadata: out.Metadata, Duration: time.Since(start)}
	log.Info("document complete",
		"pages", out.Metadata.PageCount,
		"confidence", out.Metadata.AverageConfidence,
		"duration", res.Duration)
	return res, nil
}
