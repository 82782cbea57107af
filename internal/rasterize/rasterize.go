// Package rasterize renders PDF pages to JPEG page buffers so uploaded PDFs can
// enter the OCR pipeline like scanned images.
package rasterize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"

	"github.com/jackzampolin/scanline/internal/pipeline"
)

const (
	DefaultDPI     = 200
	DefaultQuality = 90
)

// ErrTooManyPages is returned when a PDF exceeds the page limit.
var ErrTooManyPages = errors.New("pdf exceeds page limit")

// Options control rendering.
type Options struct {
	DPI     float64
	Quality int
	// MaxPages rejects documents with more pages. Zero disables the check.
	MaxPages int
}

func (o Options) withDefaults() Options {
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// PageCount opens the PDF only to count its pages.
func PageCount(pdf []byte) (int, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// Pages renders every page of pdf in order.
func Pages(ctx context.Context, pdf []byte, opts Options) ([]pipeline.PageBuffer, error) {
	o := opts.withDefaults()

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n == 0 {
		return nil, errors.New("pdf has no pages")
	}
	if o.MaxPages > 0 && n > o.MaxPages {
		return nil, fmt.Errorf("%w: %d pages, limit %d", ErrTooManyPages, n, o.MaxPages)
	}

	pages := make([]pipeline.PageBuffer, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, o.DPI)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.Quality}); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		pages = append(pages, pipeline.PageBuffer{
			Data:     buf.Bytes(),
			MIMEType: "image/jpeg",
			SizeHint: int64(buf.Len()),
		})
	}
	return pages, nil
}
