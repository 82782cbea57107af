// Package searchpdf assembles processed pages into a searchable PDF: the page
// image as background with an almost transparent text layer aligned to the
// recognized words.
package searchpdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"math"
	"strings"
	"time"

	_ "image/png"

	"github.com/google/uuid"

	"github.com/jackzampolin/scanline/internal/ocr"
	"github.com/jackzampolin/scanline/internal/pipeline"
)

// ErrNoPages is returned when Assemble is called without pages.
var ErrNoPages = errors.New("no pages to assemble")

const (
	DefaultProducer    = "scanline"
	DefaultTextOpacity = 0.01
)

// Options configure document assembly.
type Options struct {
	Title    string
	Subject  string
	Producer string
	// MinWordConfidence excludes words at or below it from the text layer.
	MinWordConfidence float64
	// TextOpacity is the fill alpha of the text layer (0 < a <= 1).
	TextOpacity float64
	// Now stamps CreationDate and ModDate. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Producer == "" {
		o.Producer = DefaultProducer
	}
	if o.MinWordConfidence <= 0 {
		o.MinWordConfidence = ocr.DefaultOverlayConfidence
	}
	if o.TextOpacity <= 0 || o.TextOpacity > 1 {
		o.TextOpacity = DefaultTextOpacity
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Metadata summarizes an assembled document.
type Metadata struct {
	PageCount         int      `json:"page_count"`
	TotalTextLength   int      `json:"total_text_length"`
	PageTexts         []string `json:"page_texts"`
	AverageConfidence float64  `json:"average_confidence"`
	CompressionRatio  float64  `json:"compression_ratio"`
	OverlayWords      int      `json:"overlay_words"`
}

// Output is an assembled PDF.
type Output struct {
	PDF      []byte
	Metadata Metadata
}

// Placement is where a word is drawn on the page, in PDF points with the
// origin at the bottom-left.
type Placement struct {
	X        float64
	Y        float64
	FontSize float64
}

// PlaceWord converts an image-space box to PDF space. Pages are laid out at
// one point per pixel, so only the Y axis needs flipping.
func PlaceWord(w ocr.Word, pageHeight float64) Placement {
	return Placement{
		X:        float64(w.BBox.X0),
		Y:        pageHeight - float64(w.BBox.Y1),
		FontSize: math.Max(1, float64(w.BBox.Height())),
	}
}

type pageImage struct {
	jpeg       []byte
	width      int
	height     int
	colorSpace string
}

// Assemble writes one PDF page per processed page. Any page failure aborts
// the whole document.
func Assemble(pages []*pipeline.ProcessedPage, opts Options) (*Output, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	o := opts.withDefaults()

	images := make([]pageImage, len(pages))
	for i, p := range pages {
		if p == nil || p.OCR == nil {
			return nil, fmt.Errorf("page %d: missing OCR result", i+1)
		}
		img, err := prepareImage(p.EnhancedImage)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		images[i] = img
	}

	w := newWriter()
	catalog := w.reserve()
	pagesObj := w.reserve()
	font := w.reserve()
	gs := w.reserve()
	info := w.reserve()

	meta := Metadata{PageCount: len(pages), PageTexts: make([]string, len(pages))}
	var confSum, ratioSum float64
	kids := make([]string, len(pages))

	for i, p := range pages {
		img := images[i]
		pageObj, imgObj, contentObj := w.reserve(), w.reserve(), w.reserve()
		kids[i] = fmt.Sprintf("%d 0 R", pageObj)

		w.stream(imgObj, fmt.Sprintf(
			"/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /%s /BitsPerComponent 8 /Filter /DCTDecode",
			img.width, img.height, img.colorSpace), img.jpeg)

		content, drawn := pageContent(p.OCR, img, o)
		meta.OverlayWords += drawn
		if err := w.flateStream(contentObj, "", content); err != nil {
			return nil, fmt.Errorf("page %d: compress content: %w", i+1, err)
		}

		w.object(pageObj, fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %d %d] "+
				"/Resources << /XObject << /Im1 %d 0 R >> /Font << /F1 %d 0 R >> /ExtGState << /GS1 %d 0 R >> >> "+
				"/Contents %d 0 R >>",
			pagesObj, img.width, img.height, imgObj, font, gs, contentObj))

		meta.PageTexts[i] = p.OCR.Text
		meta.TotalTextLength += len([]rune(p.OCR.Text))
		confSum += p.OCR.Confidence
		ratioSum += p.Enhancement.CompressionRatio
	}

	meta.AverageConfidence = confSum / float64(len(pages))
	meta.CompressionRatio = ratioSum / float64(len(pages))

	w.object(pagesObj, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	w.object(font, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	w.object(gs, fmt.Sprintf("<< /Type /ExtGState /ca %s /CA %s >>", num(o.TextOpacity), num(o.TextOpacity)))

	now := pdfDate(o.Now())
	var infoDict strings.Builder
	infoDict.WriteString("<<")
	if o.Title != "" {
		fmt.Fprintf(&infoDict, " /Title %s", textString(o.Title))
	}
	if o.Subject != "" {
		fmt.Fprintf(&infoDict, " /Subject %s", textString(o.Subject))
	}
	fmt.Fprintf(&infoDict, " /Producer %s /CreationDate (%s) /ModDate (%s) >>", textString(o.Producer), now, now)
	w.object(info, infoDict.String())
	w.object(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj))

	id := uuid.New()
	pdf, err := w.finish(catalog, info, id[:])
	if err != nil {
		return nil, err
	}

	o.Logger.Debug("assembled searchable pdf",
		"pages", meta.PageCount, "bytes", len(pdf), "overlay_words", meta.OverlayWords)
	return &Output{PDF: pdf, Metadata: meta}, nil
}

// pageContent draws the image full-page, then each eligible word through the
// translucent graphics state. It returns the stream and the number of words
// drawn.
func pageContent(res *ocr.Result, img pageImage, o Options) ([]byte, int) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "q\n%d 0 0 %d 0 0 cm\n/Im1 Do\nQ\n", img.width, img.height)

	words := res.OverlayWords(o.MinWordConfidence)
	if len(words) == 0 {
		return b.Bytes(), 0
	}

	b.WriteString("q\n/GS1 gs\nBT\n")
	drawn := 0
	for _, word := range words {
		enc := encodeWinAnsi(word.Text)
		if len(enc) == 0 || word.BBox.Width() <= 0 || word.BBox.Height() <= 0 {
			continue
		}
		pl := PlaceWord(word, float64(img.height))
		scale := 100.0
		if natural := textWidth(enc) * pl.FontSize; natural > 0 {
			scale = float64(word.BBox.Width()) / natural * 100
		}
		fmt.Fprintf(&b, "/F1 %s Tf\n%s Tz\n1 0 0 1 %s %s Tm\n%s Tj\n",
			num(pl.FontSize), num(scale), num(pl.X), num(pl.Y), literal(enc))
		drawn++
	}
	b.WriteString("ET\nQ\n")
	return b.Bytes(), drawn
}

// prepareImage returns a baseline JPEG suitable for DCTDecode, re-encoding
// anything else (PNG pages, CMYK JPEGs).
func prepareImage(data []byte) (pageImage, error) {
	if len(data) == 0 {
		return pageImage{}, errors.New("empty page image")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return pageImage{}, fmt.Errorf("read page image: %w", err)
	}
	if format == "jpeg" {
		switch cfg.ColorModel {
		case color.GrayModel:
			return pageImage{jpeg: data, width: cfg.Width, height: cfg.Height, colorSpace: "DeviceGray"}, nil
		case color.YCbCrModel, color.RGBAModel:
			return pageImage{jpeg: data, width: cfg.Width, height: cfg.Height, colorSpace: "DeviceRGB"}, nil
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return pageImage{}, fmt.Errorf("decode page image: %w", err)
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 95}); err != nil {
		return pageImage{}, fmt.Errorf("encode page image: %w", err)
	}
	b := img.Bounds()
	cs := "DeviceRGB"
	if _, ok := img.(*image.Gray); ok {
		cs = "DeviceGray"
	}
	return pageImage{jpeg: out.Bytes(), width: b.Dx(), height: b.Dy(), colorSpace: cs}, nil
}
