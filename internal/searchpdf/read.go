package searchpdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageInfo describes one page of an existing PDF.
type PageInfo struct {
	Number      int `json:"number"`
	ImageWidth  int `json:"image_width,omitempty"`
	ImageHeight int `json:"image_height,omitempty"`
	TextLength  int `json:"text_length"`
}

// Inspection is the result of reading a PDF back.
type Inspection struct {
	PageCount int        `json:"page_count"`
	Valid     bool       `json:"valid"`
	Problem   string     `json:"problem,omitempty"`
	Pages     []PageInfo `json:"pages"`
}

// ReadText extracts the text layer of every page, in page order.
func ReadText(data []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	texts := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: extract text: %w", i, err)
		}
		texts = append(texts, strings.TrimSpace(text))
	}
	return texts, nil
}

// Inspect validates a PDF with pdfcpu and reports the page count and the
// embedded image size of each page.
func Inspect(data []byte) (*Inspection, error) {
	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	ins := &Inspection{PageCount: count, Valid: true}
	if err := api.Validate(bytes.NewReader(data), nil); err != nil {
		ins.Valid = false
		ins.Problem = err.Error()
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	for i := 1; i <= r.NumPage(); i++ {
		info := PageInfo{Number: i}
		page := r.Page(i)
		if !page.V.IsNull() {
			xobjects := page.Resources().Key("XObject")
			for _, name := range xobjects.Keys() {
				obj := xobjects.Key(name)
				if obj.Key("Subtype").Name() != "Image" {
					continue
				}
				info.ImageWidth = int(obj.Key("Width").Int64())
				info.ImageHeight = int(obj.Key("Height").Int64())
				break
			}
			if text, err := page.GetPlainText(nil); err == nil {
				info.TextLength = len([]rune(strings.TrimSpace(text)))
			}
		}
		ins.Pages = append(ins.Pages, info)
	}
	return ins, nil
}
