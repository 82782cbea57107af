package ingest

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// File is one uploaded file: an image page or a PDF.
type File struct {
	Name     string
	Data     []byte
	MIMEType string
}

// IsPDF reports whether the file is a PDF to be rasterized.
func (f File) IsPDF() bool {
	return f.MIMEType == "application/pdf"
}

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// DetectMIME sniffs the content type, falling back to the file extension for
// formats the sniffer does not know (TIFF).
func DetectMIME(name string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	if sniffed != "application/octet-stream" && sniffed != "text/plain" {
		return sniffed
	}
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return sniffed
}

// LoadFiles reads paths from disk in page order.
func LoadFiles(paths []string) ([]File, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files provided")
	}
	files := make([]File, 0, len(paths))
	for _, p := range sortByNumber(paths) {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, File{
			Name:     filepath.Base(p),
			Data:     data,
			MIMEType: DetectMIME(p, data),
		})
	}
	return files, nil
}

var numberSuffix = regexp.MustCompile(`-(\d+)\.[A-Za-z0-9]+$`)

// sortByNumber sorts paths by their numeric suffix.
// e.g., ["scan-2.jpg", "scan-1.jpg", "scan-10.jpg"] -> ["scan-1.jpg", "scan-2.jpg", "scan-10.jpg"]
func sortByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	sort.SliceStable(sorted, func(i, j int) bool {
		mi := numberSuffix.FindStringSubmatch(sorted[i])
		mj := numberSuffix.FindStringSubmatch(sorted[j])

		// If both have numbers, sort numerically
		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			return ni < nj
		}

		// Files without numbers come first
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}

		return sorted[i] < sorted[j]
	})

	return sorted
}

// deriveTitle extracts a title from a file name.
// e.g., "invoice-march.pdf" -> "invoice-march"
// e.g., "receipt-1.jpg" -> "receipt"
func deriveTitle(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	re := regexp.MustCompile(`-\d+$`)
	return re.ReplaceAllString(name, "")
}
