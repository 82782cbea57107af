package compress

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/jackzampolin/scanline/internal/enhance"
)

// ErrOverCeiling is returned when no quality/scale combination fits the byte
// ceiling.
var ErrOverCeiling = errors.New("compressed output exceeds size ceiling")

const (
	minQuality   = 20
	qualityStep  = 10
	scaleStep    = 0.8
	maxDownscale = 8
	minDimension = 64
)

// Output is a compressed page.
type Output struct {
	Data    []byte
	Width   int
	Height  int
	Quality int // quality actually used, may be below the level's
	Level   Level
}

// Ratio is output size over input size.
func (o *Output) Ratio(inputSize int) float64 {
	if inputSize == 0 {
		return 0
	}
	return float64(len(o.Data)) / float64(inputSize)
}

// Apply recompresses buf with lvl. When maxBytes > 0 the output is forced
// under it by lowering quality, then by further downscaling.
func Apply(buf []byte, lvl Level, maxBytes int64) (*Output, error) {
	src, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode for %s: %w", lvl, err)
	}

	img := fitWidth(src, lvl.MaxWidth)
	if lvl.ForceGrayscale {
		img = enhance.ToGray(img)
	}

	var exif []byte
	if !lvl.StripMetadata {
		exif = exifSegment(buf)
	}

	q := lvl.JPEGQuality
	data, err := encode(img, q, exif)
	if err != nil {
		return nil, err
	}
	fits := func() bool { return maxBytes <= 0 || int64(len(data)) <= maxBytes }

	for !fits() && q > minQuality {
		q = max(minQuality, q-qualityStep)
		if data, err = encode(img, q, exif); err != nil {
			return nil, err
		}
	}
	for i := 0; !fits() && i < maxDownscale; i++ {
		b := img.Bounds()
		w := int(float64(b.Dx()) * scaleStep)
		if w < minDimension || int(float64(b.Dy())*scaleStep) < minDimension {
			break
		}
		img = fitWidth(img, w)
		if data, err = encode(img, q, exif); err != nil {
			return nil, err
		}
	}
	if !fits() {
		return nil, fmt.Errorf("%w: %s produced %d bytes, ceiling %d", ErrOverCeiling, lvl, len(data), maxBytes)
	}

	b := img.Bounds()
	return &Output{Data: data, Width: b.Dx(), Height: b.Dy(), Quality: q, Level: lvl}, nil
}

func fitWidth(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := max(1, b.Dy()*maxWidth/b.Dx())
	var dst draw.Image
	if _, ok := img.(*image.Gray); ok {
		dst = image.NewGray(image.Rect(0, 0, maxWidth, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func encode(img image.Image, quality int, exif []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg q%d: %w", quality, err)
	}
	if len(exif) == 0 {
		return out.Bytes(), nil
	}
	return insertSegment(out.Bytes(), exif), nil
}
