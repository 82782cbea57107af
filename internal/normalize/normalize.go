// Package normalize straightens photographed pages and adjusts their color
// treatment before conditioning. Every operation is best-effort: on failure
// the input buffer is handed back with the reason.
package normalize

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	// Scanner and phone uploads arrive in these formats too.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Mode selects the color treatment.
type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeColor     Mode = "color"
	ModeGrayscale Mode = "grayscale"
	ModeBW        Mode = "bw"
)

// ParseMode validates a mode name. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeColor, ModeGrayscale, ModeBW:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown color mode %q (want auto, color, grayscale or bw)", s)
}

// Outcome is the result of a best-effort transform. When Reason is set the
// Buffer is the unmodified input.
type Outcome struct {
	Buffer []byte
	Reason string
	// Steps lists what was actually done, e.g. ["grayscale", "binarize@101"].
	Steps []string
}

// Applied reports whether the transform changed the buffer.
func (o Outcome) Applied() bool { return o.Reason == "" }

func skipped(buf []byte, format string, args ...any) Outcome {
	return Outcome{Buffer: buf, Reason: fmt.Sprintf(format, args...)}
}

const encodeQuality = 95

func decode(buf []byte) (image.Image, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("empty buffer")
	}
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: encodeQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// Binarized pages are bilevel; PNG keeps them exact and small.
func encodePNG(img image.Image) ([]byte, error) {
	var out bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

func clamp8(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
