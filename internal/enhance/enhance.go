// Package enhance conditions a page image for OCR with a fixed sequence of
// filters.
package enhance

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// Inputs come from the normalizer (jpeg, png) or straight from uploads.
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

// ErrDecode is returned when the input is not a readable image.
var ErrDecode = errors.New("enhance: undecodable image")

// Step names recorded in Result.StepsApplied.
const (
	StepResize             = "resize"
	StepGrayscale          = "grayscale"
	StepDenoise            = "denoise"
	StepContrastStretch    = "contrast_stretch"
	StepNormalize          = "normalize"
	StepSharpen            = "sharpen"
	StepGamma              = "gamma"
	StepBrightnessContrast = "brightness_contrast"
	StepEncode             = "encode"
)

// Options tune the conditioning filters.
type Options struct {
	TargetWidth    int     // longest side after resize; only shrinks
	DenoiseSigma   float64 // gaussian blur sigma
	SharpenSigma   float64
	Gamma          float64
	Brightness     float64 // percent, -100..100
	Contrast       float64 // percent, -100..100
	LowPercentile  float64
	HighPercentile float64
	Quality        int
}

// DefaultOptions returns the production filter settings.
func DefaultOptions() Options {
	return Options{
		TargetWidth:    2800,
		DenoiseSigma:   0.6,
		SharpenSigma:   1.0,
		Gamma:          0.9,
		Brightness:     2,
		Contrast:       8,
		LowPercentile:  0.01,
		HighPercentile: 0.99,
		Quality:        95,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TargetWidth <= 0 {
		o.TargetWidth = d.TargetWidth
	}
	if o.DenoiseSigma <= 0 {
		o.DenoiseSigma = d.DenoiseSigma
	}
	if o.SharpenSigma <= 0 {
		o.SharpenSigma = d.SharpenSigma
	}
	if o.Gamma <= 0 {
		o.Gamma = d.Gamma
	}
	if o.LowPercentile <= 0 || o.HighPercentile <= 0 || o.LowPercentile >= o.HighPercentile {
		o.LowPercentile, o.HighPercentile = d.LowPercentile, d.HighPercentile
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = d.Quality
	}
	return o
}

// Dims is an image size in pixels.
type Dims struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Result is a conditioned page.
type Result struct {
	Enhanced     []byte
	StepsApplied []string
	// Skipped holds "step: reason" for every step that failed.
	Skipped    []string
	BeforeDims Dims
	AfterDims  Dims
}

type step struct {
	name  string
	apply func(image.Image) image.Image
}

func pipeline(o Options) []step {
	return []step{
		{StepResize, func(img image.Image) image.Image {
			b := img.Bounds()
			if max(b.Dx(), b.Dy()) <= o.TargetWidth {
				return nil
			}
			return imaging.Fit(img, o.TargetWidth, o.TargetWidth, imaging.Lanczos)
		}},
		{StepGrayscale, func(img image.Image) image.Image { return ToGray(img) }},
		{StepDenoise, func(img image.Image) image.Image { return ToGray(imaging.Blur(img, o.DenoiseSigma)) }},
		{StepContrastStretch, func(img image.Image) image.Image { return stretch(ToGray(img), 0, 1) }},
		{StepNormalize, func(img image.Image) image.Image {
			return stretch(ToGray(img), o.LowPercentile, o.HighPercentile)
		}},
		{StepSharpen, func(img image.Image) image.Image { return ToGray(imaging.Sharpen(img, o.SharpenSigma)) }},
		{StepGamma, func(img image.Image) image.Image { return ToGray(imaging.AdjustGamma(img, o.Gamma)) }},
		{StepBrightnessContrast, func(img image.Image) image.Image {
			out := imaging.AdjustBrightness(img, o.Brightness)
			return ToGray(imaging.AdjustContrast(out, o.Contrast))
		}},
	}
}

// Condition runs the filter sequence over buf. Only an undecodable input is
// an error; a failing filter is skipped and the best image so far continues.
func Condition(buf []byte, opts Options) (*Result, error) {
	return run(buf, opts.withDefaults(), nil)
}

func run(buf []byte, o Options, steps []step) (*Result, error) {
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if steps == nil {
		steps = pipeline(o)
	}

	res := &Result{BeforeDims: dimsOf(img)}
	cur := img
	for _, s := range steps {
		out, err := safeApply(s, cur)
		switch {
		case err != nil:
			res.Skipped = append(res.Skipped, fmt.Sprintf("%s: %v", s.name, err))
		case out == nil:
			// not needed for this image
		default:
			cur = out
			res.StepsApplied = append(res.StepsApplied, s.name)
		}
	}

	var enc bytes.Buffer
	if err := jpeg.Encode(&enc, ToGray(cur), &jpeg.Options{Quality: o.Quality}); err != nil {
		res.Skipped = append(res.Skipped, fmt.Sprintf("%s: %v", StepEncode, err))
		res.Enhanced = buf
		res.AfterDims = res.BeforeDims
		return res, nil
	}
	res.StepsApplied = append(res.StepsApplied, StepEncode)
	res.Enhanced = enc.Bytes()
	res.AfterDims = dimsOf(cur)
	return res, nil
}

func safeApply(s step, img image.Image) (out image.Image, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return s.apply(img), nil
}

func dimsOf(img image.Image) Dims {
	b := img.Bounds()
	return Dims{Width: b.Dx(), Height: b.Dy()}
}
