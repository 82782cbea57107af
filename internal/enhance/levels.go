package enhance

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ToGray converts img to 8-bit luma. Gray images anchored at the origin are
// returned as is.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	src := imaging.Grayscale(img)
	g := image.NewGray(src.Rect)
	for i := range g.Pix {
		g.Pix[i] = src.Pix[i*4]
	}
	return g
}

// stretch maps the [lo,hi] quantiles of g's histogram linearly onto [0,255].
// With lo=0 and hi=1 this is a plain min/max contrast stretch. Flat images
// are returned unchanged.
func stretch(g *image.Gray, lo, hi float64) *image.Gray {
	var hist [256]int
	for _, v := range g.Pix {
		hist[v]++
	}
	n := len(g.Pix)
	if n == 0 {
		return g
	}
	low := quantile(&hist, n, lo)
	high := quantile(&hist, n, hi)
	if high <= low {
		return g
	}

	var lut [256]uint8
	scale := 255.0 / float64(high-low)
	for i := range lut {
		v := (float64(i) - float64(low)) * scale
		lut[i] = uint8(math.Max(0, math.Min(255, math.Round(v))))
	}
	out := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		out.Pix[i] = lut[v]
	}
	return out
}

// quantile returns the smallest level whose cumulative count reaches q*n.
// q=0 gives the darkest present level and q=1 the brightest.
func quantile(hist *[256]int, n int, q float64) int {
	if q <= 0 {
		for i, c := range hist {
			if c > 0 {
				return i
			}
		}
		return 0
	}
	target := int(math.Ceil(q * float64(n)))
	cum := 0
	for i, c := range hist {
		cum += c
		if cum >= target {
			return i
		}
	}
	return 255
}
