package normalize

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/jackzampolin/scanline/internal/enhance"
)

const (
	// grayTolerance is how far apart channel means may be for a page to
	// count as effectively monochrome.
	grayTolerance = 6.0
	// lowContrastStdDev marks pages that binarize cleanly.
	lowContrastStdDev = 40.0

	autoDesaturate   = -20.0
	colorSaturate    = 10.0
	colorBrightening = 3.0
)

// Stats summarizes an image's color distribution.
type Stats struct {
	MeanR, MeanG, MeanB float64
	Luma                float64
	LumaStdDev          float64
}

// ChannelSpread is the largest difference between channel means.
func (s Stats) ChannelSpread() float64 {
	hi := math.Max(s.MeanR, math.Max(s.MeanG, s.MeanB))
	lo := math.Min(s.MeanR, math.Min(s.MeanG, s.MeanB))
	return hi - lo
}

// ComputeStats samples every pixel of img.
func ComputeStats(img image.Image) Stats {
	b := img.Bounds()
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return Stats{}
	}
	var sr, sg, sb, sl, sl2 float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA()
			rf, gf, bf := float64(r>>8), float64(g>>8), float64(bb>>8)
			l := 0.299*rf + 0.587*gf + 0.114*bf
			sr += rf
			sg += gf
			sb += bf
			sl += l
			sl2 += l * l
		}
	}
	mean := sl / n
	variance := sl2/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return Stats{
		MeanR:      sr / n,
		MeanG:      sg / n,
		MeanB:      sb / n,
		Luma:       mean,
		LumaStdDev: math.Sqrt(variance),
	}
}

// AdaptiveThreshold derives a binarization cutoff from mean luminance:
// 128 + (mean-128)*0.3, clamped to [80,176] and truncated.
func AdaptiveThreshold(mean float64) uint8 {
	t := 128 + (mean-128)*0.3
	t = math.Max(80, math.Min(176, t))
	return uint8(t)
}

// Binarize maps luma ≥ threshold to white and everything else to black.
func Binarize(g *image.Gray, threshold uint8) *image.Gray {
	out := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		if v >= threshold {
			out.Pix[i] = 0xff
		}
	}
	return out
}

// ApplyColorMode applies mode to buf. Failures return the input with Reason.
func ApplyColorMode(buf []byte, mode Mode) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = skipped(buf, "color mode %s panicked: %v", mode, p)
		}
	}()

	img, err := decode(buf)
	if err != nil {
		return skipped(buf, "%v", err)
	}

	var (
		result  image.Image
		steps   []string
		bilevel bool
	)

	switch mode {
	case ModeGrayscale:
		result = enhance.ToGray(img)
		steps = append(steps, "grayscale")

	case ModeBW:
		g := enhance.ToGray(img)
		t := AdaptiveThreshold(ComputeStats(g).Luma)
		result = Binarize(g, t)
		steps = append(steps, "grayscale", fmt.Sprintf("binarize@%d", t))
		bilevel = true

	case ModeColor:
		adj := imaging.AdjustSaturation(img, colorSaturate)
		result = imaging.AdjustBrightness(adj, colorBrightening)
		steps = append(steps, "saturate", "brighten")

	case ModeAuto, "":
		st := ComputeStats(img)
		if st.ChannelSpread() <= grayTolerance {
			g := enhance.ToGray(img)
			steps = append(steps, "grayscale")
			if st.LumaStdDev < lowContrastStdDev {
				t := AdaptiveThreshold(st.Luma)
				g = Binarize(g, t)
				steps = append(steps, fmt.Sprintf("binarize@%d", t))
				bilevel = true
			}
			result = g
		} else {
			result = imaging.AdjustSaturation(img, autoDesaturate)
			steps = append(steps, "desaturate")
		}

	default:
		return skipped(buf, "unknown color mode %q", mode)
	}

	var encoded []byte
	if bilevel {
		encoded, err = encodePNG(result)
	} else {
		encoded, err = encodeJPEG(result)
	}
	if err != nil {
		return skipped(buf, "%v", err)
	}
	return Outcome{Buffer: encoded, Steps: steps}
}
