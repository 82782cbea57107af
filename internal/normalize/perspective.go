package normalize

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

// Point is a pixel coordinate in the source image.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Quad is the detected page outline, clockwise from the top-left corner.
type Quad struct {
	TopLeft     Point `json:"top_left"`
	TopRight    Point `json:"top_right"`
	BottomRight Point `json:"bottom_right"`
	BottomLeft  Point `json:"bottom_left"`
}

func (q Quad) points() [4]Point {
	return [4]Point{q.TopLeft, q.TopRight, q.BottomRight, q.BottomLeft}
}

// Scale returns q with x coordinates multiplied by sx and y by sy.
func (q Quad) Scale(sx, sy float64) Quad {
	sc := func(p Point) Point { return Point{X: p.X * sx, Y: p.Y * sy} }
	return Quad{
		TopLeft:     sc(q.TopLeft),
		TopRight:    sc(q.TopRight),
		BottomRight: sc(q.BottomRight),
		BottomLeft:  sc(q.BottomLeft),
	}
}

// minSide is the smallest output edge worth warping to.
const minSide = 16

// Validate checks that q is a convex, clockwise quadrilateral inside bounds.
func (q Quad) Validate(bounds image.Rectangle) error {
	pts := q.points()
	for i, p := range pts {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			return fmt.Errorf("corner %d is NaN", i)
		}
		if p.X < float64(bounds.Min.X)-1 || p.Y < float64(bounds.Min.Y)-1 ||
			p.X > float64(bounds.Max.X)+1 || p.Y > float64(bounds.Max.Y)+1 {
			return fmt.Errorf("corner %d (%.0f,%.0f) outside image %v", i, p.X, p.Y, bounds)
		}
	}
	// In image coordinates (y down) a clockwise outline has positive cross
	// products at every corner.
	for i := 0; i < 4; i++ {
		a, b, c := pts[i], pts[(i+1)%4], pts[(i+2)%4]
		cross := (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
		if cross <= 0 {
			return errors.New("corners are not a convex clockwise quadrilateral")
		}
	}
	return nil
}

// OutputSize is the upright rectangle the quad maps onto: the longer of each
// pair of opposite edges.
func (q Quad) OutputSize() (int, int) {
	w := math.Max(dist(q.TopLeft, q.TopRight), dist(q.BottomLeft, q.BottomRight))
	h := math.Max(dist(q.TopLeft, q.BottomLeft), dist(q.TopRight, q.BottomRight))
	return int(math.Round(w)), int(math.Round(h))
}

func dist(a, b Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

// CorrectPerspective warps the page outlined by corners to an upright
// rectangle. Nil corners, an invalid outline or any decode/encode failure
// return the input unchanged with a Reason.
func CorrectPerspective(buf []byte, corners *Quad) (out Outcome) {
	if corners == nil {
		return skipped(buf, "no corners detected")
	}
	defer func() {
		if p := recover(); p != nil {
			out = skipped(buf, "perspective warp panicked: %v", p)
		}
	}()

	img, err := decode(buf)
	if err != nil {
		return skipped(buf, "%v", err)
	}
	if err := corners.Validate(img.Bounds()); err != nil {
		return skipped(buf, "invalid corners: %v", err)
	}
	w, h := corners.OutputSize()
	if w < minSide || h < minSide {
		return skipped(buf, "page outline too small (%dx%d)", w, h)
	}

	hm, err := solveHomography(
		[4]Point{{0, 0}, {float64(w - 1), 0}, {float64(w - 1), float64(h - 1)}, {0, float64(h - 1)}},
		corners.points(),
	)
	if err != nil {
		return skipped(buf, "homography: %v", err)
	}

	warped := warp(img, hm, w, h)
	encoded, err := encodeJPEG(warped)
	if err != nil {
		return skipped(buf, "%v", err)
	}
	return Outcome{Buffer: encoded, Steps: []string{fmt.Sprintf("perspective %dx%d", w, h)}}
}

// homography maps destination (u,v) to source (x,y):
//
//	x = (h0 u + h1 v + h2) / (h6 u + h7 v + 1)
//	y = (h3 u + h4 v + h5) / (h6 u + h7 v + 1)
type homography [8]float64

func (h homography) apply(u, v float64) (float64, float64) {
	d := h[6]*u + h[7]*v + 1
	return (h[0]*u + h[1]*v + h[2]) / d, (h[3]*u + h[4]*v + h[5]) / d
}

// solveHomography finds the projective map taking each dst[i] to src[i].
func solveHomography(dst, src [4]Point) (homography, error) {
	var a [8][9]float64
	for i := 0; i < 4; i++ {
		u, v := dst[i].X, dst[i].Y
		x, y := src[i].X, src[i].Y
		a[2*i] = [9]float64{u, v, 1, 0, 0, 0, -u * x, -v * x, x}
		a[2*i+1] = [9]float64{0, 0, 0, u, v, 1, -u * y, -v * y, y}
	}

	// Gaussian elimination with partial pivoting.
	for col := 0; col < 8; col++ {
		pivot := col
		for r := col + 1; r < 8; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-10 {
			return homography{}, errors.New("degenerate corner configuration")
		}
		a[col], a[pivot] = a[pivot], a[col]
		for r := 0; r < 8; r++ {
			if r == col {
				continue
			}
			f := a[r][col] / a[col][col]
			for c := col; c < 9; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}

	var h homography
	for i := 0; i < 8; i++ {
		h[i] = a[i][8] / a[i][i]
	}
	return h, nil
}

// warp resamples src through h into a w×h RGBA image with bilinear filtering.
func warp(src image.Image, h homography, w, ht int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, ht))
	b := src.Bounds()
	for v := 0; v < ht; v++ {
		for u := 0; u < w; u++ {
			x, y := h.apply(float64(u), float64(v))
			out.SetRGBA(u, v, bilinear(src, b, x+float64(b.Min.X), y+float64(b.Min.Y)))
		}
	}
	return out
}

func bilinear(src image.Image, b image.Rectangle, x, y float64) color.RGBA {
	x = math.Max(float64(b.Min.X), math.Min(float64(b.Max.X-1), x))
	y = math.Max(float64(b.Min.Y), math.Min(float64(b.Max.Y-1), y))
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := min(x0+1, b.Max.X-1), min(y0+1, b.Max.Y-1)
	fx, fy := x-float64(x0), y-float64(y0)

	var acc [4]float64
	sample := func(px, py int, wt float64) {
		r, g, bb, a := src.At(px, py).RGBA()
		acc[0] += float64(r>>8) * wt
		acc[1] += float64(g>>8) * wt
		acc[2] += float64(bb>>8) * wt
		acc[3] += float64(a>>8) * wt
	}
	sample(x0, y0, (1-fx)*(1-fy))
	sample(x1, y0, fx*(1-fy))
	sample(x0, y1, (1-fx)*fy)
	sample(x1, y1, fx*fy)
	return color.RGBA{clamp8(acc[0]), clamp8(acc[1]), clamp8(acc[2]), clamp8(acc[3])}
}
