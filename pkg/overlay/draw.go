package overlay

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// A pixel belongs to a rectangle when its centre lies inside it, so
// fractional edges round to the nearest pixel boundary.
func pixelSpan(lo, hi float64, limit int) (int, int) {
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return 0, 0
	}
	// keep the float to int conversion in range
	bound := float64(limit) + 1
	lo = math.Min(math.Max(lo, -1), bound)
	hi = math.Min(math.Max(hi, -1), bound)

	p0 := int(math.Ceil(lo - 0.5))
	p1 := int(math.Ceil(hi - 0.5))
	if p0 < 0 {
		p0 = 0
	}
	if p1 > limit {
		p1 = limit
	}
	return p0, p1
}

func fillRect(img *image.NRGBA, r RectF, c color.NRGBA) {
	r = r.Canon()
	b := img.Bounds()
	x0, x1 := pixelSpan(r.X, r.X+r.W, b.Dx())
	y0, y1 := pixelSpan(r.Y, r.Y+r.H, b.Dy())
	if x0 >= x1 || y0 >= y1 {
		return
	}
	for y := y0; y < y1; y++ {
		i := y*img.Stride + x0*4
		for x := x0; x < x1; x++ {
			img.Pix[i+0] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = c.A
			i += 4
		}
	}
}

// strokeRect draws a border of the given width centred on the path of r
func strokeRect(img *image.NRGBA, r RectF, width float64, c color.NRGBA) {
	r = r.Canon()
	h := width / 2
	fillRect(img, RectF{X: r.X - h, Y: r.Y - h, W: r.W + width, H: width}, c)
	fillRect(img, RectF{X: r.X - h, Y: r.Y + r.H - h, W: r.W + width, H: width}, c)
	if r.H <= width {
		return
	}
	fillRect(img, RectF{X: r.X - h, Y: r.Y + h, W: width, H: r.H - width}, c)
	fillRect(img, RectF{X: r.X + r.W - h, Y: r.Y + h, W: width, H: r.H - width}, c)
}

func drawText(img *image.NRGBA, face font.Face, text string, at PointF, c color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: toFixed(at.X), Y: toFixed(at.Y)},
	}
	d.DrawString(text)
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}

func fromFixed(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
