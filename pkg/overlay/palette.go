package overlay

import (
	"image/color"
	"math"
	"math/big"
)

// Palette is cycled by detection index: blue, red, green, amber,
// violet, pink, teal, orange.
var Palette = []color.NRGBA{
	{0x3b, 0x82, 0xf6, 0xff},
	{0xef, 0x44, 0x44, 0xff},
	{0x10, 0xb9, 0x81, 0xff},
	{0xf5, 0x9e, 0x0b, 0xff},
	{0x8b, 0x5c, 0xf6, 0xff},
	{0xec, 0x48, 0x99, 0xff},
	{0x14, 0xb8, 0xa6, 0xff},
	{0xf9, 0x73, 0x16, 0xff},
}

// TextColor is used for every label
var TextColor = color.NRGBA{0xff, 0xff, 0xff, 0xff}

// ColorFor returns the palette entry for detection index i
func ColorFor(i int) color.NRGBA {
	return colorFrom(Palette, i)
}

func colorFrom(palette []color.NRGBA, i int) color.NRGBA {
	n := len(palette)
	return palette[((i%n)+n)%n]
}

// FormatLabel renders "{label} {confidence*100 to one decimal}%". Ties
// round up, judged on the exact value of confidence*100.
func FormatLabel(label string, confidence float64) string {
	pct := confidence * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		pct = 0
	}
	return label + " " + formatTenths(pct) + "%"
}

func formatTenths(v float64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	x := new(big.Float).SetPrec(256).SetFloat64(v)
	x.Mul(x, big.NewFloat(10))
	x.Add(x, big.NewFloat(0.5))
	n, _ := x.Int(nil)

	digits := n.String()
	if len(digits) < 2 {
		digits = "0" + digits
	}
	return sign + digits[:len(digits)-1] + "." + digits[len(digits)-1:]
}
