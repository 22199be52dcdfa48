// Package colorutil provides shared color utilities for impose.
package colorutil

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Default layer colors, cycled when new structure layers are created.
var (
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Cyan    = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	Yellow  = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	Green   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Orange  = color.RGBA{R: 255, G: 165, B: 0, A: 255}
)

// LayerPalette is the order in which default layer colors are assigned.
var LayerPalette = []color.RGBA{White, Cyan, Magenta, Yellow, Green, Orange}

// PaletteColor returns the i-th palette color as an RGB triple (0-255).
func PaletteColor(i int) [3]int {
	c := LayerPalette[i%len(LayerPalette)]
	return [3]int{int(c.R), int(c.G), int(c.B)}
}

// RGBToHSV converts RGB to HSV. All components are fractions; the hue is
// in [0, 1). Values outside [0, 1] are converted with the same formulas.
func RGBToHSV(r, g, b float64) (h, s, v float64) {
	h, s, v = colorful.Color{R: r, G: g, B: b}.Hsv()
	return h / 360, s, v
}

// HSVToRGB converts HSV (all fractions) to RGB. The hue wraps around, so
// 1.25 is the same as 0.25.
func HSVToRGB(h, s, v float64) (r, g, b float64) {
	h = math.Mod(h, 1)
	if h < 0 {
		h++
	}
	c := colorful.Hsv(h*360, s, v)
	return c.R, c.G, c.B
}

// ParseHex parses a "#RRGGBB" (or "RRGGBB") color into fractions.
func ParseHex(s string) (r, g, b float64, err error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	if len(s) != 7 {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", s)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return c.R, c.G, c.B, nil
}

// Hex formats an RGB triple (0-255) as "#rrggbb".
func Hex(rgb [3]int) string {
	return colorful.Color{
		R: float64(clamp8(rgb[0])) / 255,
		G: float64(clamp8(rgb[1])) / 255,
		B: float64(clamp8(rgb[2])) / 255,
	}.Hex()
}

// RGBA converts an RGB triple (0-255) to an opaque color.
func RGBA(rgb [3]int) color.RGBA {
	return color.RGBA{R: clamp8(rgb[0]), G: clamp8(rgb[1]), B: clamp8(rgb[2]), A: 255}
}

// To8 converts a fraction to an 8-bit channel value, clamping to [0, 255].
func To8(f float64) uint8 {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 1 {
		return 255
	}
	return uint8(math.Round(f * 255))
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
