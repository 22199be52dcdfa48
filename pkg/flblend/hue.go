package flblend

import (
	"math"

	"impose/pkg/colorutil"
	"impose/pkg/errdefs"
)

// Hue is a resolved channel hue: an RGB triple (fractions) with full
// saturation and value.
type Hue [3]float64

// HueAngle resolves a hue angle given on a 0-255 scale.
func HueAngle(h float64) Hue {
	r, g, b := colorutil.HSVToRGB(h/255, 1, 1)
	return normalizeHue(r, g, b)
}

// HueHex resolves a "#RRGGBB" color. Only its hue is kept.
func HueHex(s string) (Hue, error) {
	r, g, b, err := colorutil.ParseHex(s)
	if err != nil {
		return Hue{}, &errdefs.InvalidHueError{Value: s}
	}
	return normalizeHue(r, g, b), nil
}

// HueRGB resolves an RGB color with 0-255 components. Only its hue is kept.
func HueRGB(r, g, b float64) Hue {
	return normalizeHue(r/255, g/255, b/255)
}

// ResolveHue resolves a loosely typed hue: a number (hue angle on a 0-255
// scale), a hex string, an RGB triple (0-255) or an already resolved Hue.
func ResolveHue(v any) (Hue, error) {
	switch h := v.(type) {
	case Hue:
		return h, nil
	case string:
		return HueHex(h)
	case float64:
		return hueNumber(v, h)
	case float32:
		return hueNumber(v, float64(h))
	case int:
		return HueAngle(float64(h)), nil
	case int64:
		return HueAngle(float64(h)), nil
	case uint8:
		return HueAngle(float64(h)), nil
	case [3]float64:
		return hueTriple(v, h[:])
	case [3]int:
		return HueRGB(float64(h[0]), float64(h[1]), float64(h[2])), nil
	case []float64:
		return hueTriple(v, h)
	case []int:
		f := make([]float64, len(h))
		for i, x := range h {
			f[i] = float64(x)
		}
		return hueTriple(v, f)
	case []any:
		// decoded JSON arrays
		f := make([]float64, len(h))
		for i, x := range h {
			n, ok := x.(float64)
			if !ok {
				if k, isInt := x.(int); isInt {
					n, ok = float64(k), true
				}
			}
			if !ok {
				return Hue{}, &errdefs.InvalidHueError{Value: v}
			}
			f[i] = n
		}
		return hueTriple(v, f)
	default:
		return Hue{}, &errdefs.InvalidHueError{Value: v}
	}
}

// Hex formats the hue as "#rrggbb".
func (h Hue) Hex() string {
	return colorutil.Hex(h.RGB8())
}

// RGB8 returns the hue as 0-255 components.
func (h Hue) RGB8() [3]int {
	return [3]int{
		int(colorutil.To8(h[0])),
		int(colorutil.To8(h[1])),
		int(colorutil.To8(h[2])),
	}
}

func hueNumber(raw any, h float64) (Hue, error) {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return Hue{}, &errdefs.InvalidHueError{Value: raw}
	}
	return HueAngle(h), nil
}

func hueTriple(raw any, rgb []float64) (Hue, error) {
	if len(rgb) != 3 {
		return Hue{}, &errdefs.InvalidHueError{Value: raw}
	}
	for _, c := range rgb {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return Hue{}, &errdefs.InvalidHueError{Value: raw}
		}
	}
	return HueRGB(rgb[0], rgb[1], rgb[2]), nil
}

// normalizeHue keeps only the hue angle of a color by forcing saturation
// and value to 1.
func normalizeHue(r, g, b float64) Hue {
	h, _, _ := colorutil.RGBToHSV(r, g, b)
	r, g, b = colorutil.HSVToRGB(h, 1, 1)
	return Hue{r, g, b}
}
