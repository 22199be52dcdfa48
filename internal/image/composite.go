package image

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"impose/pkg/mask"
)

// BlendMode specifies how a mask tint is combined with the base image.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendOverlay
	BlendDifference
)

func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "Normal"
	case BlendMultiply:
		return "Multiply"
	case BlendScreen:
		return "Screen"
	case BlendOverlay:
		return "Overlay"
	case BlendDifference:
		return "Difference"
	default:
		return "Unknown"
	}
}

// ParseBlendMode parses a blend mode name (case-insensitive).
func ParseBlendMode(s string) (BlendMode, error) {
	for _, m := range []BlendMode{BlendNormal, BlendMultiply, BlendScreen, BlendOverlay, BlendDifference} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return BlendNormal, fmt.Errorf("unknown blend mode %q", s)
}

// Composite tints structure masks onto a base image.
type Composite struct {
	Base      image.Image
	Masks     []*MaskLayer
	BackColor color.Color
}

// MaskLayer is one tinted mask.
type MaskLayer struct {
	Mask      *mask.Mask
	Color     color.NRGBA
	BlendMode BlendMode
	Opacity   float64
}

// NewComposite creates a composite over base.
func NewComposite(base image.Image) *Composite {
	return &Composite{
		Base:      base,
		BackColor: color.RGBA{40, 40, 40, 255}, // Dark gray background
	}
}

// AddMask adds a mask tinted with an RGB color (0-255).
func (c *Composite) AddMask(m *mask.Mask, rgb [3]int, mode BlendMode, opacity float64) {
	c.Masks = append(c.Masks, &MaskLayer{
		Mask:      m,
		Color:     color.NRGBA{R: clamp8(rgb[0]), G: clamp8(rgb[1]), B: clamp8(rgb[2]), A: 255},
		BlendMode: mode,
		Opacity:   opacity,
	})
}

// Render produces the final image. Transparent base pixels show the
// background color.
func (c *Composite) Render() *image.RGBA {
	bounds := c.Base.Bounds()
	result := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	draw.Draw(result, result.Bounds(), &image.Uniform{c.BackColor}, image.Point{}, draw.Src)
	draw.Draw(result, result.Bounds(), c.Base, bounds.Min, draw.Over)

	for _, ml := range c.Masks {
		if ml.Mask == nil || ml.Opacity <= 0 {
			continue
		}
		c.compositeMask(result, ml)
	}

	return result
}

// compositeMask blends the tint of a single mask onto the result.
func (c *Composite) compositeMask(dst *image.RGBA, ml *MaskLayer) {
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	for y := 0; y < ml.Mask.Rows && y < h; y++ {
		for x := 0; x < ml.Mask.Cols && x < w; x++ {
			if !ml.Mask.At(y, x) {
				continue
			}
			dst.Set(x, y, blend(dst.At(x, y), ml.Color, ml.BlendMode, ml.Opacity))
		}
	}
}

// blend performs the blend operation between two colors.
func blend(dst, src color.Color, mode BlendMode, opacity float64) color.Color {
	sr, sg, sb, sa := src.RGBA()
	dr, dg, db, da := dst.RGBA()

	// Convert to 0-1 range
	sf := [4]float64{float64(sr) / 65535.0, float64(sg) / 65535.0, float64(sb) / 65535.0, float64(sa) / 65535.0}
	df := [4]float64{float64(dr) / 65535.0, float64(dg) / 65535.0, float64(db) / 65535.0, float64(da) / 65535.0}

	var rf [3]float64
	for i := 0; i < 3; i++ {
		switch mode {
		case BlendMultiply:
			rf[i] = sf[i] * df[i]
		case BlendScreen:
			rf[i] = 1 - (1-sf[i])*(1-df[i])
		case BlendOverlay:
			if df[i] < 0.5 {
				rf[i] = 2 * sf[i] * df[i]
			} else {
				rf[i] = 1 - 2*(1-sf[i])*(1-df[i])
			}
		case BlendDifference:
			rf[i] = math.Abs(sf[i] - df[i])
		default:
			rf[i] = sf[i]
		}
	}

	alpha := sf[3] * opacity
	return color.RGBA{
		R: unit8(rf[0]*alpha + df[0]*(1-alpha)),
		G: unit8(rf[1]*alpha + df[1]*(1-alpha)),
		B: unit8(rf[2]*alpha + df[2]*(1-alpha)),
		A: unit8(alpha + df[3]*(1-alpha)),
	}
}

// unit8 maps [0, 1] to 0-255 with rounding.
func unit8(x float64) uint8 {
	return uint8(math.Round(clamp(x, 0, 1) * 255))
}

func clamp8(v int) uint8 {
	return uint8(max(0, min(255, v)))
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
