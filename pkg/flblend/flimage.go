package flblend

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"impose/pkg/colorutil"
)

// Default channel settings (0-255 scale).
const (
	DefaultBrightness = 127.0
	DefaultContrast   = 127.0
)

// FlImage is one normalized image channel with its display settings.
// It is not modified after construction.
type FlImage struct {
	data       *mat.Dense
	hue        Hue
	contrast   float64
	brightness float64
}

// NewFlImage creates a channel image. The data is copied and should
// already be normalized to [0, 1]; NaN marks missing data.
func NewFlImage(data mat.Matrix, hue Hue, contrast, brightness float64) *FlImage {
	return &FlImage{
		data:       mat.DenseCopyOf(data),
		hue:        hue,
		contrast:   contrast,
		brightness: brightness,
	}
}

// Shape returns the image dimensions.
func (f *FlImage) Shape() (rows, cols int) {
	return f.data.Dims()
}

// Data returns a copy of the normalized image data.
func (f *FlImage) Data() *mat.Dense {
	return mat.DenseCopyOf(f.data)
}

// Hue returns the resolved hue.
func (f *FlImage) Hue() Hue { return f.hue }

// Contrast returns the contrast setting.
func (f *FlImage) Contrast() float64 { return f.contrast }

// Brightness returns the brightness setting.
func (f *FlImage) Brightness() float64 { return f.brightness }

// RGB applies contrast, brightness and hue. The result is not clamped.
//
// The contrast factor runs from 2/256 to 2 and is never zero; the
// brightness offset runs from -127/256 to 1/2.
func (f *FlImage) RGB() *Image {
	con := 2 * (f.contrast + 1) / 256
	bri := (f.brightness - 127) / 256

	rows, cols := f.data.Dims()
	out := NewImage(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := con*f.data.At(r, c) + bri
			out.Set(r, c, v*f.hue[0], v*f.hue[1], v*f.hue[2])
		}
	}
	return out
}

// HSV returns RGB converted to HSV (all channels fractions). Pixels that
// are NaN in the RGB image are NaN in all three HSV channels.
func (f *FlImage) HSV() *Image {
	out := f.RGB()
	for i := 0; i < len(out.Pix); i += 3 {
		r, g, b := out.Pix[i], out.Pix[i+1], out.Pix[i+2]
		if math.IsNaN(r) || math.IsNaN(g) || math.IsNaN(b) {
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = math.NaN(), math.NaN(), math.NaN()
			continue
		}
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = colorutil.RGBToHSV(r, g, b)
	}
	return out
}
