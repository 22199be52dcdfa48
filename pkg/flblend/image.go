package flblend

import (
	"image"
	"image/color"
	"math"

	"impose/pkg/colorutil"
)

// Image is a float image with three interleaved channels. Depending on
// where it comes from the channels hold R, G, B or H, S, V. Values are
// not clamped and may be NaN.
type Image struct {
	Rows int
	Cols int
	Pix  []float64
}

// NewImage allocates a zero image.
func NewImage(rows, cols int) *Image {
	return &Image{Rows: rows, Cols: cols, Pix: make([]float64, rows*cols*3)}
}

// At returns the three channels of pixel (row, col).
func (im *Image) At(row, col int) (c0, c1, c2 float64) {
	i := (row*im.Cols + col) * 3
	return im.Pix[i], im.Pix[i+1], im.Pix[i+2]
}

// Set sets the three channels of pixel (row, col).
func (im *Image) Set(row, col int, c0, c1, c2 float64) {
	i := (row*im.Cols + col) * 3
	im.Pix[i], im.Pix[i+1], im.Pix[i+2] = c0, c1, c2
}

// Channel returns a copy of channel k (0, 1 or 2) in row-major order.
func (im *Image) Channel(k int) []float64 {
	out := make([]float64, im.Rows*im.Cols)
	for i := range out {
		out[i] = im.Pix[3*i+k]
	}
	return out
}

// Equal reports whether both images have the same shape and bitwise
// identical pixels, with NaN equal to NaN.
func (im *Image) Equal(other *Image) bool {
	if im.Rows != other.Rows || im.Cols != other.Cols {
		return false
	}
	for i, v := range im.Pix {
		w := other.Pix[i]
		if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
			return false
		}
	}
	return true
}

// ToNRGBA converts an RGB image to 8 bits per channel. Values are
// clamped to [0, 1]; pixels with a NaN channel become transparent.
func (im *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, im.Cols, im.Rows))
	for r := 0; r < im.Rows; r++ {
		for c := 0; c < im.Cols; c++ {
			red, green, blue := im.At(r, c)
			if math.IsNaN(red) || math.IsNaN(green) || math.IsNaN(blue) {
				continue
			}
			out.SetNRGBA(c, r, color.NRGBA{
				R: colorutil.To8(red),
				G: colorutil.To8(green),
				B: colorutil.To8(blue),
				A: 255,
			})
		}
	}
	return out
}
