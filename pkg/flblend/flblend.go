// Package flblend blends fluorescence image channels into one RGB image
// for visualization.
//
// Each channel is a 2D image with a hue, a contrast and a brightness.
// Channels are combined either by averaging their RGB values or by
// averaging their hue angles (HSV blending). Missing data (NaN) never
// influences the blended color.
package flblend

import (
	"fmt"
	"image"
	"math"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"impose/internal/logging"
	"impose/internal/nanops"
	"impose/pkg/colorutil"
	"impose/pkg/errdefs"
)

// Mode specifies how channels are blended.
type Mode int

const (
	ModeHSV Mode = iota
	ModeRGB
)

func (m Mode) String() string {
	switch m {
	case ModeHSV:
		return "hsv"
	case ModeRGB:
		return "rgb"
	default:
		return "unknown"
	}
}

// ParseMode returns ModeHSV for "hsv" and ModeRGB for anything else.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "hsv") {
		return ModeHSV
	}
	return ModeRGB
}

// ImageOption configures a channel added with AddImage.
type ImageOption func(*imageOptions)

type imageOptions struct {
	brightness   float64
	contrast     float64
	autocontrast bool
}

// WithBrightness sets the brightness (0-255, default 127).
func WithBrightness(b float64) ImageOption {
	return func(o *imageOptions) { o.brightness = b }
}

// WithContrast sets the contrast (0-255, default 127).
func WithContrast(c float64) ImageOption {
	return func(o *imageOptions) { o.contrast = c }
}

// WithAutocontrast enables or disables rescaling of the 1st-99th
// percentile range to [0, 1] (default enabled).
func WithAutocontrast(on bool) ImageOption {
	return func(o *imageOptions) { o.autocontrast = on }
}

// WarningListener receives non-fatal conditions such as blending without
// images.
type WarningListener func(err error)

// FlBlend holds an ordered list of channel images of equal shape.
// It is not safe for concurrent use.
type FlBlend struct {
	images    []*FlImage
	listeners []WarningListener
}

// New creates an empty blend.
func New() *FlBlend {
	return &FlBlend{}
}

// OnWarning registers a listener for non-fatal conditions.
func (b *FlBlend) OnWarning(fn WarningListener) {
	b.listeners = append(b.listeners, fn)
}

// Len returns the number of channel images.
func (b *FlBlend) Len() int { return len(b.images) }

// Images returns the channel images in insertion order.
func (b *FlBlend) Images() []*FlImage {
	out := make([]*FlImage, len(b.images))
	copy(out, b.images)
	return out
}

// Shape returns the shape of the channel images; ok is false while the
// blend is empty.
func (b *FlBlend) Shape() (rows, cols int, ok bool) {
	if len(b.images) == 0 {
		return 0, 0, false
	}
	rows, cols = b.images[0].Shape()
	return rows, cols, true
}

// AddImage adds a channel. img holds values in [0, 1] (NaN for missing
// data); hue is anything ResolveHue accepts.
func (b *FlBlend) AddImage(img mat.Matrix, hue any, opts ...ImageOption) error {
	o := imageOptions{
		brightness:   DefaultBrightness,
		contrast:     DefaultContrast,
		autocontrast: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	h, err := ResolveHue(hue)
	if err != nil {
		return err
	}

	rows, cols := img.Dims()
	if r0, c0, ok := b.Shape(); ok && (r0 != rows || c0 != cols) {
		return &errdefs.ShapeDimensionError{
			Shape:  []int{rows, cols},
			Reason: fmt.Sprintf("image shape differs from blend shape (%d, %d)", r0, c0),
		}
	}

	data := mat.DenseCopyOf(img)
	if o.autocontrast {
		autocontrast(data)
	}
	b.images = append(b.images, &FlImage{
		data:       data,
		hue:        h,
		contrast:   o.contrast,
		brightness: o.brightness,
	})
	return nil
}

// AddGray adds an 8-bit image, mapping 0-255 to [0, 1].
func (b *FlBlend) AddGray(img *image.Gray, hue any, opts ...ImageOption) error {
	bounds := img.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()
	data := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			data.Set(r, c, float64(img.GrayAt(bounds.Min.X+c, bounds.Min.Y+r).Y)/255)
		}
	}
	return b.AddImage(data, hue, opts...)
}

// AddArray adds a channel given as a flat row-major array with an
// explicit shape, which must be two-dimensional.
func (b *FlBlend) AddArray(shape []int, data []float64, hue any, opts ...ImageOption) error {
	if len(shape) != 2 {
		return &errdefs.ShapeDimensionError{Shape: shape, Reason: "image must be 2D"}
	}
	if shape[0] <= 0 || shape[1] <= 0 || shape[0]*shape[1] != len(data) {
		return &errdefs.ShapeDimensionError{
			Shape:  shape,
			Reason: fmt.Sprintf("shape does not match %d data values", len(data)),
		}
	}
	return b.AddImage(mat.NewDense(shape[0], shape[1], data), hue, opts...)
}

// Blend combines all channels. Without channels it reports
// errdefs.ErrNoImageData to the warning listeners and returns a 2x2
// black image. A single channel is returned as is.
func (b *FlBlend) Blend(mode Mode) *Image {
	switch len(b.images) {
	case 0:
		logging.L().Warn("no image data available for blending")
		for _, fn := range b.listeners {
			fn(errdefs.ErrNoImageData)
		}
		return NewImage(2, 2)
	case 1:
		return b.images[0].RGB()
	}

	logging.L().Debug("blending channels",
		zap.Int("images", len(b.images)),
		zap.Stringer("mode", mode))
	if mode == ModeHSV {
		return b.blendHSV()
	}
	return b.blendRGB()
}

// blendRGB averages the RGB values of all images whose red channel is
// not NaN at a pixel. Pixels missing in every image are NaN.
func (b *FlBlend) blendRGB() *Image {
	rows, cols, _ := b.Shape()
	out := NewImage(rows, cols)

	rgbs := make([]*Image, len(b.images))
	for i, fi := range b.images {
		rgbs[i] = fi.RGB()
	}

	for p := 0; p < rows*cols; p++ {
		var sum [3]float64
		n := 0
		for _, im := range rgbs {
			if math.IsNaN(im.Pix[3*p]) {
				continue
			}
			n++
			for k := 0; k < 3; k++ {
				sum[k] += im.Pix[3*p+k]
			}
		}
		for k := 0; k < 3; k++ {
			out.Pix[3*p+k] = sum[k] / float64(n)
		}
	}
	return out
}

// blendHSV averages hue angles weighted by value.
//
// Hue is the angle of the mean (cos, sin) hue vector scaled by |V|.
// Saturation is 1 minus the summed value normalized by its global
// maximum. Value is the mean value.
func (b *FlBlend) blendHSV() *Image {
	rows, cols, _ := b.Shape()
	n := len(b.images)

	sv := make([][]float64, n)
	v := make([][]float64, n)
	xh := make([][]float64, n)
	yh := make([][]float64, n)
	for i, fi := range b.images {
		hsv := fi.HSV()
		h := hsv.Channel(0)
		s := hsv.Channel(1)
		v[i] = hsv.Channel(2)
		sv[i] = make([]float64, len(h))
		xh[i] = make([]float64, len(h))
		yh[i] = make([]float64, len(h))
		for p := range h {
			sv[i][p] = s[p] * v[i][p]
			xh[i][p] = math.Cos(h[p]*2*math.Pi) * math.Abs(v[i][p])
			yh[i][p] = math.Sin(h[p]*2*math.Pi) * math.Abs(v[i][p])
		}
	}

	meanX := nanops.Mean(xh)
	meanY := nanops.Mean(yh)
	meanV := nanops.Mean(v)
	sumV := nanops.Sum(v)
	sat := nanops.Sum(sv)
	for p := range sat {
		if sumV[p] != 0 {
			sat[p] = sumV[p]
		}
	}
	maxSat := nanops.Max(sat)
	for p := range sat {
		sat[p] /= maxSat
	}

	out := NewImage(rows, cols)
	for p := 0; p < rows*cols; p++ {
		hue := math.Mod(math.Atan2(meanY[p], meanX[p])/2/math.Pi, 1)
		if hue < 0 {
			hue++
		}
		r, g, bl := colorutil.HSVToRGB(hue, 1-sat[p], meanV[p])
		out.Pix[3*p], out.Pix[3*p+1], out.Pix[3*p+2] = r, g, bl
	}
	return out
}
