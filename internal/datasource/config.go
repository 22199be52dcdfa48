package datasource

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"impose/pkg/flblend"
)

// DefaultChannelLevel is the initial brightness and contrast of a channel.
const DefaultChannelLevel = 128

// StackConfig describes the full data stack. Shape is shared by all
// channels; 2D channels have a trailing axis of length 1. Pixel sizes are
// NaN when unknown.
type StackConfig struct {
	Shape      [3]int `json:"shape"`
	PixelSizeX Length `json:"pixel size x"`
	PixelSizeY Length `json:"pixel size y"`
	PixelSizeZ Length `json:"pixel size z"`
}

func (s StackConfig) sizes() [3]float64 {
	return [3]float64{float64(s.PixelSizeX), float64(s.PixelSizeY), float64(s.PixelSizeZ)}
}

// Length is a size in microns that may be unknown (NaN). NaN is encoded
// as JSON null.
type Length float64

func (l Length) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(l)) || math.IsInf(float64(l), 0) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(l))
}

func (l *Length) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Length(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*l = Length(f)
	return nil
}

func (s StackConfig) validate() error {
	for _, n := range s.Shape {
		if n <= 0 {
			return fmt.Errorf("invalid stack shape %v", s.Shape)
		}
	}
	for _, v := range s.sizes() {
		if !math.IsNaN(v) && (v <= 0 || math.IsInf(v, 0)) {
			return fmt.Errorf("pixel sizes must be positive or unknown, got %v", s.sizes())
		}
	}
	return nil
}

// validateView checks that the pixel sizes of the viewed plane are known.
func validateView(st StackConfig, sl SliceConfig) error {
	sizes := st.sizes()
	for _, ax := range sl.ViewPlane {
		if math.IsNaN(sizes[ax]) {
			return fmt.Errorf("pixel size of view axis %d is unknown", ax)
		}
	}
	return nil
}

// SliceConfig selects the 2D view through the stack: ViewPlane holds the
// axes spanning the image rows and columns, CutAxis is the orthogonal
// axis and ViewSlice the position along it.
type SliceConfig struct {
	ViewPlane [2]int `json:"view plane"`
	CutAxis   int    `json:"cut axis"`
	ViewSlice int    `json:"view slice"`
}

// defaultSlice views the plane orthogonal to the first axis of length 1,
// or the plane orthogonal to axis 0 in the middle of a true 3D stack.
func defaultSlice(shape [3]int) SliceConfig {
	cut := slices.Index(shape[:], 1)
	if cut < 0 {
		cut = 0
	}
	var plane []int
	for ax := 0; ax < 3; ax++ {
		if ax != cut {
			plane = append(plane, ax)
		}
	}
	return SliceConfig{
		ViewPlane: [2]int{plane[0], plane[1]},
		CutAxis:   cut,
		ViewSlice: shape[cut] / 2,
	}
}

func (s SliceConfig) validate(shape [3]int) error {
	axes := []int{s.ViewPlane[0], s.ViewPlane[1], s.CutAxis}
	for _, ax := range axes {
		if ax < 0 || ax > 2 {
			return fmt.Errorf("invalid axis %d", ax)
		}
	}
	slices.Sort(axes)
	if axes[0] != 0 || axes[1] != 1 || axes[2] != 2 {
		return fmt.Errorf("view plane %v and cut axis %d must cover all three axes", s.ViewPlane, s.CutAxis)
	}
	if s.ViewSlice < 0 || s.ViewSlice >= shape[s.CutAxis] {
		return fmt.Errorf("view slice %d out of range [0, %d)", s.ViewSlice, shape[s.CutAxis])
	}
	return nil
}

// BlendConfig selects the blended channels.
type BlendConfig struct {
	Mode     string   `json:"mode"`
	Channels []string `json:"channels"`
}

// ChannelConfig holds the display settings of one channel. Hue is
// anything flblend.ResolveHue accepts.
type ChannelConfig struct {
	Name       string  `json:"name"`
	Hue        any     `json:"hue"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
}

func (c ChannelConfig) validate() error {
	if _, err := flblend.ResolveHue(c.Hue); err != nil {
		return fmt.Errorf("channel %q: %w", c.Name, err)
	}
	return nil
}

// defaultHues spreads hue angles evenly over [0, 255). A single channel
// is yellow.
func defaultHues(n int) []float64 {
	if n == 1 {
		return []float64{55}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Floor(255 * float64(i) / float64(n))
	}
	return out
}

// Metadata is the complete visualization state of a source.
type Metadata struct {
	Blend     BlendConfig     `json:"blend"`
	Channels  []ChannelConfig `json:"channels"`
	Slice     SliceConfig     `json:"slice"`
	Signature string          `json:"signature"`
	Stack     StackConfig     `json:"stack"`
}
