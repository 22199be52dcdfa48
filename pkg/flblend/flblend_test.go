package flblend

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"impose/pkg/errdefs"
)

// linspace returns a rows x cols matrix filled row-major with evenly
// spaced values from lo to hi.
func linspace(rows, cols int, lo, hi float64) *mat.Dense {
	data := floats.Span(make([]float64, rows*cols), lo, hi)
	return mat.NewDense(rows, cols, data)
}

func reversed(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	n := rows * cols
	for i := 0; i < n; i++ {
		j := n - 1 - i
		out.Set(i/cols, i%cols, m.At(j/cols, j%cols))
	}
	return out
}

func nanImage(rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = math.NaN()
	}
	return mat.NewDense(rows, cols, data)
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestShape(t *testing.T) {
	fb := New()
	if _, _, ok := fb.Shape(); ok {
		t.Error("empty blend must not report a shape")
	}
	if err := fb.AddImage(linspace(10, 100, 0, 1), 150); err != nil {
		t.Fatalf("AddImage() error = %v", err)
	}
	rows, cols, ok := fb.Shape()
	if !ok || rows != 10 || cols != 100 {
		t.Errorf("Shape() = (%d, %d, %v), want (10, 100, true)", rows, cols, ok)
	}
}

func TestBlendNoImageData(t *testing.T) {
	fb := New()
	var got []error
	fb.OnWarning(func(err error) { got = append(got, err) })

	img := fb.Blend(ModeHSV)
	if img.Rows != 2 || img.Cols != 2 {
		t.Errorf("Blend() shape = (%d, %d), want (2, 2)", img.Rows, img.Cols)
	}
	for _, v := range img.Pix {
		if v != 0 {
			t.Fatalf("Blend() placeholder must be zero, got %v", img.Pix)
		}
	}
	if len(got) != 1 || !errors.Is(got[0], errdefs.ErrNoImageData) {
		t.Errorf("warnings = %v, want [ErrNoImageData]", got)
	}
}

func TestBlendSingleImage(t *testing.T) {
	fb := New()
	if err := fb.AddImage(linspace(10, 10, .1, .9), 40, WithAutocontrast(false), WithBrightness(100)); err != nil {
		t.Fatal(err)
	}
	for _, mode := range []Mode{ModeHSV, ModeRGB} {
		if !fb.Blend(mode).Equal(fb.Images()[0].RGB()) {
			t.Errorf("Blend(%v) of one image must equal its RGB()", mode)
		}
	}
}

func twoChannelBlend(t *testing.T) *FlBlend {
	t.Helper()
	fb := New()
	im1 := linspace(10, 10, 0, 1)
	if err := fb.AddImage(im1, 0); err != nil {
		t.Fatal(err)
	}
	if err := fb.AddImage(reversed(im1), 256./3); err != nil {
		t.Fatal(err)
	}
	return fb
}

func TestBlendHSV(t *testing.T) {
	fb := twoChannelBlend(t)
	rgb := fb.Blend(ModeHSV)

	r, g, _ := rgb.At(0, 0)
	if !closeTo(r, .45) || !closeTo(g, .5) {
		t.Errorf("pixel (0, 0) = (%v, %v), want (0.45, 0.5)", r, g)
	}
	r, g, _ = rgb.At(9, 9)
	if !closeTo(r, .5) || !closeTo(g, .45) {
		t.Errorf("pixel (9, 9) = (%v, %v), want (0.5, 0.45)", r, g)
	}

	// missing data has no influence on the color
	if err := fb.AddImage(nanImage(10, 10), 0); err != nil {
		t.Fatal(err)
	}
	if !fb.Blend(ModeHSV).Equal(rgb) {
		t.Error("adding an all-NaN image changed the HSV blend")
	}
}

func TestBlendRGB(t *testing.T) {
	fb := twoChannelBlend(t)
	rgb := fb.Blend(ModeRGB)

	r, g, _ := rgb.At(0, 0)
	if r != 0 || g != .5 {
		t.Errorf("pixel (0, 0) = (%v, %v), want (0, 0.5)", r, g)
	}
	r, g, _ = rgb.At(9, 9)
	if r != .5 || g != 0 {
		t.Errorf("pixel (9, 9) = (%v, %v), want (0.5, 0)", r, g)
	}

	if err := fb.AddImage(nanImage(10, 10), 0); err != nil {
		t.Fatal(err)
	}
	if !fb.Blend(ModeRGB).Equal(rgb) {
		t.Error("adding an all-NaN image changed the RGB blend")
	}
}

func TestBlendRGBAllMissing(t *testing.T) {
	fb := New()
	for i := 0; i < 2; i++ {
		if err := fb.AddImage(nanImage(2, 3), 0); err != nil {
			t.Fatal(err)
		}
	}
	for _, v := range fb.Blend(ModeRGB).Pix {
		if !math.IsNaN(v) {
			t.Fatalf("pixels missing in every image must be NaN, got %v", v)
		}
	}
}

func TestFlImageHSV(t *testing.T) {
	fi := NewFlImage(linspace(10, 10, .1, .9), HueAngle(123), DefaultContrast, DefaultBrightness)
	hsv := fi.HSV()
	for i := 0; i < 100; i++ {
		h, s, v := hsv.Pix[3*i], hsv.Pix[3*i+1], hsv.Pix[3*i+2]
		if !closeTo(h, 123./255) {
			t.Fatalf("hue = %v, want %v", h, 123./255)
		}
		if s != 1 {
			t.Fatalf("saturation = %v, want 1", s)
		}
		if v == 1 {
			t.Fatal("value must follow the image data")
		}
	}

	fi = NewFlImage(mat.NewDense(1, 3, []float64{0, math.NaN(), 1}), HueAngle(123), DefaultContrast, DefaultBrightness)
	hsv = fi.HSV()
	want := []float64{0, 0, 0, math.NaN(), math.NaN(), math.NaN(), 123. / 255, 1, 1}
	if diff := cmp.Diff(want, hsv.Pix, cmpopts.EquateNaNs(), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("HSV() mismatch (-want +got):\n%s", diff)
	}
}

func TestFlImageRGBHue(t *testing.T) {
	tests := []struct {
		name    string
		hues    []any
		nonZero int
	}{
		{"red", []any{0, "#FF0000", []int{255, 0, 0}, [3]int{255, 0, 0}}, 0},
		{"green", []any{255. / 3, "#00FF00", []float64{0, 255, 0}, [3]float64{0, 255, 0}}, 1},
		{"blue", []any{255. * 2 / 3, "#0000FF", []any{0., 0., 255.}, [3]int{0, 0, 255}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, hue := range tt.hues {
				h, err := ResolveHue(hue)
				if err != nil {
					t.Fatalf("ResolveHue(%v) error = %v", hue, err)
				}
				rgb := NewFlImage(linspace(10, 10, .1, .9), h, DefaultContrast, DefaultBrightness).RGB()
				for k := 0; k < 3; k++ {
					ch := rgb.Channel(k)
					allZero := floats.Max(ch) == 0 && floats.Min(ch) == 0
					if k == tt.nonZero && allZero {
						t.Errorf("hue %v: channel %d must not be zero", hue, k)
					}
					if k != tt.nonZero && !allZero {
						t.Errorf("hue %v: channel %d must be zero", hue, k)
					}
				}
			}
		})
	}
}

func TestResolveHueEquivalence(t *testing.T) {
	want := Hue{1, 0, 0}
	for _, hue := range []any{0, 0.0, "#FF0000", "ff0000", []int{255, 0, 0}, [3]float64{128, 0, 0}, HueRGB(10, 0, 0)} {
		got, err := ResolveHue(hue)
		if err != nil {
			t.Fatalf("ResolveHue(%v) error = %v", hue, err)
		}
		if got != want {
			t.Errorf("ResolveHue(%v) = %v, want %v", hue, got, want)
		}
	}
}

func TestResolveHueInvalid(t *testing.T) {
	for _, hue := range []any{nil, true, "#GGHHII", []int{1, 2}, []any{"a", 1, 2}, math.NaN(), struct{}{}} {
		_, err := ResolveHue(hue)
		if !errors.Is(err, errdefs.ErrInvalidHue) {
			t.Errorf("ResolveHue(%v) error = %v, want ErrInvalidHue", hue, err)
		}
	}
}

func TestHueHex(t *testing.T) {
	h := HueAngle(0)
	if h.Hex() != "#ff0000" {
		t.Errorf("Hex() = %q, want #ff0000", h.Hex())
	}
	if h.RGB8() != [3]int{255, 0, 0} {
		t.Errorf("RGB8() = %v, want [255 0 0]", h.RGB8())
	}
}

func TestAddGrayMatchesFloat(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 10, 10))
	data := make([]float64, 100)
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i * 255 / 99)
		data[i] = float64(gray.Pix[i]) / 255
	}

	fb1, fb2 := New(), New()
	if err := fb1.AddGray(gray, 0, WithAutocontrast(false)); err != nil {
		t.Fatal(err)
	}
	if err := fb2.AddImage(mat.NewDense(10, 10, data), 0, WithAutocontrast(false)); err != nil {
		t.Fatal(err)
	}
	if !fb1.Blend(ModeRGB).Equal(fb2.Blend(ModeRGB)) {
		t.Error("AddGray() must match AddImage() of the image divided by 255")
	}
}

func TestAddArrayDimensions(t *testing.T) {
	fb := New()
	tests := []struct {
		name  string
		shape []int
		n     int
	}{
		{"3D", []int{2, 2, 2}, 8},
		{"1D", []int{4}, 4},
		{"size mismatch", []int{2, 3}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fb.AddArray(tt.shape, make([]float64, tt.n), 0)
			var sde *errdefs.ShapeDimensionError
			if !errors.As(err, &sde) {
				t.Errorf("AddArray() error = %v, want ShapeDimensionError", err)
			}
		})
	}
	if err := fb.AddArray([]int{2, 3}, make([]float64, 6), 0); err != nil {
		t.Errorf("AddArray() 2D error = %v", err)
	}
	if err := fb.AddArray([]int{3, 2}, make([]float64, 6), 0); !errors.Is(err, errdefs.ErrShapeDimension) {
		t.Errorf("AddArray() with different shape error = %v, want ErrShapeDimension", err)
	}
	if err := fb.AddImage(mat.NewDense(2, 3, nil), "bogus"); !errors.Is(err, errdefs.ErrInvalidHue) {
		t.Errorf("AddImage() with invalid hue error = %v, want ErrInvalidHue", err)
	}
	if fb.Len() != 1 {
		t.Errorf("Len() = %d, want 1", fb.Len())
	}
}

func TestAutocontrast(t *testing.T) {
	lo, hi, ok := contrastRange(linspace(10, 10, 0, 1).RawMatrix().Data)
	if !ok || lo != 0 || !closeTo(hi, .9) {
		t.Errorf("contrastRange() = (%v, %v, %v), want (0, 0.9, true)", lo, hi, ok)
	}

	if _, _, ok := contrastRange(nanImage(3, 3).RawMatrix().Data); ok {
		t.Error("contrastRange() of all-NaN data must not be ok")
	}

	m := mat.NewDense(1, 4, []float64{-1, .45, math.NaN(), 2})
	rescale(m, 0, .9)
	want := []float64{0, .5, math.NaN(), 1}
	if diff := cmp.Diff(want, m.RawMatrix().Data, cmpopts.EquateNaNs(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("rescale() mismatch (-want +got):\n%s", diff)
	}

	m = mat.NewDense(1, 3, []float64{3, 3, 3})
	autocontrast(m)
	for _, v := range m.RawMatrix().Data {
		if v < 0 || v > 1 {
			t.Errorf("autocontrast of a constant image = %v, want within [0, 1]", v)
		}
	}
}

func TestAutocontrastKeepsNaN(t *testing.T) {
	data := []float64{math.NaN(), .2, .4, .6, .8, math.NaN(), .3, .5, .7}
	fb := New()
	if err := fb.AddImage(mat.NewDense(3, 3, data), 0); err != nil {
		t.Fatal(err)
	}
	got := fb.Images()[0].Data()
	if !math.IsNaN(got.At(0, 0)) || !math.IsNaN(got.At(1, 2)) {
		t.Error("autocontrast must keep NaN")
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{"hsv": ModeHSV, "HSV": ModeHSV, "rgb": ModeRGB, "": ModeRGB, "anything": ModeRGB}
	for in, want := range tests {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestToNRGBA(t *testing.T) {
	im := NewImage(1, 2)
	im.Set(0, 0, 1, .5, 2)
	im.Set(0, 1, math.NaN(), 0, 0)
	out := im.ToNRGBA()
	if c := out.NRGBAAt(0, 0); c.R != 255 || c.G != 128 || c.B != 255 || c.A != 255 {
		t.Errorf("pixel 0 = %v", c)
	}
	if c := out.NRGBAAt(1, 0); c.A != 0 {
		t.Errorf("NaN pixel alpha = %d, want 0", c.A)
	}
}
