package structure

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"impose/pkg/errdefs"
	"impose/pkg/geometry"
	"impose/pkg/mask"
	"impose/pkg/shapes"
)

// WeightedShape is one geometry entry of a layer. Weight is added to the
// layer mask accumulator wherever the shape covers a pixel.
type WeightedShape struct {
	Shape  shapes.Shape
	Weight int
}

// Layer is a labeled group of weighted shapes sharing one point size.
//
// The label can only be changed through the owning Composite, which
// rejects duplicates unless a rename is forced.
type Layer struct {
	label    string
	pointUM  float64
	geometry []WeightedShape

	// Color is the display color (0-255 per channel).
	Color [3]int

	owner *Composite
}

// NewLayer creates a layer. The geometry must not be empty and every
// shape must use pointUM as its point size.
func NewLayer(label string, pointUM float64, geometry []WeightedShape, color [3]int) (*Layer, error) {
	if pointUM <= 0 {
		return nil, fmt.Errorf("layer %q: point_um must be positive, got %g", label, pointUM)
	}
	if len(geometry) == 0 {
		return nil, fmt.Errorf("layer %q: %w", label, errdefs.ErrEmptyGeometry)
	}
	for _, g := range geometry {
		if err := checkShape(g.Shape, pointUM); err != nil {
			return nil, fmt.Errorf("layer %q: %w", label, err)
		}
	}
	return &Layer{
		label:    label,
		pointUM:  pointUM,
		geometry: slices.Clone(geometry),
		Color:    color,
	}, nil
}

func checkShape(s shapes.Shape, pointUM float64) error {
	if s == nil {
		return fmt.Errorf("nil shape")
	}
	if s.PointSize() != pointUM {
		return &errdefs.ScaleMismatchError{Want: pointUM, Got: s.PointSize()}
	}
	return nil
}

// Label returns the layer label.
func (l *Layer) Label() string { return l.label }

// PointUM returns the point size in microns.
func (l *Layer) PointUM() float64 { return l.pointUM }

// Len returns the number of shapes.
func (l *Layer) Len() int { return len(l.geometry) }

// Geometry returns the geometry entries. The shapes are shared with the
// layer.
func (l *Layer) Geometry() []WeightedShape {
	return slices.Clone(l.geometry)
}

// Shape returns the i-th shape and its weight.
func (l *Layer) Shape(i int) (shapes.Shape, int) {
	g := l.geometry[i]
	return g.Shape, g.Weight
}

// AppendShape adds a shape. Its point size must match the layer's.
func (l *Layer) AppendShape(s shapes.Shape, weight int) error {
	if err := checkShape(s, l.pointUM); err != nil {
		return fmt.Errorf("layer %q: %w", l.label, err)
	}
	l.geometry = append(l.geometry, WeightedShape{Shape: s, Weight: weight})
	l.changed()
	return nil
}

// RemoveShape removes the i-th shape. A layer that loses its last shape
// is dropped from its composite.
func (l *Layer) RemoveShape(i int) error {
	if i < 0 || i >= len(l.geometry) {
		return fmt.Errorf("layer %q: shape index %d out of range [0, %d)", l.label, i, len(l.geometry))
	}
	l.geometry = slices.Delete(l.geometry, i, i+1)
	if len(l.geometry) == 0 && l.owner != nil {
		return l.owner.Remove(l.label)
	}
	l.changed()
	return nil
}

// Position returns the mean of the shape centres in microns.
func (l *Layer) Position() geometry.Point2D {
	centers := lo.Map(l.geometry, func(g WeightedShape, _ int) geometry.Point2D {
		return g.Shape.Center()
	})
	return geometry.Centroid(centers).Scale(l.pointUM)
}

// Translate moves all shapes by drUM microns.
func (l *Layer) Translate(drUM geometry.Point2D) {
	l.translate(drUM)
	l.changed()
}

func (l *Layer) translate(drUM geometry.Point2D) {
	dr := drUM.Scale(1 / l.pointUM)
	for _, g := range l.geometry {
		g.Shape.Translate(dr.X, dr.Y)
	}
}

// Rotate rotates all shapes counterclockwise by dphi about originUM
// (microns). A nil origin rotates about the layer position.
func (l *Layer) Rotate(dphi float64, originUM *geometry.Point2D) {
	l.rotate(dphi, originUM)
	l.changed()
}

func (l *Layer) rotate(dphi float64, originUM *geometry.Point2D) {
	o := l.Position()
	if originUM != nil {
		o = *originUM
	}
	origin := o.Scale(1 / l.pointUM)
	for _, g := range l.geometry {
		g.Shape.Rotate(dphi, &origin)
	}
}

// SetScale changes the point size of the layer and all its shapes.
func (l *Layer) SetScale(pointUM float64) {
	l.setScale(pointUM)
	l.changed()
}

func (l *Layer) setScale(pointUM float64) {
	l.pointUM = pointUM
	for _, g := range l.geometry {
		g.Shape.SetScale(pointUM)
	}
}

// ToMask rasterizes the layer onto a rows x cols grid with the given
// pixel size. Shape coordinates use the x pixel size as unit, so the x
// axis is scaled by pixelSizeY/pixelSizeX. A pixel is set if the summed
// weights of the shapes covering it are positive.
func (l *Layer) ToMask(pixelSizeX, pixelSizeY float64, rows, cols int) *mask.Mask {
	acc := make([]int, rows*cols)
	scaleX := pixelSizeY / pixelSizeX
	for _, g := range l.geometry {
		m := g.Shape.ToMask(rows, cols, scaleX, 1)
		for i, v := range m.Data {
			if v {
				acc[i] += g.Weight
			}
		}
	}
	out := mask.New(rows, cols)
	for i, v := range acc {
		out.Data[i] = v > 0
	}
	return out
}

// ExtractData returns, per channel, the values inside the layer mask in
// row-major order. NaN values are kept. A nil channels list selects all
// channels.
func (l *Layer) ExtractData(ds DataSource, channels []string) (map[string][]float64, error) {
	if channels == nil {
		channels = slices.Sorted(slices.Values(ds.ChannelNames()))
	}
	rows, cols := ds.ImageShape()
	px, py := ds.PixelSize()
	idx := l.ToMask(px, py, rows, cols).Indices()

	out := make(map[string][]float64, len(channels))
	for _, ch := range channels {
		data, err := ds.ChannelData(ch)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", l.label, err)
		}
		if r, c := data.Dims(); r != rows || c != cols {
			return nil, &errdefs.ShapeDimensionError{
				Shape:  []int{r, c},
				Reason: fmt.Sprintf("channel %q does not match image shape (%d, %d)", ch, rows, cols),
			}
		}
		vals := make([]float64, len(idx))
		for i, k := range idx {
			vals[i] = data.At(k/cols, k%cols)
		}
		out[ch] = vals
	}
	return out, nil
}

// PointSignature returns one row (x, y, weight, shape index) per
// signature point of every shape.
func (l *Layer) PointSignature() *mat.Dense {
	var rows []float64
	for i, g := range l.geometry {
		for _, p := range g.Shape.PointSignature() {
			rows = append(rows, p.X, p.Y, float64(g.Weight), float64(i))
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return mat.NewDense(len(rows)/4, 4, rows)
}

// Copy returns a deep copy that does not belong to any composite.
func (l *Layer) Copy() *Layer {
	geom := lo.Map(l.geometry, func(g WeightedShape, _ int) WeightedShape {
		return WeightedShape{Shape: g.Shape.Copy(), Weight: g.Weight}
	})
	return &Layer{
		label:    l.label,
		pointUM:  l.pointUM,
		geometry: geom,
		Color:    l.Color,
	}
}

func (l *Layer) String() string {
	parts := lo.Map(l.geometry, func(g WeightedShape, _ int) string {
		return fmt.Sprintf("(%s, %d)", strings.ReplaceAll(g.Shape.String(), "\n", " "), g.Weight)
	})
	return fmt.Sprintf("StructureLayer: %s with [%s]", l.label, strings.Join(parts, ", "))
}

func (l *Layer) changed() {
	if l.owner != nil {
		l.owner.Emit(EventGeometryChanged, l.label)
	}
}
