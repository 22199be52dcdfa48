package structure

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"impose/pkg/errdefs"
	"impose/pkg/geometry"
)

// Composite is an ordered collection of layers with unique labels and a
// common point size. It is not safe for concurrent use.
type Composite struct {
	layers    []*Layer
	listeners map[EventType][]EventListener
}

// NewComposite creates an empty composite.
func NewComposite() *Composite {
	return &Composite{listeners: make(map[EventType][]EventListener)}
}

// CompositeOf creates a composite holding the given layers.
func CompositeOf(layers ...*Layer) (*Composite, error) {
	c := NewComposite()
	for _, l := range layers {
		if err := c.Append(l); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// On registers a listener for an event type.
func (c *Composite) On(event EventType, listener EventListener) {
	if c.listeners == nil {
		c.listeners = make(map[EventType][]EventListener)
	}
	c.listeners[event] = append(c.listeners[event], listener)
}

// Emit calls all listeners registered for an event type.
func (c *Composite) Emit(event EventType, data interface{}) {
	for _, listener := range c.listeners[event] {
		listener(data)
	}
}

// Len returns the number of layers.
func (c *Composite) Len() int { return len(c.layers) }

// Layers returns the layers in order. The layers are shared.
func (c *Composite) Layers() []*Layer {
	out := make([]*Layer, len(c.layers))
	copy(out, c.layers)
	return out
}

// At returns the i-th layer.
func (c *Composite) At(i int) *Layer { return c.layers[i] }

// Labels returns the layer labels in order.
func (c *Composite) Labels() []string {
	return lo.Map(c.layers, func(l *Layer, _ int) string { return l.label })
}

// Index returns the position of the layer with the given label.
func (c *Composite) Index(label string) (int, error) {
	_, i, ok := lo.FindIndexOf(c.layers, func(l *Layer) bool { return l.label == label })
	if !ok {
		return -1, fmt.Errorf("%w: %q", errdefs.ErrLayerNotFound, label)
	}
	return i, nil
}

// Contains reports whether a layer with the given label exists.
func (c *Composite) Contains(label string) bool {
	return lo.ContainsBy(c.layers, func(l *Layer) bool { return l.label == label })
}

// Layer returns the layer with the given label.
func (c *Composite) Layer(label string) (*Layer, error) {
	i, err := c.Index(label)
	if err != nil {
		return nil, err
	}
	return c.layers[i], nil
}

// PointUM returns the common point size; ok is false while the composite
// is empty.
func (c *Composite) PointUM() (pointUM float64, ok bool) {
	if len(c.layers) == 0 {
		return 0, false
	}
	return c.layers[0].pointUM, true
}

// Append adds a layer. Its label must be new and its point size must
// match the first layer's.
func (c *Composite) Append(l *Layer) error {
	if l.owner != nil && l.owner != c {
		return fmt.Errorf("layer %q already belongs to another composite", l.label)
	}
	if pum, ok := c.PointUM(); ok && l.pointUM != pum {
		return &errdefs.ScaleMismatchError{Want: pum, Got: l.pointUM}
	}
	if c.Contains(l.label) {
		return &errdefs.LabelCollisionError{Label: l.label}
	}
	l.owner = c
	c.layers = append(c.layers, l)
	c.Emit(EventLayerAdded, l)
	return nil
}

// Remove deletes the layer with the given label.
func (c *Composite) Remove(label string) error {
	i, err := c.Index(label)
	if err != nil {
		return err
	}
	c.layers[i].owner = nil
	c.layers = slices.Delete(c.layers, i, i+1)
	c.Emit(EventLayerRemoved, label)
	return nil
}

// ChangeLayerLabel renames a layer. If newLabel is taken, the call fails
// unless force is set. A forced rename keeps both layers and leaves the
// duplicate label for the caller to resolve.
func (c *Composite) ChangeLayerLabel(oldLabel, newLabel string, force bool) error {
	if oldLabel == newLabel {
		return nil
	}
	l, err := c.Layer(oldLabel)
	if err != nil {
		return err
	}
	if c.Contains(newLabel) {
		if !force {
			return &errdefs.LabelCollisionError{Label: newLabel}
		}
	}
	l.label = newLabel
	c.Emit(EventLayerRelabeled, LabelChange{Old: oldLabel, New: newLabel})
	return nil
}

// RelabelAt sets the label of the i-th layer without a collision check.
// Layers that already carry newLabel keep it.
func (c *Composite) RelabelAt(i int, newLabel string) {
	l := c.layers[i]
	if l.label == newLabel {
		return
	}
	old := l.label
	l.label = newLabel
	c.Emit(EventLayerRelabeled, LabelChange{Old: old, New: newLabel})
}

// Position returns the mean layer position in microns. It is NaN for an
// empty composite.
func (c *Composite) Position() geometry.Point2D {
	if len(c.layers) == 0 {
		return geometry.Point2D{X: math.NaN(), Y: math.NaN()}
	}
	return geometry.Centroid(lo.Map(c.layers, func(l *Layer, _ int) geometry.Point2D {
		return l.Position()
	}))
}

// Translate moves all layers by drUM microns.
func (c *Composite) Translate(drUM geometry.Point2D) {
	for _, l := range c.layers {
		l.translate(drUM)
	}
	c.Emit(EventGeometryChanged, "")
}

// Rotate rotates all layers counterclockwise by dphi about originUM. A
// nil origin rotates about the composite position.
func (c *Composite) Rotate(dphi float64, originUM *geometry.Point2D) {
	if len(c.layers) == 0 {
		return
	}
	if originUM == nil {
		p := c.Position()
		originUM = &p
	}
	for _, l := range c.layers {
		l.rotate(dphi, originUM)
	}
	c.Emit(EventGeometryChanged, "")
}

// SetScale changes the point size of all layers.
func (c *Composite) SetScale(pointUM float64) {
	for _, l := range c.layers {
		l.setScale(pointUM)
	}
	c.Emit(EventScaleChanged, pointUM)
}

// PointSignature returns one row (x, y, weight, shape index, layer index)
// per signature point, in microns and normalized for comparison: the
// first point is moved to the origin and the points are rotated so that
// their mean lies on the positive x axis.
func (c *Composite) PointSignature() (*mat.Dense, error) {
	var data []float64
	for li, l := range c.layers {
		sig := l.PointSignature()
		if sig == nil {
			continue
		}
		r, _ := sig.Dims()
		for i := 0; i < r; i++ {
			data = append(data, sig.At(i, 0), sig.At(i, 1), sig.At(i, 2), sig.At(i, 3), float64(li))
		}
	}
	if len(data) == 0 {
		return nil, errdefs.ErrEmptyGeometry
	}
	n := len(data) / 5
	pts := make([]geometry.Point2D, n)
	for i := range pts {
		pts[i] = geometry.Point2D{X: data[5*i] - data[0], Y: data[5*i+1] - data[1]}
	}
	mean := geometry.Centroid(pts)
	geometry.RotateAroundPoint(geometry.Point2D{}, pts, -math.Atan2(mean.Y, mean.X))
	for i, p := range pts {
		data[5*i], data[5*i+1] = p.X, p.Y
	}
	return mat.NewDense(n, 5, data), nil
}

// GeometryIdenticalTo reports whether both composites have the same
// geometry up to translation and rotation. Empty composites are never
// identical.
func (c *Composite) GeometryIdenticalTo(other *Composite) bool {
	if other == nil {
		return false
	}
	a, err := c.PointSignature()
	if err != nil {
		return false
	}
	b, err := other.PointSignature()
	if err != nil {
		return false
	}
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb || ca != cb {
		return false
	}
	return geometry.ApproxEqual(a.RawMatrix().Data, b.RawMatrix().Data, geometry.Tolerance)
}

// ExtractData applies every layer mask to ds. A nil channels list selects
// all channels.
func (c *Composite) ExtractData(ds DataSource, channels []string) ([]LayerData, error) {
	out := make([]LayerData, 0, len(c.layers))
	for _, l := range c.layers {
		data, err := l.ExtractData(ds, channels)
		if err != nil {
			return nil, err
		}
		out = append(out, LayerData{Label: l.label, Channels: data})
	}
	return out, nil
}

// Copy returns a deep copy without listeners.
func (c *Composite) Copy() *Composite {
	out := NewComposite()
	for _, l := range c.layers {
		cp := l.Copy()
		cp.owner = out
		out.layers = append(out.layers, cp)
	}
	return out
}

// Equal reports whether both composites have the same persisted state.
func (c *Composite) Equal(other *Composite) bool {
	if other == nil {
		return false
	}
	return statesEqual(c.State(), other.State())
}

func (c *Composite) String() string {
	var b strings.Builder
	b.WriteString("StructureComposite")
	for _, l := range c.layers {
		b.WriteString("\n  ")
		b.WriteString(l.String())
	}
	return b.String()
}
