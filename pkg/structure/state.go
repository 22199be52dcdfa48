package structure

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/samber/lo"

	"impose/pkg/shapes"
)

// GeometryState is the persisted form of a weighted shape. It encodes as
// the JSON array [kind, fields, weight].
type GeometryState struct {
	Kind   shapes.Kind
	Fields any
	Weight int
}

func (g GeometryState) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{g.Kind, g.Fields, g.Weight})
}

func (g *GeometryState) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 3 {
		return fmt.Errorf("geometry entry needs [kind, fields, weight], got %d elements", len(parts))
	}
	var kind shapes.Kind
	if err := json.Unmarshal(parts[0], &kind); err != nil {
		return fmt.Errorf("geometry kind: %w", err)
	}
	s, err := shapes.Decode(kind, parts[1])
	if err != nil {
		return err
	}
	var weight int
	if err := json.Unmarshal(parts[2], &weight); err != nil {
		return fmt.Errorf("geometry weight: %w", err)
	}
	_, fields := shapes.State(s)
	*g = GeometryState{Kind: kind, Fields: fields, Weight: weight}
	return nil
}

func (g GeometryState) shape() (shapes.Shape, error) {
	raw, err := json.Marshal(g.Fields)
	if err != nil {
		return nil, err
	}
	return shapes.Decode(g.Kind, raw)
}

// LayerState is the persisted form of a Layer.
type LayerState struct {
	Label    string          `json:"label"`
	PointUM  float64         `json:"point_um"`
	Geometry []GeometryState `json:"geometry"`
	Color    [3]int          `json:"color"`
}

// CompositeState is the persisted form of a Composite.
type CompositeState struct {
	Layers []LayerState `json:"layers"`
}

// StackState is the persisted form of a Stack.
type StackState struct {
	Composites []CompositeState `json:"composites"`
}

// State returns the persisted form of the layer.
func (l *Layer) State() LayerState {
	return LayerState{
		Label:   l.label,
		PointUM: l.pointUM,
		Geometry: lo.Map(l.geometry, func(g WeightedShape, _ int) GeometryState {
			kind, fields := shapes.State(g.Shape)
			return GeometryState{Kind: kind, Fields: fields, Weight: g.Weight}
		}),
		Color: l.Color,
	}
}

// LayerFromState restores a layer.
func LayerFromState(st LayerState) (*Layer, error) {
	geom := make([]WeightedShape, len(st.Geometry))
	for i, g := range st.Geometry {
		s, err := g.shape()
		if err != nil {
			return nil, fmt.Errorf("layer %q, shape %d: %w", st.Label, i, err)
		}
		geom[i] = WeightedShape{Shape: s, Weight: g.Weight}
	}
	return NewLayer(st.Label, st.PointUM, geom, st.Color)
}

// State returns the persisted form of the composite.
func (c *Composite) State() CompositeState {
	return CompositeState{
		Layers: lo.Map(c.layers, func(l *Layer, _ int) LayerState { return l.State() }),
	}
}

// SetState replaces all layers with the ones in st. On error the
// composite is left unchanged.
func (c *Composite) SetState(st CompositeState) error {
	tmp := NewComposite()
	for _, ls := range st.Layers {
		l, err := LayerFromState(ls)
		if err != nil {
			return err
		}
		if err := tmp.Append(l); err != nil {
			return err
		}
	}
	for _, l := range c.layers {
		l.owner = nil
	}
	c.layers = tmp.layers
	for _, l := range c.layers {
		l.owner = c
	}
	c.Emit(EventGeometryChanged, "")
	return nil
}

func (c *Composite) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.State())
}

func (c *Composite) UnmarshalJSON(data []byte) error {
	var st CompositeState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	return c.SetState(st)
}

// State returns the persisted form of the stack.
func (s *Stack) State() StackState {
	return StackState{
		Composites: lo.Map(s.composites, func(c *Composite, _ int) CompositeState { return c.State() }),
	}
}

// SetState replaces all composites with the ones in st.
func (s *Stack) SetState(st StackState) error {
	out := make([]*Composite, len(st.Composites))
	for i, cs := range st.Composites {
		c := NewComposite()
		if err := c.SetState(cs); err != nil {
			return fmt.Errorf("composite %d: %w", i, err)
		}
		out[i] = c
	}
	s.composites = out
	return nil
}

func (s *Stack) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.State())
}

func (s *Stack) UnmarshalJSON(data []byte) error {
	var st StackState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	return s.SetState(st)
}

// statesEqual compares persisted states. NaN equals NaN.
func statesEqual(a, b any) bool {
	return cmp.Equal(a, b, cmpopts.EquateNaNs(), cmpopts.EquateEmpty())
}
