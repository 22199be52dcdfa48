package shapes

import (
	"encoding/json"
	"fmt"

	"impose/pkg/errdefs"
	"impose/pkg/geometry"
)

// CircleState is the persisted field set of a Circle.
type CircleState struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	R       float64 `json:"r"`
	Phi     float64 `json:"phi"`
	PointUM float64 `json:"point_um"`
}

// EllipseState is the persisted field set of an Ellipse or a Rectangle.
type EllipseState struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	A       float64 `json:"a"`
	B       float64 `json:"b"`
	Phi     float64 `json:"phi"`
	PointUM float64 `json:"point_um"`
}

// PolygonState is the persisted field set of a Polygon.
type PolygonState struct {
	Points  [][]float64 `json:"points"`
	PointUM float64     `json:"point_um"`
}

// State returns the kind tag and the persisted field set of s.
func State(s Shape) (Kind, any) {
	switch v := s.(type) {
	case *Circle:
		return KindCircle, CircleState{X: v.X, Y: v.Y, R: v.R, Phi: v.Phi, PointUM: v.PointUM}
	case *Ellipse:
		return KindEllipse, EllipseState{X: v.X, Y: v.Y, A: v.A, B: v.B, Phi: v.Phi, PointUM: v.PointUM}
	case *Rectangle:
		return KindRectangle, EllipseState{X: v.X, Y: v.Y, A: v.A, B: v.B, Phi: v.Phi, PointUM: v.PointUM}
	case *Polygon:
		pts := make([][]float64, len(v.Points))
		for i, p := range v.Points {
			pts[i] = []float64{p.X, p.Y}
		}
		return KindPolygon, PolygonState{Points: pts, PointUM: v.PointUM}
	default:
		panic(fmt.Sprintf("shapes: unexpected shape type %T", s))
	}
}

// MarshalState encodes the field set of s as JSON.
func MarshalState(s Shape) (Kind, json.RawMessage, error) {
	kind, st := State(s)
	raw, err := json.Marshal(st)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s state: %w", kind, err)
	}
	return kind, raw, nil
}

// Decode restores a shape from its kind tag and JSON field set. Fields
// missing from raw keep the defaults of the kind.
func Decode(kind Kind, raw json.RawMessage) (Shape, error) {
	switch kind {
	case KindCircle:
		d := DefaultCircle()
		st := CircleState{X: d.X, Y: d.Y, R: d.R, Phi: d.Phi, PointUM: d.PointUM}
		if err := unmarshal(kind, raw, &st); err != nil {
			return nil, err
		}
		if err := checkPointUM(kind, st.PointUM); err != nil {
			return nil, err
		}
		return NewCircle(st.X, st.Y, st.R, st.Phi, st.PointUM), nil

	case KindEllipse, KindRectangle:
		var st EllipseState
		if kind == KindEllipse {
			d := DefaultEllipse()
			st = EllipseState{X: d.X, Y: d.Y, A: d.A, B: d.B, Phi: d.Phi, PointUM: d.PointUM}
		} else {
			d := DefaultRectangle()
			st = EllipseState{X: d.X, Y: d.Y, A: d.A, B: d.B, Phi: d.Phi, PointUM: d.PointUM}
		}
		if err := unmarshal(kind, raw, &st); err != nil {
			return nil, err
		}
		if err := checkPointUM(kind, st.PointUM); err != nil {
			return nil, err
		}
		if kind == KindEllipse {
			return NewEllipse(st.X, st.Y, st.A, st.B, st.Phi, st.PointUM), nil
		}
		return NewRectangle(st.X, st.Y, st.A, st.B, st.Phi, st.PointUM), nil

	case KindPolygon:
		d := DefaultPolygon()
		st := PolygonState{PointUM: d.PointUM}
		if err := unmarshal(kind, raw, &st); err != nil {
			return nil, err
		}
		if err := checkPointUM(kind, st.PointUM); err != nil {
			return nil, err
		}
		if st.Points == nil {
			return &Polygon{Points: d.Points, PointUM: st.PointUM}, nil
		}
		pts, err := PointsFromSlices(st.Points)
		if err != nil {
			return nil, err
		}
		return NewPolygon(pts, st.PointUM)

	default:
		return nil, &errdefs.UnsupportedShapeError{Kind: string(kind)}
	}
}

// PointsFromSlices converts an N x 2 coordinate list into points.
func PointsFromSlices(coords [][]float64) ([]geometry.Point2D, error) {
	pts := make([]geometry.Point2D, len(coords))
	for i, c := range coords {
		if len(c) != 2 {
			return nil, &errdefs.ShapeDimensionError{
				Shape:  []int{len(coords), len(c)},
				Reason: fmt.Sprintf("polygon vertex %d must have 2 coordinates", i),
			}
		}
		pts[i] = geometry.Point2D{X: c[0], Y: c[1]}
	}
	if len(pts) < 3 {
		return nil, &errdefs.ShapeDimensionError{
			Shape:  []int{len(coords), 2},
			Reason: "polygon needs at least 3 vertices",
		}
	}
	return pts, nil
}

func unmarshal(kind Kind, raw json.RawMessage, st any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, st); err != nil {
		return fmt.Errorf("failed to decode %s state: %w", kind, err)
	}
	return nil
}

func checkPointUM(kind Kind, pointUM float64) error {
	if pointUM <= 0 {
		return fmt.Errorf("invalid %s state: point_um must be positive, got %g", kind, pointUM)
	}
	return nil
}
