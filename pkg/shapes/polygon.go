package shapes

import (
	"fmt"
	"strings"

	"impose/pkg/errdefs"
	"impose/pkg/geometry"
	"impose/pkg/mask"
)

// Polygon is an arbitrary closed polygon. Its reference point is the
// mean of its vertices.
type Polygon struct {
	Points  []geometry.Point2D
	PointUM float64
}

// NewPolygon creates a polygon from at least three vertices. The points
// are copied.
func NewPolygon(points []geometry.Point2D, pointUM float64) (*Polygon, error) {
	if len(points) < 3 {
		return nil, &errdefs.ShapeDimensionError{
			Shape:  []int{len(points), 2},
			Reason: "polygon needs at least 3 vertices",
		}
	}
	pts := make([]geometry.Point2D, len(points))
	copy(pts, points)
	return &Polygon{Points: pts, PointUM: pointUM}, nil
}

// DefaultPolygon returns the triangle used for new annotations.
func DefaultPolygon() *Polygon {
	p, _ := NewPolygon([]geometry.Point2D{{X: 20, Y: 20}, {X: 40, Y: 50}, {X: 80, Y: 10}}, 1)
	return p
}

func (p *Polygon) Kind() Kind { return KindPolygon }
func (p *Polygon) Center() geometry.Point2D { return geometry.Centroid(p.Points) }
func (p *Polygon) PointSize() float64 { return p.PointUM }
func (p *Polygon) sealed() {}

func (p *Polygon) Translate(dx, dy float64) {
	for i := range p.Points {
		p.Points[i].X += dx
		p.Points[i].Y += dy
	}
}

func (p *Polygon) Rotate(dphi float64, origin *geometry.Point2D) {
	o := p.Center()
	if origin != nil {
		o = *origin
	}
	geometry.RotateAroundPoint(o, p.Points, dphi)
}

func (p *Polygon) SetScale(pointUM float64) {
	fact := pointUM / p.PointUM
	for i := range p.Points {
		p.Points[i].X /= fact
		p.Points[i].Y /= fact
	}
	p.PointUM = pointUM
}

// SetSize scales the vertices about the centroid so that the largest
// vertex distance equals sizeUM.
func (p *Polygon) SetSize(sizeUM float64) {
	cur := geometry.MaxPairwiseDistance(p.Points) * p.PointUM
	if cur == 0 {
		return
	}
	fact := sizeUM / cur
	c := p.Center()
	for i, pt := range p.Points {
		p.Points[i] = pt.Sub(c).Scale(fact).Add(c)
	}
}

func (p *Polygon) ToMask(rows, cols int, scaleX, scaleY float64) *mask.Mask {
	return mask.Polygon(p.Points, rows, cols, scaleX, scaleY)
}

// PointSignature returns the vertices in microns.
func (p *Polygon) PointSignature() []geometry.Point2D {
	sig := make([]geometry.Point2D, len(p.Points))
	for i, pt := range p.Points {
		sig[i] = pt.Scale(p.PointUM)
	}
	return sig
}

func (p *Polygon) Copy() Shape {
	pts := make([]geometry.Point2D, len(p.Points))
	copy(pts, p.Points)
	return &Polygon{Points: pts, PointUM: p.PointUM}
}

// String lists one vertex per line in microns.
func (p *Polygon) String() string {
	var sb strings.Builder
	sb.WriteString("Polygon")
	for _, pt := range p.Points {
		fmt.Fprintf(&sb, "\n(%g, %g)µm", pt.X*p.PointUM, pt.Y*p.PointUM)
	}
	return sb.String()
}
