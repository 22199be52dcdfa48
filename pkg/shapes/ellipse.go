package shapes

import (
	"fmt"
	"math"

	"impose/pkg/geometry"
	"impose/pkg/mask"
)

// Ellipse is an ellipse with centre (X, Y), semi-axes A (along the local
// x axis) and B, rotated by Phi radians.
type Ellipse struct {
	X, Y    float64
	A, B    float64
	Phi     float64
	PointUM float64
}

// NewEllipse creates an ellipse. Phi is wrapped into [0, 2π).
func NewEllipse(x, y, a, b, phi, pointUM float64) *Ellipse {
	return &Ellipse{X: x, Y: y, A: a, B: b, Phi: geometry.WrapAngle(phi), PointUM: pointUM}
}

// DefaultEllipse returns the ellipse used for new annotations.
func DefaultEllipse() *Ellipse {
	return NewEllipse(43, 12, 25, 15, 0, 1)
}

func (e *Ellipse) Kind() Kind { return KindEllipse }
func (e *Ellipse) Center() geometry.Point2D { return geometry.Point2D{X: e.X, Y: e.Y} }
func (e *Ellipse) PointSize() float64 { return e.PointUM }
func (e *Ellipse) sealed() {}

func (e *Ellipse) Translate(dx, dy float64) {
	e.X += dx
	e.Y += dy
}

func (e *Ellipse) Rotate(dphi float64, origin *geometry.Point2D) {
	e.Phi = geometry.WrapAngle(e.Phi + dphi)
	e.X, e.Y = rotateCenter(e.X, e.Y, dphi, origin)
}

func (e *Ellipse) SetScale(pointUM float64) {
	fact := pointUM / e.PointUM
	e.X /= fact
	e.Y /= fact
	e.A /= fact
	e.B /= fact
	e.PointUM = pointUM
}

// SetSize treats the size as the diameter along the longer axis.
func (e *Ellipse) SetSize(sizeUM float64) {
	cur := 2 * math.Max(e.A, e.B) * e.PointUM
	if cur == 0 {
		return
	}
	fact := sizeUM / cur
	e.A *= fact
	e.B *= fact
}

func (e *Ellipse) ToMask(rows, cols int, scaleX, scaleY float64) *mask.Mask {
	return mask.Ellipse(e.X, e.Y, e.A, e.B, e.Phi, rows, cols, scaleX, scaleY)
}

// PointSignature returns the centre and the ends of both semi-axes.
func (e *Ellipse) PointSignature() []geometry.Point2D {
	return ellipseSignature(e.X, e.Y, e.A, e.B, e.Phi, e.PointUM)
}

func (e *Ellipse) Copy() Shape {
	c := *e
	return &c
}

func (e *Ellipse) String() string {
	pum := e.PointUM
	return fmt.Sprintf("Ellipse x=%.3gµm, y=%.3gµm, a=%.3gµm, b=%.3gµm, phi=%.3grad",
		e.X*pum, e.Y*pum, e.A*pum, e.B*pum, e.Phi)
}

// Circle is an ellipse with equal semi-axes. Phi has no effect on the
// mask but is part of the point signature.
type Circle struct {
	X, Y    float64
	R       float64
	Phi     float64
	PointUM float64
}

// NewCircle creates a circle. Phi is wrapped into [0, 2π).
func NewCircle(x, y, r, phi, pointUM float64) *Circle {
	return &Circle{X: x, Y: y, R: r, Phi: geometry.WrapAngle(phi), PointUM: pointUM}
}

// DefaultCircle returns the circle used for new annotations.
func DefaultCircle() *Circle {
	return NewCircle(33, 10, 23, 0, 1)
}

// A returns the first semi-axis, which is always R.
func (c *Circle) A() float64 { return c.R }

// B returns the second semi-axis, which is always R.
func (c *Circle) B() float64 { return c.R }

func (c *Circle) Kind() Kind { return KindCircle }
func (c *Circle) Center() geometry.Point2D { return geometry.Point2D{X: c.X, Y: c.Y} }
func (c *Circle) PointSize() float64 { return c.PointUM }
func (c *Circle) sealed() {}

func (c *Circle) Translate(dx, dy float64) {
	c.X += dx
	c.Y += dy
}

func (c *Circle) Rotate(dphi float64, origin *geometry.Point2D) {
	c.Phi = geometry.WrapAngle(c.Phi + dphi)
	c.X, c.Y = rotateCenter(c.X, c.Y, dphi, origin)
}

func (c *Circle) SetScale(pointUM float64) {
	fact := pointUM / c.PointUM
	c.X /= fact
	c.Y /= fact
	c.R /= fact
	c.PointUM = pointUM
}

// SetSize sets the diameter.
func (c *Circle) SetSize(sizeUM float64) {
	cur := 2 * c.R * c.PointUM
	if cur == 0 {
		return
	}
	c.R *= sizeUM / cur
}

func (c *Circle) ToMask(rows, cols int, scaleX, scaleY float64) *mask.Mask {
	return mask.Ellipse(c.X, c.Y, c.R, c.R, c.Phi, rows, cols, scaleX, scaleY)
}

func (c *Circle) PointSignature() []geometry.Point2D {
	return ellipseSignature(c.X, c.Y, c.R, c.R, c.Phi, c.PointUM)
}

func (c *Circle) Copy() Shape {
	cp := *c
	return &cp
}

func (c *Circle) String() string {
	pum := c.PointUM
	return fmt.Sprintf("Circle x=%.3gµm, y=%.3gµm, r=%.3gµm", c.X*pum, c.Y*pum, c.R*pum)
}

func ellipseSignature(x, y, a, b, phi, pointUM float64) []geometry.Point2D {
	local := []geometry.Point2D{{X: 0, Y: 0}, {X: a, Y: 0}, {X: 0, Y: b}}
	return rotatedSignature(local, geometry.Point2D{X: x, Y: y}, phi, pointUM)
}
