package shapes

import (
	"fmt"
	"math"

	"impose/pkg/geometry"
	"impose/pkg/mask"
)

// Rectangle is a box of width A and height B centred at (X, Y) and
// rotated by Phi radians.
type Rectangle struct {
	X, Y    float64
	A, B    float64
	Phi     float64
	PointUM float64
}

// NewRectangle creates a rectangle. Phi is wrapped into [0, 2π).
func NewRectangle(x, y, a, b, phi, pointUM float64) *Rectangle {
	return &Rectangle{X: x, Y: y, A: a, B: b, Phi: geometry.WrapAngle(phi), PointUM: pointUM}
}

// DefaultRectangle returns the rectangle used for new annotations.
func DefaultRectangle() *Rectangle {
	return NewRectangle(40, 30, 33, 22, 0, 1)
}

func (r *Rectangle) Kind() Kind { return KindRectangle }
func (r *Rectangle) Center() geometry.Point2D { return geometry.Point2D{X: r.X, Y: r.Y} }
func (r *Rectangle) PointSize() float64 { return r.PointUM }
func (r *Rectangle) sealed() {}

func (r *Rectangle) Translate(dx, dy float64) {
	r.X += dx
	r.Y += dy
}

func (r *Rectangle) Rotate(dphi float64, origin *geometry.Point2D) {
	r.Phi = geometry.WrapAngle(r.Phi + dphi)
	r.X, r.Y = rotateCenter(r.X, r.Y, dphi, origin)
}

func (r *Rectangle) SetScale(pointUM float64) {
	fact := pointUM / r.PointUM
	r.X /= fact
	r.Y /= fact
	r.A /= fact
	r.B /= fact
	r.PointUM = pointUM
}

// SetSize sets the length of the longer side.
func (r *Rectangle) SetSize(sizeUM float64) {
	cur := math.Max(r.A, r.B) * r.PointUM
	if cur == 0 {
		return
	}
	fact := sizeUM / cur
	r.A *= fact
	r.B *= fact
}

func (r *Rectangle) ToMask(rows, cols int, scaleX, scaleY float64) *mask.Mask {
	return mask.Rectangle(r.X, r.Y, r.A, r.B, r.Phi, rows, cols, scaleX, scaleY)
}

// PointSignature returns three of the four corners. The missing corner
// is implied by the other three.
func (r *Rectangle) PointSignature() []geometry.Point2D {
	local := []geometry.Point2D{
		{X: r.A / 2, Y: r.B / 2},
		{X: -r.A / 2, Y: r.B / 2},
		{X: r.A / 2, Y: -r.B / 2},
	}
	return rotatedSignature(local, r.Center(), r.Phi, r.PointUM)
}

// Corners returns all four corners in point units, counterclockwise
// starting at the (+a/2, +b/2) corner before rotation.
func (r *Rectangle) Corners() []geometry.Point2D {
	local := []geometry.Point2D{
		{X: r.A / 2, Y: r.B / 2},
		{X: -r.A / 2, Y: r.B / 2},
		{X: -r.A / 2, Y: -r.B / 2},
		{X: r.A / 2, Y: -r.B / 2},
	}
	return rotatedSignature(local, r.Center(), r.Phi, 1)
}

func (r *Rectangle) Copy() Shape {
	c := *r
	return &c
}

func (r *Rectangle) String() string {
	pum := r.PointUM
	return fmt.Sprintf("Rectangle x=%.3gµm, y=%.3gµm, a=%.3gµm, b=%.3gµm, phi=%.3grad",
		r.X*pum, r.Y*pum, r.A*pum, r.B*pum, r.Phi)
}
