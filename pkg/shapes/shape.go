// Package shapes implements the parametric 2D primitives used to annotate
// structures: circles, ellipses, polygons and rectangles.
//
// Shape coordinates are isotropic "points"; PointUM converts points to
// microns. Every shape can be moved, rotated, rescaled, rasterized into a
// mask and reduced to a small point signature for similarity tests.
package shapes

import (
	"impose/pkg/geometry"
	"impose/pkg/mask"
)

// Kind identifies a concrete shape type. The values double as the type
// tags of the persisted state format.
type Kind string

const (
	KindCircle    Kind = "Circle"
	KindEllipse   Kind = "Ellipse"
	KindPolygon   Kind = "Polygon"
	KindRectangle Kind = "Rectangle"
)

// Kinds lists all supported shape kinds.
var Kinds = []Kind{KindCircle, KindEllipse, KindPolygon, KindRectangle}

// Shape is implemented by *Circle, *Ellipse, *Polygon and *Rectangle only.
type Shape interface {
	// Kind returns the concrete shape kind.
	Kind() Kind
	// Center returns the reference point in point units. For polygons
	// this is the mean of the vertices.
	Center() geometry.Point2D
	// PointSize returns the size of one point in microns.
	PointSize() float64

	// Translate moves the shape by (dx, dy) points.
	Translate(dx, dy float64)
	// Rotate rotates the shape counterclockwise by dphi radians. A nil
	// origin rotates about the shape's own reference point.
	Rotate(dphi float64, origin *geometry.Point2D)
	// SetScale changes the point size, keeping the physical geometry.
	SetScale(pointUM float64)
	// SetSize resizes the shape so its largest extent equals sizeUM
	// microns. The centre does not move.
	SetSize(sizeUM float64)

	// ToMask rasterizes the shape onto a rows x cols grid.
	ToMask(rows, cols int, scaleX, scaleY float64) *mask.Mask
	// PointSignature returns a representative point cloud in microns.
	PointSignature() []geometry.Point2D

	// Copy returns a deep copy.
	Copy() Shape
	String() string

	sealed()
}

// Equal reports whether a and b are of the same kind and their point
// signatures agree within geometry.Tolerance. Signatures of different
// length are unequal.
func Equal(a, b Shape) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	return geometry.ApproxEqual(
		geometry.Flatten(a.PointSignature()),
		geometry.Flatten(b.PointSignature()),
		geometry.Tolerance,
	)
}

// rotatedSignature rotates local points by phi about the origin, shifts
// them to centre and converts them to microns.
func rotatedSignature(local []geometry.Point2D, center geometry.Point2D, phi, pointUM float64) []geometry.Point2D {
	pts := geometry.RotateAroundPoint(geometry.Point2D{}, local, phi)
	for i := range pts {
		pts[i] = pts[i].Add(center).Scale(pointUM)
	}
	return pts
}

// rotateCenter applies a rotation about origin to a centre point, leaving
// it untouched when origin is nil.
func rotateCenter(x, y, dphi float64, origin *geometry.Point2D) (float64, float64) {
	if origin == nil {
		return x, y
	}
	c := geometry.Point2D{X: x, Y: y}.Rotate(dphi, *origin)
	return c.X, c.Y
}
