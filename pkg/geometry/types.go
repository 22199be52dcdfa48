// Package geometry provides basic geometric types used throughout impose.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	return r2.Norm(r2.Sub(p.Vec(), other.Vec()))
}

// Add returns the sum of two points.
func (p Point2D) Add(other Point2D) Point2D {
	return Point2D{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Scale returns the point scaled by a factor.
func (p Point2D) Scale(factor float64) Point2D {
	return Point2D{X: p.X * factor, Y: p.Y * factor}
}

// Vec converts the point to a gonum r2 vector.
func (p Point2D) Vec() r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

// FromVec converts a gonum r2 vector to a point.
func FromVec(v r2.Vec) Point2D {
	return Point2D{X: v.X, Y: v.Y}
}

// Rotate rotates the point counterclockwise by angle radians around origin.
func (p Point2D) Rotate(angle float64, origin Point2D) Point2D {
	if angle == 0 {
		return p
	}
	return FromVec(r2.Rotate(p.Vec(), angle, origin.Vec()))
}

// RotateAroundPoint rotates points in place counterclockwise around an
// origin and returns the same slice.
func RotateAroundPoint(origin Point2D, points []Point2D, angle float64) []Point2D {
	for i := range points {
		points[i] = points[i].Rotate(angle, origin)
	}
	return points
}

// Centroid computes the centroid (average position) of a set of points.
func Centroid(points []Point2D) Point2D {
	if len(points) == 0 {
		return Point2D{}
	}
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(points))
	return Point2D{X: sumX / n, Y: sumY / n}
}

// MaxPairwiseDistance returns the largest Euclidean distance between any two points.
func MaxPairwiseDistance(points []Point2D) float64 {
	var dmax float64
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			if d := points[i].Distance(points[j]); d > dmax {
				dmax = d
			}
		}
	}
	return dmax
}

// WrapAngle maps an angle to [0, 2π). Negative inputs wrap around like a
// floored modulo.
func WrapAngle(phi float64) float64 {
	r := math.Mod(phi, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	return r
}

// Tolerance is the default tolerance for approximate comparison of point
// signatures.
const Tolerance = 1e-8

// ApproxEqual reports whether two flattened coordinate lists have equal
// length and all element pairs agree within an absolute or relative
// tolerance of tol.
func ApproxEqual(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	return floats.EqualApprox(a, b, tol)
}

// Flatten returns the points as an interleaved [x0, y0, x1, y1, ...] slice.
func Flatten(points []Point2D) []float64 {
	out := make([]float64, 0, 2*len(points))
	for _, p := range points {
		out = append(out, p.X, p.Y)
	}
	return out
}
