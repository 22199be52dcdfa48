package mask

import (
	"math"

	"impose/pkg/geometry"
)

// Ellipse rasterizes an ellipse with centre (x, y), semi-axes a and b and
// rotation phi.
//
// Grid coordinates are rotated by (π - phi) into the ellipse frame, which
// keeps the mask orientation consistent with shape point signatures.
func Ellipse(x, y, a, b, phi float64, rows, cols int, scaleX, scaleY float64) *Mask {
	m := New(rows, cols)
	cosAngle := math.Cos(math.Pi - phi)
	sinAngle := math.Sin(math.Pi - phi)
	for r := 0; r < rows; r++ {
		yc := float64(r)*scaleY - y + .5
		for c := 0; c < cols; c++ {
			xc := float64(c)*scaleX - x + .5
			xct := xc*cosAngle - yc*sinAngle
			yct := xc*sinAngle + yc*cosAngle
			rad := (xct*xct)/(a*a) + (yct*yct)/(b*b)
			if rad <= 1 {
				m.Set(r, c, true)
			}
		}
	}
	return m
}

// Rectangle rasterizes a rectangle with centre (x, y), width a, height b
// and rotation phi.
func Rectangle(x, y, a, b, phi float64, rows, cols int, scaleX, scaleY float64) *Mask {
	dx := a / 2
	dy := b / 2
	xv := [4]float64{dx, dx, -dx, -dx}
	yv := [4]float64{dy, -dy, -dy, dy}
	cos, sin := math.Cos(phi), math.Sin(phi)
	corners := make([]geometry.Point2D, 4)
	for i := range corners {
		xr := xv[i]*cos - yv[i]*sin
		yr := xv[i]*sin + yv[i]*cos
		corners[i] = geometry.Point2D{
			X: (x+xr)/scaleX - .5,
			Y: (y+yr)/scaleY - .5,
		}
	}
	return fill(corners, rows, cols)
}

// Polygon rasterizes a polygon given in point coordinates.
func Polygon(points []geometry.Point2D, rows, cols int, scaleX, scaleY float64) *Mask {
	grid := make([]geometry.Point2D, len(points))
	for i, p := range points {
		grid[i] = geometry.Point2D{
			X: p.X/scaleX - .5,
			Y: p.Y/scaleY - .5,
		}
	}
	return fill(grid, rows, cols)
}

// fill sets every grid point (col, row) that lies inside the polygon.
// Vertices are already in grid coordinates.
func fill(vertices []geometry.Point2D, rows, cols int) *Mask {
	m := New(rows, cols)
	if len(vertices) < 3 || rows == 0 || cols == 0 {
		return m
	}

	lo, hi := geometry.Bounds(vertices)
	minR := clampInt(int(math.Floor(lo.Y)), 0, rows-1)
	maxR := clampInt(int(math.Ceil(hi.Y)), 0, rows-1)
	minC := clampInt(int(math.Floor(lo.X)), 0, cols-1)
	maxC := clampInt(int(math.Ceil(hi.X)), 0, cols-1)
	if hi.Y < 0 || hi.X < 0 || lo.Y > float64(rows-1) || lo.X > float64(cols-1) {
		return m
	}

	for r := minR; r <= maxR; r++ {
		for c := minC; c <= maxC; c++ {
			p := geometry.Point2D{X: float64(c), Y: float64(r)}
			if geometry.PointInPolygon(p, vertices) {
				m.Set(r, c, true)
			}
		}
	}
	return m
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
