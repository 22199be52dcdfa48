// Package roi converts between structure layers and OpenCV contours: it
// turns segmented masks into polygon or ellipse layers and extracts the
// outlines of existing layers.
package roi

import (
	"fmt"
	"image"
	"math"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"impose/internal/logging"
	"impose/pkg/geometry"
	"impose/pkg/mask"
	"impose/pkg/shapes"
	"impose/pkg/structure"
)

// MaskToMat converts a mask to a single-channel 8-bit Mat (set = 255).
// The caller must close the result.
func MaskToMat(m *mask.Mask) gocv.Mat {
	mat := gocv.Zeros(m.Rows, m.Cols, gocv.MatTypeCV8U)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if m.At(r, c) {
				mat.SetUCharAt(r, c, 255)
			}
		}
	}
	return mat
}

// MatToMask converts a single-channel 8-bit Mat; nonzero pixels are set.
func MatToMask(src gocv.Mat) *mask.Mask {
	m := mask.New(src.Rows(), src.Cols())
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if src.GetUCharAt(r, c) > 0 {
				m.Set(r, c, true)
			}
		}
	}
	return m
}

// Clean closes small gaps and then removes small specks from a mask.
func Clean(m *mask.Mask, iterations int) *mask.Mask {
	src := MaskToMat(m)
	defer src.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()

	for i := 0; i < iterations; i++ {
		gocv.MorphologyEx(src, &src, gocv.MorphClose, kernel)
	}
	for i := 0; i < iterations; i++ {
		gocv.MorphologyEx(src, &src, gocv.MorphOpen, kernel)
	}

	return MatToMask(src)
}

// Contour is a closed outline in pixel coordinates (column, row). Hole
// contours bound a region that is not set inside a set region.
type Contour struct {
	Points []image.Point
	Area   float64
	Hole   bool
}

// FindContours returns the outer and hole contours of a mask, dropping
// contours that enclose less than minArea pixels.
func FindContours(m *mask.Mask, minArea float64) []Contour {
	src := MaskToMat(m)
	defer src.Close()

	hierarchy := gocv.NewMat()
	defer hierarchy.Close()

	contours := gocv.FindContoursWithParams(src, &hierarchy, gocv.RetrievalCComp, gocv.ChainApproxSimple)
	defer contours.Close()

	var out []Contour
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		area := gocv.ContourArea(pv)
		if area < minArea {
			continue
		}
		// hierarchy entries are (next, previous, first child, parent)
		parent := hierarchy.GetVeciAt(0, i)[3]
		out = append(out, Contour{
			Points: pv.ToPoints(),
			Area:   area,
			Hole:   parent >= 0,
		})
	}
	return out
}

// Options controls mask vectorization.
type Options struct {
	// MinArea drops contours with a smaller area in pixels.
	MinArea float64
	// Epsilon is the maximum distance in pixels between a contour and its
	// simplified polygon. Zero keeps all contour vertices.
	Epsilon float64
}

// LayerFromMask vectorizes a mask in the frame of ds into a layer of
// polygons. Outer contours are additive and holes subtractive. The layer
// uses the x pixel size as point size.
func LayerFromMask(label string, m *mask.Mask, ds structure.DataSource, color [3]int, opts Options) (*structure.Layer, error) {
	px, py := ds.PixelSize()
	sx := py / px

	var geom []structure.WeightedShape
	for _, c := range FindContours(m, opts.MinArea) {
		pts := c.Points
		if opts.Epsilon > 0 {
			pts = simplify(pts, opts.Epsilon)
		}
		if len(pts) < 3 {
			continue
		}
		vertices := make([]geometry.Point2D, len(pts))
		for i, p := range pts {
			vertices[i] = geometry.Point2D{X: (float64(p.X) + .5) * sx, Y: float64(p.Y) + .5}
		}
		poly, err := shapes.NewPolygon(vertices, px)
		if err != nil {
			return nil, err
		}
		weight := 1
		if c.Hole {
			weight = -1
		}
		geom = append(geom, structure.WeightedShape{Shape: poly, Weight: weight})
	}

	logging.L().Debug("vectorized mask",
		zap.String("label", label),
		zap.Int("shapes", len(geom)))
	return structure.NewLayer(label, px, geom, color)
}

func simplify(pts []image.Point, epsilon float64) []image.Point {
	pv := gocv.NewPointVectorFromPoints(pts)
	defer pv.Close()

	approx := gocv.ApproxPolyDP(pv, epsilon, true)
	defer approx.Close()

	return approx.ToPoints()
}

// FitEllipses fits an ellipse to every outer contour of a mask with at
// least minArea pixels. The pixels of ds must be square.
func FitEllipses(m *mask.Mask, ds structure.DataSource, minArea float64) ([]*shapes.Ellipse, error) {
	px, py := ds.PixelSize()
	if px != py {
		return nil, fmt.Errorf("ellipse fitting needs square pixels, got %g x %g", px, py)
	}

	var out []*shapes.Ellipse
	for _, c := range FindContours(m, minArea) {
		if c.Hole || len(c.Points) < 5 {
			continue
		}
		pv := gocv.NewPointVectorFromPoints(c.Points)
		rr := gocv.FitEllipse(pv)
		pv.Close()

		a, b := float64(rr.Width)/2, float64(rr.Height)/2
		phi := rr.Angle * math.Pi / 180
		if a < b {
			a, b = b, a
			phi += math.Pi / 2
		}
		// pixel (c, r) is centred on point (c + .5, r + .5)
		out = append(out, shapes.NewEllipse(float64(rr.Center.X)+.5, float64(rr.Center.Y)+.5, a, b, phi, px))
	}
	return out, nil
}

// LayerContours returns the contours of the rasterized layer in the frame
// of ds.
func LayerContours(l *structure.Layer, ds structure.DataSource) []Contour {
	rows, cols := ds.ImageShape()
	px, py := ds.PixelSize()
	return FindContours(l.ToMask(px, py, rows, cols), 0)
}
