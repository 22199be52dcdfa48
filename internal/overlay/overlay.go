// Package overlay renders structure composites as SVG, optionally on top
// of the blended data image, and vectorizes layer masks.
package overlay

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"image"
	"io"
	"math"
	"strings"

	svg "github.com/ajstarks/svgo"
	"go.uber.org/zap"

	imgio "impose/internal/image"
	"impose/internal/logging"
	"impose/pkg/shapes"
	"impose/pkg/structure"
)

// Option configures WriteSVG.
type Option func(*options)

type options struct {
	title   string
	base    image.Image
	opacity float64
	zoom    int
}

// WithTitle sets the document title.
func WithTitle(title string) Option {
	return func(o *options) { o.title = title }
}

// WithBase draws img below the structures. It should have the size of
// the data source view.
func WithBase(img image.Image) Option {
	return func(o *options) { o.base = img }
}

// WithOpacity sets the fill opacity of additive shapes (default 0.4).
func WithOpacity(opacity float64) Option {
	return func(o *options) { o.opacity = opacity }
}

// WithZoom sets the number of screen pixels per data pixel (default 1).
func WithZoom(zoom int) Option {
	return func(o *options) { o.zoom = zoom }
}

// WriteSVG draws the composite in the pixel frame of ds. Each layer is
// one group with the layer label as id. Additive shapes are filled with
// the layer color, subtractive shapes are dashed outlines.
func WriteSVG(w io.Writer, sc *structure.Composite, ds structure.DataSource, opts ...Option) error {
	o := options{opacity: 0.4, zoom: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.zoom < 1 {
		return fmt.Errorf("invalid zoom %d", o.zoom)
	}
	rows, cols := ds.ImageShape()
	px, py := ds.PixelSize()
	if px <= 0 || py <= 0 || math.IsNaN(px) || math.IsNaN(py) {
		return fmt.Errorf("invalid pixel size (%g, %g)", px, py)
	}
	sx := py / px

	canvas := svg.New(w)
	canvas.Startview(cols*o.zoom, rows*o.zoom, 0, 0, cols, rows)
	if o.title != "" {
		canvas.Title(o.title)
	}

	if o.base != nil {
		href, err := dataURI(o.base)
		if err != nil {
			return err
		}
		canvas.Image(0, 0, cols, rows, href, `preserveAspectRatio="none"`, `style="image-rendering:pixelated"`)
	}

	for _, l := range sc.Layers() {
		fill := hexColor(l.Color)
		canvas.Group(
			fmt.Sprintf(`id="%s"`, html.EscapeString(l.Label())),
			fmt.Sprintf(`fill="%s"`, fill),
			fmt.Sprintf(`stroke="%s"`, fill),
		)
		for _, g := range l.Geometry() {
			d, err := pathData(g.Shape)
			if err != nil {
				return err
			}
			attrs := []string{transform(g.Shape, sx), `vector-effect="non-scaling-stroke"`}
			if g.Weight > 0 {
				attrs = append(attrs, fmt.Sprintf(`fill-opacity="%g"`, o.opacity))
			} else {
				attrs = append(attrs, `fill="none"`, `stroke-dasharray="4 2"`)
			}
			canvas.Path(d, attrs...)
		}
		canvas.Gend()
	}
	canvas.End()

	logging.L().Debug("rendered composite overlay",
		zap.Int("layers", sc.Len()),
		zap.Int("rows", rows),
		zap.Int("cols", cols))
	return nil
}

// transform maps point coordinates to the pixel frame. Ellipses and
// polygons are rasterized with different pixel-centre conventions.
func transform(s shapes.Shape, sx float64) string {
	var e float64
	switch s.(type) {
	case *shapes.Ellipse, *shapes.Circle:
		e = .5 - .5/sx
	}
	return fmt.Sprintf(`transform="matrix(%g 0 0 1 %g 0)"`, 1/sx, e)
}

// pathData returns the outline of a shape in point coordinates.
func pathData(s shapes.Shape) (string, error) {
	switch v := s.(type) {
	case *shapes.Ellipse:
		return ellipsePath(v.X, v.Y, v.A, v.B, v.Phi), nil
	case *shapes.Circle:
		return ellipsePath(v.X, v.Y, v.R, v.R, v.Phi), nil
	case *shapes.Rectangle:
		cos, sin := math.Cos(v.Phi), math.Sin(v.Phi)
		dx, dy := v.A/2, v.B/2
		var pts [][2]float64
		for _, c := range [][2]float64{{dx, dy}, {dx, -dy}, {-dx, -dy}, {-dx, dy}} {
			pts = append(pts, [2]float64{v.X + c[0]*cos - c[1]*sin, v.Y + c[0]*sin + c[1]*cos})
		}
		return polyPath(pts), nil
	case *shapes.Polygon:
		pts := make([][2]float64, len(v.Points))
		for i, p := range v.Points {
			pts[i] = [2]float64{p.X, p.Y}
		}
		return polyPath(pts), nil
	default:
		return "", fmt.Errorf("no outline for %s", s.Kind())
	}
}

// ellipsePath draws two half arcs starting at the end of the a semi-axis.
func ellipsePath(x, y, a, b, phi float64) string {
	ca, sa := a*math.Cos(phi), a*math.Sin(phi)
	deg := phi * 180 / math.Pi
	return fmt.Sprintf("M %g %g A %g %g %g 1 0 %g %g A %g %g %g 1 0 %g %g Z",
		x+ca, y+sa,
		a, b, deg, x-ca, y-sa,
		a, b, deg, x+ca, y+sa)
}

func polyPath(pts [][2]float64) string {
	var sb strings.Builder
	for i, p := range pts {
		if i == 0 {
			fmt.Fprintf(&sb, "M %g %g", p[0], p[1])
		} else {
			fmt.Fprintf(&sb, " L %g %g", p[0], p[1])
		}
	}
	sb.WriteString(" Z")
	return sb.String()
}

func hexColor(c [3]int) string {
	clamp := func(v int) int { return max(0, min(255, v)) }
	return fmt.Sprintf("#%02x%02x%02x", clamp(c[0]), clamp(c[1]), clamp(c[2]))
}

func dataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imgio.Encode(&buf, img, "png"); err != nil {
		return "", fmt.Errorf("encode base image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
