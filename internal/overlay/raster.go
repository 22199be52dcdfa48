package overlay

import (
	"image"

	imgio "impose/internal/image"
	"impose/pkg/structure"
)

// Rasterize tints the mask of every layer onto base in the pixel frame
// of ds. base should have the size of the data source view.
func Rasterize(sc *structure.Composite, ds structure.DataSource, base image.Image, mode imgio.BlendMode, opacity float64) *image.RGBA {
	rows, cols := ds.ImageShape()
	px, py := ds.PixelSize()
	c := imgio.NewComposite(base)
	for _, l := range sc.Layers() {
		c.AddMask(l.ToMask(px, py, rows, cols), l.Color, mode, opacity)
	}
	return c.Render()
}
