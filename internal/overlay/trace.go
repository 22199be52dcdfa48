package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/gotranspile/gotrace"

	"impose/pkg/mask"
	"impose/pkg/structure"
)

// TraceMask vectorizes a mask into a standalone SVG document. Set pixels
// become filled paths.
func TraceMask(w io.Writer, m *mask.Mask) error {
	// the tracer fills dark pixels
	img := image.NewGray(image.Rect(0, 0, m.Cols, m.Rows))
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if !m.At(r, c) {
				img.SetGray(c, r, color.Gray{Y: 255})
			}
		}
	}
	bm := gotrace.BitmapFromGray(img, nil)

	paths, err := gotrace.Trace(bm, nil)
	if err != nil {
		return fmt.Errorf("trace mask: %w", err)
	}

	return gotrace.Render("svg", nil, w, paths, m.Cols, m.Rows)
}

// TraceLayers vectorizes the mask of every layer in the frame of ds. The
// result maps layer labels to SVG documents.
func TraceLayers(sc *structure.Composite, ds structure.DataSource) (map[string]string, error) {
	rows, cols := ds.ImageShape()
	px, py := ds.PixelSize()
	out := make(map[string]string, sc.Len())
	for _, l := range sc.Layers() {
		var buf bytes.Buffer
		if err := TraceMask(&buf, l.ToMask(px, py, rows, cols)); err != nil {
			return nil, fmt.Errorf("layer %q: %w", l.Label(), err)
		}
		out[l.Label()] = buf.String()
	}
	return out, nil
}
