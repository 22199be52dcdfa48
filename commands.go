package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"impose/internal/datasource"
	imgio "impose/internal/image"
	"impose/internal/logging"
	"impose/internal/overlay"
	"impose/internal/roi"
	"impose/internal/session"
	"impose/pkg/colorutil"
	"impose/pkg/mask"
	"impose/pkg/shapes"
	"impose/pkg/structure"
)

func (c *cli) blendCmd() *cobra.Command {
	var (
		ch  channelFlags
		out string
	)
	cmd := &cobra.Command{
		Use:   "blend [channel files...]",
		Short: "Blend channel files into one RGB image",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := ch.open(cmd.Context(), c.cfg, args)
			if err != nil {
				return err
			}
			img, err := src.Image()
			if err != nil {
				return err
			}
			return imgio.Save(out, img.ToNRGBA())
		},
	}
	ch.register(cmd)
	cmd.Flags().StringVarP(&out, "output", "o", "blend.png", "output image (.png or .tif)")
	return cmd
}

// channelStats summarizes the finite values of one channel in one layer.
type channelStats struct {
	Count int      `json:"count"`
	Mean  *float64 `json:"mean"`
	Std   *float64 `json:"std"`
}

type layerOutput struct {
	Label    string                  `json:"label"`
	Channels map[string][]*float64   `json:"channels,omitempty"`
	Summary  map[string]channelStats `json:"summary,omitempty"`
}

func (c *cli) extractCmd() *cobra.Command {
	var (
		ch        channelFlags
		composite string
		channels  []string
		summary   bool
		out       string
	)
	cmd := &cobra.Command{
		Use:   "extract [channel files...]",
		Short: "Extract the channel values inside every layer of a composite",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := readComposite(composite)
			if err != nil {
				return err
			}
			src, err := ch.open(cmd.Context(), c.cfg, args)
			if err != nil {
				return err
			}
			data, err := sc.ExtractData(src, channels)
			if err != nil {
				return err
			}
			layers := lo.Map(data, func(ld structure.LayerData, _ int) layerOutput {
				l := layerOutput{Label: ld.Label}
				if summary {
					l.Summary = make(map[string]channelStats, len(ld.Channels))
					for name, values := range ld.Channels {
						l.Summary[name] = summarize(values)
					}
				} else {
					l.Channels = ld.FiniteChannels()
				}
				return l
			})
			raw, err := json.MarshalIndent(layers, "", "  ")
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, append(raw, '\n'))
		},
	}
	ch.register(cmd)
	cmd.Flags().StringVar(&composite, "composite", "", "structure composite JSON file")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "channels to extract (default all)")
	cmd.Flags().BoolVar(&summary, "summary", false, "report count, mean and standard deviation only")
	cmd.Flags().StringVarP(&out, "output", "o", "-", "output JSON file")
	return cmd
}

func summarize(values []float64) channelStats {
	finite := lo.Filter(values, func(v float64, _ int) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) })
	st := channelStats{Count: len(finite)}
	if len(finite) == 0 {
		return st
	}
	mean, std := stat.MeanStdDev(finite, nil)
	st.Mean = &mean
	if len(finite) > 1 {
		st.Std = &std
	}
	return st
}

func (c *cli) overlayCmd() *cobra.Command {
	var (
		ch        channelFlags
		composite string
		zoom      int
		opacity   float64
		noBase    bool
		blendMode string
		out       string
	)
	cmd := &cobra.Command{
		Use:   "overlay [channel files...]",
		Short: "Draw a composite on top of the blended channels",
		Long: "Writes an SVG document, or for a .png or .tif output a raster image\n" +
			"with the layer masks tinted onto the blended channels.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := readComposite(composite)
			if err != nil {
				return err
			}
			src, err := ch.open(cmd.Context(), c.cfg, args)
			if err != nil {
				return err
			}
			var base image.Image
			if !noBase {
				img, err := src.Image()
				if err != nil {
					return err
				}
				base = img.ToNRGBA()
			}

			if imgio.IsSupportedFormat(out) {
				mode, err := imgio.ParseBlendMode(blendMode)
				if err != nil {
					return err
				}
				if base == nil {
					rows, cols := src.ImageShape()
					base = image.NewNRGBA(image.Rect(0, 0, cols, rows))
				}
				return imgio.Save(out, overlay.Rasterize(sc, src, base, mode, opacity))
			}

			opts := []overlay.Option{
				overlay.WithTitle(filepath.Base(composite)),
				overlay.WithZoom(zoom),
				overlay.WithOpacity(opacity),
			}
			if base != nil {
				opts = append(opts, overlay.WithBase(base))
			}
			var buf bytes.Buffer
			if err := overlay.WriteSVG(&buf, sc, src, opts...); err != nil {
				return err
			}
			return writeOutput(cmd, out, buf.Bytes())
		},
	}
	ch.register(cmd)
	cmd.Flags().StringVar(&composite, "composite", "", "structure composite JSON file")
	cmd.Flags().IntVar(&zoom, "zoom", 1, "screen pixels per data pixel (SVG only)")
	cmd.Flags().Float64Var(&opacity, "opacity", 0.4, "opacity of additive shapes")
	cmd.Flags().BoolVar(&noBase, "no-image", false, "draw the structures only")
	cmd.Flags().StringVar(&blendMode, "blend-mode", "normal", "tint blend mode for raster output: normal, multiply, screen, overlay or difference")
	cmd.Flags().StringVarP(&out, "output", "o", "overlay.svg", "output file (.svg, .png or .tif)")
	return cmd
}

func (c *cli) traceCmd() *cobra.Command {
	var (
		ch        channelFlags
		composite string
		dir       string
	)
	cmd := &cobra.Command{
		Use:   "trace [channel files...]",
		Short: "Write the outline of every layer mask as an SVG file",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := readComposite(composite)
			if err != nil {
				return err
			}
			src, err := ch.open(cmd.Context(), c.cfg, args)
			if err != nil {
				return err
			}
			svgs, err := overlay.TraceLayers(sc, src)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			labels := lo.Keys(svgs)
			sort.Strings(labels)
			for i, label := range labels {
				name := fmt.Sprintf("%02d-%s.svg", i, sanitize(label))
				if err := os.WriteFile(filepath.Join(dir, name), []byte(svgs[label]), 0o644); err != nil {
					return err
				}
			}
			logging.L().Info("traced layers", zap.Int("layers", len(labels)), zap.String("dir", dir))
			return nil
		},
	}
	ch.register(cmd)
	cmd.Flags().StringVar(&composite, "composite", "", "structure composite JSON file")
	cmd.Flags().StringVarP(&dir, "output", "o", "traces", "output directory")
	return cmd
}

// sanitize makes a layer label usable as a file name.
func sanitize(label string) string {
	b := []byte(label)
	for i, r := range b {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

func (c *cli) roiCmd() *cobra.Command {
	var (
		ch        channelFlags
		maskPath  string
		label     string
		color     string
		clean     int
		opts      roi.Options
		ellipses  bool
		composite string
		out       string
	)
	cmd := &cobra.Command{
		Use:   "roi [channel files...]",
		Short: "Turn a binary mask image into a structure layer",
		Long: "Vectorizes the nonzero pixels of a mask image into polygons, or fits\n" +
			"ellipses to them, and adds the result as a layer to a composite.\n" +
			"Without channel files the mask image defines the pixel frame.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{maskPath}
			}
			src, err := ch.open(cmd.Context(), c.cfg, args)
			if err != nil {
				return err
			}
			m, err := loadMask(maskPath)
			if err != nil {
				return err
			}
			if rows, cols := src.ImageShape(); rows != m.Rows || cols != m.Cols {
				return fmt.Errorf("mask is %dx%d, channels are %dx%d", m.Rows, m.Cols, rows, cols)
			}
			if clean > 0 {
				m = roi.Clean(m, clean)
			}

			sc := structure.NewComposite()
			if composite != "" {
				if sc, err = readComposite(composite); err != nil {
					return err
				}
			}
			rgb := colorutil.PaletteColor(sc.Len())
			if color != "" {
				r, g, b, err := colorutil.ParseHex(color)
				if err != nil {
					return err
				}
				rgb = [3]int{int(colorutil.To8(r)), int(colorutil.To8(g)), int(colorutil.To8(b))}
			}

			var layer *structure.Layer
			if ellipses {
				layer, err = ellipseLayer(label, m, src, rgb, opts.MinArea)
			} else {
				layer, err = roi.LayerFromMask(label, m, src, rgb, opts)
			}
			if err != nil {
				return err
			}
			if p, ok := sc.PointUM(); ok && p != layer.PointUM() {
				layer.SetScale(p)
			}
			if err := sc.Append(layer); err != nil {
				return err
			}
			raw, err := json.MarshalIndent(sc, "", "  ")
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, append(raw, '\n'))
		},
	}
	ch.register(cmd)
	cmd.Flags().StringVar(&maskPath, "mask", "", "mask image; nonzero pixels are inside")
	cmd.Flags().StringVar(&label, "label", "roi", "layer label")
	cmd.Flags().StringVar(&color, "color", "", "layer color #RRGGBB (default from palette)")
	cmd.Flags().IntVar(&clean, "clean", 0, "morphological close/open iterations")
	cmd.Flags().Float64Var(&opts.MinArea, "min-area", 4, "minimum contour area in pixels")
	cmd.Flags().Float64Var(&opts.Epsilon, "epsilon", 1, "polygon simplification tolerance in pixels")
	cmd.Flags().BoolVar(&ellipses, "ellipses", false, "fit ellipses instead of tracing polygons")
	cmd.Flags().StringVar(&composite, "composite", "", "composite JSON file to add the layer to")
	cmd.Flags().StringVarP(&out, "output", "o", "-", "output composite JSON file")
	cmd.MarkFlagRequired("mask")
	return cmd
}

// loadMask reads the first channel of an image file as a mask.
func loadMask(path string) (*mask.Mask, error) {
	img, err := imgio.Load(path)
	if err != nil {
		return nil, err
	}
	data := img.Data[img.Names[0]]
	rows, cols := data.Dims()
	m := mask.New(rows, cols)
	for r := 0; r < rows; r++ {
		for col := 0; col < cols; col++ {
			if data.At(r, col) > 0 {
				m.Set(r, col, true)
			}
		}
	}
	return m, nil
}

func ellipseLayer(label string, m *mask.Mask, ds structure.DataSource, rgb [3]int, minArea float64) (*structure.Layer, error) {
	fitted, err := roi.FitEllipses(m, ds, minArea)
	if err != nil {
		return nil, err
	}
	px, _ := ds.PixelSize()
	geom := lo.Map(fitted, func(e *shapes.Ellipse, _ int) structure.WeightedShape {
		return structure.WeightedShape{Shape: e, Weight: 1}
	})
	return structure.NewLayer(label, px, geom, rgb)
}

func (c *cli) sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create and inspect session files",
	}
	cmd.AddCommand(c.sessionNewCmd(), c.sessionColocalizeCmd(), c.sessionShowCmd())
	return cmd
}

func (c *cli) sessionNewCmd() *cobra.Command {
	var composite string
	cmd := &cobra.Command{
		Use:   "new SESSION DATAFILE...",
		Short: "Start a session that collects a composite on every data file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := structure.NewComposite()
			if composite != "" {
				var err error
				if sc, err = readComposite(composite); err != nil {
					return err
				}
			}
			s := session.New()
			for _, path := range args[1:] {
				ds, err := datasource.Open(path)
				if err != nil {
					return err
				}
				s.Collect.Append(ds, sc.Copy())
			}
			if err := s.Save(args[0]); err != nil {
				return err
			}
			logging.L().Info("saved session",
				zap.String("path", args[0]),
				zap.Int("datasets", len(s.Collect.Sources)))
			return nil
		},
	}
	cmd.Flags().StringVar(&composite, "composite", "", "composite JSON file drawn on every data file")
	return cmd
}

func (c *cli) sessionColocalizeCmd() *cobra.Command {
	var search []string
	cmd := &cobra.Command{
		Use:   "colocalize SESSION DATAFILE...",
		Short: "Transfer the mean composite of a session onto more data files",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := session.New()
			if err := s.Load(args[0], search...); err != nil {
				return err
			}
			for _, path := range args[1:] {
				ds, err := datasource.Open(path)
				if err != nil {
					return err
				}
				if err := s.Colocalize.Append(ds, nil); err != nil {
					return err
				}
			}
			if err := s.Colocalize.UpdateComposites(); err != nil {
				return err
			}
			return s.Save(args[0])
		},
	}
	cmd.Flags().StringSliceVar(&search, "search", nil, "directories searched for moved data files")
	return cmd
}

func (c *cli) sessionShowCmd() *cobra.Command {
	var search []string
	cmd := &cobra.Command{
		Use:   "show SESSION",
		Short: "Print the data sets and composites of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := session.New()
			if err := s.Load(args[0], search...); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "collection: %d data sets\n", len(s.Collect.Sources))
			for i, ds := range s.Collect.Sources {
				fmt.Fprintf(w, "  %s\n", ds.Path())
				if i < s.Stack.Len() {
					fmt.Fprintf(w, "    %s\n", s.Stack.At(i))
				}
			}
			fmt.Fprintf(w, "colocalization: %d data sets\n", len(s.Colocalize.Sources))
			for i, ds := range s.Colocalize.Sources {
				fmt.Fprintf(w, "  %s\n", ds.Path())
				if i < len(s.Colocalize.Manual) {
					fmt.Fprintf(w, "    %s\n", s.Colocalize.Manual[i])
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&search, "search", nil, "directories searched for moved data files")
	return cmd
}
