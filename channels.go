package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"impose/internal/config"
	"impose/internal/datasource"
	"impose/internal/logging"
	"impose/pkg/structure"
)

// channelFlags selects the channel files of a command. Without file
// arguments the channels of the config file are used.
type channelFlags struct {
	hues       []string
	mode       string
	pixelSizeX float64
	pixelSizeY float64
}

func (f *channelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.hues, "hue", nil, "hue per channel: angle 0-255 or #RRGGBB")
	cmd.Flags().StringVar(&f.mode, "mode", "", "blend mode: hsv or rgb (default from config)")
	cmd.Flags().Float64Var(&f.pixelSizeX, "pixel-size-x", 0, "pixel size along x in microns")
	cmd.Flags().Float64Var(&f.pixelSizeY, "pixel-size-y", 0, "pixel size along y in microns")
}

func parseHue(s string) any {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}

// open loads the channel files concurrently and applies the config and
// flag settings. All channels are selected for blending.
func (f *channelFlags) open(ctx context.Context, cfg *config.Config, paths []string) (*datasource.Source, error) {
	var hues []any
	for _, h := range f.hues {
		hues = append(hues, parseHue(h))
	}
	fromConfig := len(paths) == 0
	if fromConfig {
		if len(cfg.Blend.Channels) == 0 {
			return nil, fmt.Errorf("no channel files given and none configured")
		}
		for _, ch := range cfg.Blend.Channels {
			paths = append(paths, ch.Path)
		}
	}

	src, err := datasource.OpenFiles(ctx, paths, hues, datasource.WithAutocontrast(cfg.Blend.Autocontrast))
	if err != nil {
		return nil, err
	}
	if fromConfig {
		if err := applyChannelConfig(src, cfg.Blend.Channels, len(hues) == 0); err != nil {
			return nil, err
		}
	}

	px, py := src.PixelSize()
	for _, o := range []struct {
		v   float64
		dst *float64
	}{
		{cfg.Stack.PixelSizeX, &px},
		{cfg.Stack.PixelSizeY, &py},
		{f.pixelSizeX, &px},
		{f.pixelSizeY, &py},
	} {
		if o.v > 0 {
			*o.dst = o.v
		}
	}
	if err := src.SetPixelSize(px, py, src.VoxelDepth()); err != nil {
		return nil, err
	}

	mode := f.mode
	if mode == "" {
		mode = cfg.Blend.Mode
	}
	if err := src.SetBlend(datasource.BlendConfig{Mode: mode, Channels: src.ChannelNames()}); err != nil {
		return nil, err
	}

	logging.L().Info("opened channels",
		zap.Strings("channels", src.ChannelNames()),
		zap.Float64("pixel_size_x", px),
		zap.Float64("pixel_size_y", py),
		zap.String("mode", mode))
	return src, nil
}

// applyChannelConfig copies the display settings of the config file onto
// the channels of src. It needs one channel per configured file.
func applyChannelConfig(src *datasource.Source, channels []config.ChannelConfig, withHue bool) error {
	names := src.ChannelNames()
	if len(names) != len(channels) {
		logging.L().Warn("config channels do not map to file channels, ignoring display settings",
			zap.Int("configured", len(channels)),
			zap.Int("found", len(names)))
		return nil
	}
	meta := src.Metadata()
	for i, ch := range channels {
		cc := meta.Channels[i]
		if withHue && ch.Hue != nil {
			cc.Hue = ch.Hue
		}
		if ch.Brightness > 0 {
			cc.Brightness = ch.Brightness
		}
		if ch.Contrast > 0 {
			cc.Contrast = ch.Contrast
		}
		if err := src.SetChannel(cc); err != nil {
			return fmt.Errorf("channel %q: %w", ch.Name, err)
		}
	}
	return nil
}

// readComposite loads a composite JSON file.
func readComposite(path string) (*structure.Composite, error) {
	if path == "" {
		return nil, fmt.Errorf("no composite file given")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc := structure.NewComposite()
	if err := json.Unmarshal(raw, sc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return sc, nil
}

// writeOutput writes data to path, or to stdout for "" and "-".
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	logging.L().Info("wrote output", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}
