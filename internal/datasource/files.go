package datasource

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"impose/internal/image"
)

// FromFiles combines decoded image files into one source. A single file
// keeps its channel names. With several files a single-channel file is
// named after the file and the channels of a color file get the file
// name as prefix. hues is empty or holds one hue per resulting channel.
// The pixel size is taken from the first file.
func FromFiles(files []*image.Channels, hues []any, opts ...Option) (*Source, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("data source needs at least one file")
	}

	var channels []Channel
	for _, f := range files {
		base := strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path))
		for _, name := range f.Names {
			chName := name
			switch {
			case len(files) == 1:
			case len(f.Names) == 1:
				chName = base
			default:
				chName = base + "." + name
			}
			channels = append(channels, Channel2D(chName, f.Data[name], nil))
		}
	}
	if len(hues) > 0 {
		if len(hues) != len(channels) {
			return nil, fmt.Errorf("got %d hues for %d channels", len(hues), len(channels))
		}
		for i := range channels {
			channels[i].Hue = hues[i]
		}
	}

	h := md5.New()
	for _, f := range files {
		h.Write([]byte(f.Signature))
	}
	first := files[0]
	defaults := []Option{
		WithSignature(hex.EncodeToString(h.Sum(nil))),
		WithPixelSize(first.PixelSizeX, first.PixelSizeY, math.NaN()),
	}
	if len(files) == 1 {
		defaults = append(defaults, WithPath(first.Path), WithSignature(first.Signature))
	}
	return New(channels, append(defaults, opts...)...)
}

// OpenFiles loads several image files concurrently and combines them
// with FromFiles.
func OpenFiles(ctx context.Context, paths []string, hues []any, opts ...Option) (*Source, error) {
	abs := make([]string, len(paths))
	for i, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		abs[i] = a
	}
	files, err := image.LoadAll(ctx, abs)
	if err != nil {
		return nil, err
	}
	return FromFiles(files, hues, opts...)
}
