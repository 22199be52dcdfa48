package image

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// LoadAll loads several image files concurrently. The result is in the
// order of paths. The first error cancels the remaining loads.
func LoadAll(ctx context.Context, paths []string) ([]*Channels, error) {
	out := make([]*Channels, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ch, err := Load(p)
			if err != nil {
				return err
			}
			out[i] = ch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
