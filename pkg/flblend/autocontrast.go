package flblend

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"impose/internal/nanops"
)

// Percentiles used to pick the autocontrast range.
const (
	lowerPercentile = .01
	upperPercentile = .99
)

// contrastRange returns the histogram bin edges closest to the 1st and
// 99th percentile of the finite values in data. The number of bins is
// floor(sqrt(len(data))). ok is false if data has no finite value.
func contrastRange(data []float64) (lo, hi float64, ok bool) {
	x := nanops.Finite(data)
	if len(x) == 0 {
		return 0, 0, false
	}
	sort.Float64s(x)

	bins := int(math.Sqrt(float64(len(data))))
	if bins < 1 {
		bins = 1
	}
	vmin, vmax := x[0], x[len(x)-1]
	if vmin == vmax {
		vmin -= .5
		vmax += .5
	}
	edges := floats.Span(make([]float64, bins+1), vmin, vmax)

	// The last bin is closed; stat.Histogram wants the last divider to be
	// strictly larger than every value.
	dividers := make([]float64, len(edges))
	copy(dividers, edges)
	dividers[bins] = math.Nextafter(vmax, math.Inf(1))
	hist := stat.Histogram(nil, dividers, x, nil)

	cum := floats.CumSum(make([]float64, bins), hist)
	total := cum[bins-1]
	dlo := make([]float64, bins)
	dhi := make([]float64, bins)
	for i, c := range cum {
		dlo[i] = math.Abs(c/total - lowerPercentile)
		dhi[i] = math.Abs(c/total - upperPercentile)
	}
	return edges[floats.MinIdx(dlo)], edges[floats.MinIdx(dhi)], true
}

// rescale clips m to [lo, hi] and maps that range onto [0, 1] in place.
// If lo == hi the clipped values are only clamped to [0, 1]. NaN stays NaN.
func rescale(m *mat.Dense, lo, hi float64) {
	m.Apply(func(_, _ int, v float64) float64 {
		if math.IsNaN(v) {
			return v
		}
		v = math.Min(math.Max(v, lo), hi)
		if lo != hi {
			return (v - lo) / (hi - lo)
		}
		return math.Min(math.Max(v, 0), 1)
	}, m)
}

// autocontrast rescales m so that its 1st to 99th percentile range spans
// [0, 1]. Images without finite values are left alone.
func autocontrast(m *mat.Dense) {
	lo, hi, ok := contrastRange(m.RawMatrix().Data)
	if !ok {
		return
	}
	rescale(m, lo, hi)
}
