// Package nanops provides element-wise reductions over a set of
// same-length float slices that skip NaN entries, like numpy's nan*
// functions applied along the first axis of a stacked array.
package nanops

import "math"

// Count returns, for every index, the number of non-NaN values.
func Count(xs [][]float64) []int {
	n := width(xs)
	out := make([]int, n)
	for _, x := range xs {
		for i, v := range x {
			if !math.IsNaN(v) {
				out[i]++
			}
		}
	}
	return out
}

// Sum returns the per-index sum of non-NaN values. Indices where every
// value is NaN sum to zero.
func Sum(xs [][]float64) []float64 {
	n := width(xs)
	out := make([]float64, n)
	for _, x := range xs {
		for i, v := range x {
			if !math.IsNaN(v) {
				out[i] += v
			}
		}
	}
	return out
}

// Mean returns the per-index mean of non-NaN values. Indices where every
// value is NaN are NaN.
func Mean(xs [][]float64) []float64 {
	sum := Sum(xs)
	cnt := Count(xs)
	for i := range sum {
		if cnt[i] == 0 {
			sum[i] = math.NaN()
			continue
		}
		sum[i] /= float64(cnt[i])
	}
	return sum
}

// Max returns the maximum of all non-NaN values in x, or NaN if there is
// none.
func Max(x []float64) float64 {
	m := math.NaN()
	for _, v := range x {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(m) || v > m {
			m = v
		}
	}
	return m
}

// Finite returns the values of x that are neither NaN nor infinite.
func Finite(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func width(xs [][]float64) int {
	if len(xs) == 0 {
		return 0
	}
	n := len(xs[0])
	for _, x := range xs[1:] {
		if len(x) != n {
			panic("nanops: slices of different length")
		}
	}
	return n
}
