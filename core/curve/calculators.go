// core/curve/calculators.go

// Package curve holds the weighted aggregation arithmetic for hazard
// curves. Hazard is exchanged as exceedance probability but all summation
// happens in annual-rate space, where independent sources are additive.
package curve

import (
	"math"
	"sort"
)

// ProbToRate converts exceedance probabilities to rates assuming Poissonian
// occurrence over the investigation time.
func ProbToRate(probs []float64, invTime float64) []float64 {
	out := make([]float64, len(probs))
	for i, p := range probs {
		out[i] = -math.Log(1-p) / invTime
	}
	return out
}

// RateToProb is the inverse of ProbToRate.
func RateToProb(rates []float64, invTime float64) []float64 {
	out := make([]float64, len(rates))
	for i, r := range rates {
		out[i] = 1 - math.Exp(-r*invTime)
	}
	return out
}

// WeightedMeanStd computes the weighted mean and population standard
// deviation of each level column of values[branch][level].
func WeightedMeanStd(values [][]float64, weights []float64) (mean, std []float64) {
	if len(values) == 0 {
		return nil, nil
	}
	nlevels := len(values[0])
	mean = make([]float64, nlevels)
	std = make([]float64, nlevels)
	wsum := 0.0
	for _, w := range weights {
		wsum += w
	}
	for j := 0; j < nlevels; j++ {
		m := 0.0
		for i, row := range values {
			m += weights[i] * row[j]
		}
		m /= wsum
		v := 0.0
		for i, row := range values {
			d := row[j] - m
			v += weights[i] * d * d
		}
		mean[j] = m
		std[j] = math.Sqrt(v / wsum)
	}
	return mean, std
}

// CoV is the coefficient of variation std/mean, defined as 0 where the mean
// is 0 (contract, not a numerical accident).
func CoV(mean, std []float64) []float64 {
	out := make([]float64, len(mean))
	for i := range mean {
		if mean[i] != 0 {
			out[i] = std[i] / mean[i]
		}
	}
	return out
}

// WeightedQuantiles interpolates the weighted cumulative distribution of
// values at the given cumulative weight fractions. Results are clamped to
// the extreme values outside the supported range.
func WeightedQuantiles(values, weights []float64, fractions []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	wsum := 0.0
	for _, w := range weights {
		wsum += w
	}
	cum := make([]float64, len(values))
	sorted := make([]float64, len(values))
	run := 0.0
	for k, i := range idx {
		w := weights[i]
		cum[k] = (run + w/2) / wsum
		run += w
		sorted[k] = values[i]
	}

	out := make([]float64, len(fractions))
	for i, q := range fractions {
		out[i] = interp(q, cum, sorted)
	}
	return out
}

// interp is piecewise-linear interpolation of y(x) at q, with xs ascending.
func interp(q float64, xs, ys []float64) float64 {
	n := len(xs)
	if q <= xs[0] {
		return ys[0]
	}
	if q >= xs[n-1] {
		return ys[n-1]
	}
	k := sort.SearchFloat64s(xs, q)
	if xs[k] == q {
		return ys[k]
	}
	x0, x1 := xs[k-1], xs[k]
	y0, y1 := ys[k-1], ys[k]
	return y0 + (y1-y0)*(q-x0)/(x1-x0)
}
