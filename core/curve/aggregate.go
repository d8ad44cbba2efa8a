// core/curve/aggregate.go
package curve

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrMissingDigest is returned when a composite branch references a
// component digest absent from the rate map. That signals a store /
// logic-tree mismatch and must abort the job, never read as zero.
var ErrMissingDigest = errors.New("curve: component digest missing from rate map")

// ParseAggType validates an aggregation token: "mean", "std", "cov", or a
// fractile in the open interval (0,1). The fractile value is returned with
// ok=true when the token is numeric.
func ParseAggType(agg string) (q float64, ok bool, err error) {
	switch agg {
	case "mean", "std", "cov":
		return 0, false, nil
	}
	q, perr := strconv.ParseFloat(agg, 64)
	if perr != nil {
		return 0, false, fmt.Errorf("curve: unknown aggregation type %q", agg)
	}
	if q <= 0 || q >= 1 {
		return 0, false, fmt.Errorf("curve: fractile %q outside (0,1)", agg)
	}
	return q, true, nil
}

// CalculateAggs reduces branchRates[branch][level] into one output row per
// requested aggregation type, in aggTypes order. Mean, std and cov share
// one pass and are computed only when at least one of them is requested;
// each fractile is computed once.
func CalculateAggs(branchRates [][]float64, weights []float64, aggTypes []string) ([][]float64, error) {
	if len(branchRates) == 0 {
		return nil, errors.New("curve: no branch rates")
	}
	if len(branchRates) != len(weights) {
		return nil, fmt.Errorf("curve: %d branch rates vs %d weights", len(branchRates), len(weights))
	}
	nlevels := len(branchRates[0])

	idxMean, idxStd, idxCov := -1, -1, -1
	var quantRows []int
	var quantPoints []float64
	for i, agg := range aggTypes {
		q, isQuant, err := ParseAggType(agg)
		if err != nil {
			return nil, err
		}
		switch {
		case isQuant:
			quantRows = append(quantRows, i)
			quantPoints = append(quantPoints, q)
		case agg == "mean":
			idxMean = i
		case agg == "std":
			idxStd = i
		case agg == "cov":
			idxCov = i
		}
	}

	out := make([][]float64, len(aggTypes))
	for i := range out {
		out[i] = make([]float64, nlevels)
	}

	if idxMean >= 0 || idxStd >= 0 || idxCov >= 0 {
		mean, std := WeightedMeanStd(branchRates, weights)
		if idxMean >= 0 {
			copy(out[idxMean], mean)
		}
		if idxStd >= 0 {
			copy(out[idxStd], std)
		}
		if idxCov >= 0 {
			copy(out[idxCov], CoV(mean, std))
		}
	}

	if len(quantPoints) > 0 {
		// Each level sorts independently; branch order by value can differ
		// from level to level.
		col := make([]float64, len(branchRates))
		for j := 0; j < nlevels; j++ {
			for i, row := range branchRates {
				col[i] = row[j]
			}
			qs := WeightedQuantiles(col, weights, quantPoints)
			for k, row := range quantRows {
				out[row][j] = qs[k]
			}
		}
	}

	return out, nil
}

// CompositeRates sums the component rate vectors of one composite branch.
func CompositeRates(branchHashes []string, componentRates map[string][]float64, nlevels int) ([]float64, error) {
	rates := make([]float64, nlevels)
	for _, h := range branchHashes {
		comp, ok := componentRates[h]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingDigest, h)
		}
		for j, v := range comp {
			rates[j] += v
		}
	}
	return rates, nil
}

// BuildBranchRates builds the full (branch, level) rate array for every
// composite branch in the hash table. Rates of independent sources are
// additive.
func BuildBranchRates(branchHashTable [][]string, componentRates map[string][]float64) ([][]float64, error) {
	nlevels := 0
	for _, v := range componentRates {
		nlevels = len(v)
		break
	}
	out := make([][]float64, len(branchHashTable))
	for i, row := range branchHashTable {
		rates, err := CompositeRates(row, componentRates, nlevels)
		if err != nil {
			return nil, err
		}
		out[i] = rates
	}
	return out, nil
}
