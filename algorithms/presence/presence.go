// Package presence measures how continuously a unit fires across its
// selected time span.
package presence

import (
	"math"

	"github.com/spikeforge/unitqc/algorithms/common"
)

// activeBinFraction marks a bin active when its spike count reaches this
// fraction of the 90th-percentile bin count. Anchoring on a high percentile
// rather than the maximum keeps a few abnormally dense bins from blanking
// the rest of the recording.
const activeBinFraction = 0.05

// Ratio returns the fraction of fixed-width time bins in [start, end) that
// contain meaningful activity. Spans shorter than one bin yield NaN.
func Ratio(times []float64, start, end, binSize float64) float64 {
	if binSize <= 0 || end-start < binSize {
		return math.NaN()
	}

	var binStarts []float64
	for t := start; t < end; t += binSize {
		binStarts = append(binStarts, t)
	}
	nBins := len(binStarts) - 1
	if nBins < 1 {
		return math.NaN()
	}

	counts := make([]float64, nBins)
	for _, t := range times {
		for b := 0; b < nBins; b++ {
			if t >= binStarts[b] && t < binStarts[b]+binSize {
				counts[b]++
				break
			}
		}
	}

	threshold := activeBinFraction * common.Percentile(counts, 90)
	active := 0.0
	for _, c := range counts {
		if c >= threshold {
			active++
		}
	}
	return active / float64(nBins)
}
