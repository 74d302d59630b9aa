// Package drift estimates how far a unit moved along the probe over the
// recording. Each spike gets a depth from its PC loadings weighted by channel
// position; the median depth per time bin then tracks the unit's position.
package drift

import (
	"math"

	"github.com/spikeforge/unitqc/algorithms/common"
)

// Estimate returns the maximum and cumulative drift of a unit.
//
// pc1 is the unit's first-PC loading per spike and channel slot, and
// channelZ the vertical position of the channel behind each slot. Negative
// loadings carry no depth signal and are clipped to zero. The bin width is
// halved when the unit's active lifetime is shorter than two default bins,
// guaranteeing at least two bins. Max drift is the range of the per-bin
// median depth; cumulative drift sums the absolute successive differences,
// catching oscillatory movement the range alone would miss.
func Estimate(pc1 [][]float64, channelZ []float64, times []float64, binSize float64) (maxDrift, cumulativeDrift float64) {
	if len(times) == 0 || len(pc1) != len(times) || binSize <= 0 {
		return math.NaN(), math.NaN()
	}

	depths := spikeDepths(pc1, channelZ)

	tMin, tMax := times[0], times[0]
	for _, t := range times {
		if t < tMin {
			tMin = t
		}
		if t > tMax {
			tMax = t
		}
	}
	if tMax-tMin < 2*binSize {
		binSize = (tMax - tMin) / 2
	}
	if binSize <= 0 {
		return math.NaN(), math.NaN()
	}

	var binStarts []float64
	for t := tMin; t < tMax; t += binSize {
		binStarts = append(binStarts, t)
	}
	nBins := len(binStarts) - 1
	if nBins < 1 {
		return math.NaN(), math.NaN()
	}

	medianDepth := make([]float64, nBins)
	for b := 0; b < nBins; b++ {
		var inBin []float64
		for i, t := range times {
			if t >= binStarts[b] && t < binStarts[b]+binSize {
				inBin = append(inBin, depths[i])
			}
		}
		medianDepth[b] = common.NaNMedian(inBin)
	}

	maxDrift = common.NaNMax(medianDepth) - common.NaNMin(medianDepth)

	// successive differences over the non-NaN medians only
	valid := medianDepth[:0:0]
	for _, d := range medianDepth {
		if !math.IsNaN(d) {
			valid = append(valid, d)
		}
	}
	cumulativeDrift = 0
	for _, d := range common.Diff(valid) {
		cumulativeDrift += math.Abs(d)
	}
	if len(valid) == 0 {
		cumulativeDrift = math.NaN()
	}
	return maxDrift, cumulativeDrift
}

// spikeDepths converts per-spike PC loadings into depth estimates: channel
// positions weighted by the squared loading, normalized by total squared
// loading. A spike with no positive loading has no depth and becomes NaN.
func spikeDepths(pc1 [][]float64, channelZ []float64) []float64 {
	depths := make([]float64, len(pc1))
	for i, loadings := range pc1 {
		var num, den float64
		for s, l := range loadings {
			if l < 0 || s >= len(channelZ) {
				continue
			}
			w := l * l
			num += channelZ[s] * w
			den += w
		}
		if den == 0 {
			depths[i] = math.NaN()
		} else {
			depths[i] = num / den
		}
	}
	return depths
}
