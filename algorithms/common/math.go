package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions shared across the metric algorithms, using gonum
// where it has a matching routine.

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	return stat.Mean(data, nil)
}

// Sum adds up a slice using gonum
func Sum(data []float64) float64 {
	return floats.Sum(data)
}

// Variance calculates the sample variance of a slice using gonum
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return stat.Variance(data, nil)
}

// StandardDeviation calculates the sample standard deviation
func StandardDeviation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return math.Sqrt(Variance(data))
}

// Percentile calculates the p-th percentile (p between 0 and 100) with linear
// interpolation between closest ranks. Returns NaN for empty input.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 || p < 0 || p > 100 {
		return math.NaN()
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Median calculates the 50th percentile
func Median(data []float64) float64 {
	return Percentile(data, 50)
}

// NaNMedian calculates the median ignoring NaN entries. All-NaN input yields NaN.
func NaNMedian(data []float64) float64 {
	valid := data[:0:0]
	for _, v := range data {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	return Median(valid)
}

// NaNMin returns the smallest non-NaN value, or NaN if none exists
func NaNMin(data []float64) float64 {
	out := math.NaN()
	for _, v := range data {
		if !math.IsNaN(v) && (math.IsNaN(out) || v < out) {
			out = v
		}
	}
	return out
}

// NaNMax returns the largest non-NaN value, or NaN if none exists
func NaNMax(data []float64) float64 {
	out := math.NaN()
	for _, v := range data {
		if !math.IsNaN(v) && (math.IsNaN(out) || v > out) {
			out = v
		}
	}
	return out
}

// ArgMax returns the index of the first maximum value, -1 for empty input
func ArgMax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(data); i++ {
		if data[i] > data[best] {
			best = i
		}
	}
	return best
}

// ArgMin returns the index of the first minimum value, -1 for empty input
func ArgMin(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(data); i++ {
		if data[i] < data[best] {
			best = i
		}
	}
	return best
}

// Diff returns successive differences, length len(data)-1
func Diff(data []float64) []float64 {
	if len(data) < 2 {
		return nil
	}
	out := make([]float64, len(data)-1)
	for i := 1; i < len(data); i++ {
		out[i-1] = data[i] - data[i-1]
	}
	return out
}

// Histogram bins data into nBins equal-width bins spanning [min, max] and
// returns the per-bin counts together with the nBins+1 bin edges. The last
// bin is closed on both sides, matching the usual histogram convention.
func Histogram(data []float64, nBins int) (counts []float64, edges []float64) {
	if len(data) == 0 || nBins <= 0 {
		return nil, nil
	}

	lo, hi := data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		// Degenerate range: numpy widens it by half a unit on each side
		lo -= 0.5
		hi += 0.5
	}

	counts = make([]float64, nBins)
	edges = make([]float64, nBins+1)
	width := (hi - lo) / float64(nBins)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	edges[nBins] = hi

	for _, v := range data {
		bin := int((v - lo) / width)
		if bin >= nBins {
			bin = nBins - 1
		}
		if bin < 0 {
			bin = 0
		}
		counts[bin]++
	}
	return counts, edges
}

// MedianFilter applies median filtering with the given window size. Samples
// beyond either edge count as zero, matching scipy.signal.medfilt, so a
// histogram's tails are damped toward zero rather than inflated.
func MedianFilter(data []float64, windowSize int) []float64 {
	if len(data) == 0 || windowSize <= 0 {
		return data
	}

	result := make([]float64, len(data))
	half := windowSize / 2

	for i := range data {
		window := make([]float64, windowSize)
		for k := 0; k < windowSize; k++ {
			if j := i - half + k; j >= 0 && j < len(data) {
				window[k] = data[j]
			}
		}
		sort.Float64s(window)

		if windowSize%2 == 0 {
			result[i] = (window[half-1] + window[half]) / 2.0
		} else {
			result[i] = window[half]
		}
	}

	return result
}

// LinRegression performs simple linear regression and returns slope, intercept
func LinRegression(x, y []float64) (slope, intercept float64) {
	if len(x) != len(y) || len(x) < 2 {
		return math.NaN(), math.NaN()
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	return beta, alpha
}

// Clamp constrains a value to a range
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
