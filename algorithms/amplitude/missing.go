// Package amplitude estimates, per unit and per time chunk, the fraction of
// spikes the sorter failed to detect. Spike amplitudes follow a roughly
// Gaussian distribution; detection truncates its lower tail, so the area of a
// fitted truncated Gaussian below the cutoff estimates the missing fraction.
package amplitude

import (
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/spikeforge/unitqc/algorithms/common"
	"github.com/spikeforge/unitqc/logging"
)

const (
	// nBins is the amplitude histogram resolution
	nBins = 50
	// minSpikesPerChunk is the statistical floor: chunks at or below this
	// spike count yield NaN
	minSpikesPerChunk = 5
	// outlierIQRFactor trims extreme high-amplitude outliers before binning
	outlierIQRFactor = 10.0
	// cutoffFailPercent is reported when the histogram is already cut off at
	// its peak and a truncated-Gaussian fit is unidentifiable. A small fixed
	// non-zero value, deliberately neither 0 nor NaN, so the failure stays
	// visible downstream.
	cutoffFailPercent = 1.0
	// maxFitEvaluations caps the curve fit so a degenerate chunk cannot hang
	maxFitEvaluations = 10000
)

// Result holds the per-chunk missing-spike estimates, in percent. Gaussian is
// the primary estimate; Symmetric is the mirror-based alternative.
type Result struct {
	Gaussian  []float64
	Symmetric []float64
}

// Estimator fits per-chunk amplitude distributions
type Estimator struct {
	logger logging.Logger
}

// NewEstimator creates a missing-spike estimator
func NewEstimator() *Estimator {
	return &Estimator{
		logger: logging.WithFields(logging.Fields{
			"component": "missing_spike_estimator",
		}),
	}
}

// Estimate computes both missing-spike estimates for every time chunk.
// chunkEdges has one more entry than there are chunks. Chunks with too few
// spikes yield NaN for both estimates.
func (e *Estimator) Estimate(times, amplitudes []float64, chunkEdges []float64) Result {
	nChunks := len(chunkEdges) - 1
	if nChunks < 0 {
		nChunks = 0
	}
	res := Result{
		Gaussian:  make([]float64, nChunks),
		Symmetric: make([]float64, nChunks),
	}

	for c := 0; c < nChunks; c++ {
		res.Gaussian[c], res.Symmetric[c] = e.estimateChunk(times, amplitudes, chunkEdges[c], chunkEdges[c+1])
	}
	return res
}

func (e *Estimator) estimateChunk(times, amplitudes []float64, t0, t1 float64) (gaussian, symmetric float64) {
	var amps []float64
	for i, t := range times {
		if t >= t0 && t < t1 {
			amps = append(amps, amplitudes[i])
		}
	}
	if len(amps) == 0 {
		return math.NaN(), math.NaN()
	}

	// trim extreme high-amplitude outliers beyond Q99 + 10*IQR
	q1 := common.Percentile(amps, 1)
	q99 := common.Percentile(amps, 99)
	cutHigh := q99 + outlierIQRFactor*(q99-q1)
	trimmed := amps[:0:0]
	for _, a := range amps {
		if a <= cutHigh {
			trimmed = append(trimmed, a)
		}
	}

	counts, edges := common.Histogram(trimmed, nBins)
	if len(trimmed) <= minSpikesPerChunk {
		return math.NaN(), math.NaN()
	}
	binStep := edges[1] - edges[0]

	symmetric = mirrorEstimate(counts, edges, binStep)
	gaussian = e.gaussianEstimate(counts, edges, binStep, trimmed)
	return gaussian, symmetric
}

// mirrorEstimate smooths the histogram, mirrors its descending tail about
// the mode and reports the area deficit of the observed distribution against
// the mirrored surrogate. A negative deficit means the distribution is not
// truncated and clamps to 0.
func mirrorEstimate(counts, edges []float64, binStep float64) float64 {
	smooth := common.MedianFilter(counts, 5)
	modeIdx := common.ArgMax(smooth)

	// descending tail above the mode, read from the far end inward
	var descending []float64
	for k := len(smooth) - 1; k > modeIdx; k-- {
		descending = append(descending, smooth[k])
	}
	surrogate := make([]float64, 0, 2*len(descending))
	surrogate = append(surrogate, descending...)
	for k := len(descending) - 1; k >= 0; k-- {
		surrogate = append(surrogate, descending[k])
	}

	// anchor the surrogate at the histogram's upper edge and step back;
	// bins implying negative amplitude are discarded
	endPoint := edges[len(edges)-1]
	startPoint := endPoint - float64(len(surrogate)-1)*binStep
	surrogateArea := 0.0
	for k, v := range surrogate {
		if startPoint+float64(k)*binStep >= 0 {
			surrogateArea += v * binStep
		}
	}

	observedArea := common.Sum(counts) * binStep

	if surrogateArea <= 0 {
		return 0
	}
	pMissing := (surrogateArea - observedArea) / surrogateArea * 100
	if pMissing < 0 {
		return 0
	}
	return pMissing
}

// gaussianEstimate pads the histogram down to zero amplitude, checks the
// distribution is not already cut off at its peak and fits a left-truncated
// Gaussian. The missing percentage is the fitted area below the cutoff.
func (e *Estimator) gaussianEstimate(counts, edges []float64, binStep float64, amps []float64) float64 {
	centers := make([]float64, len(counts))
	for i := range counts {
		centers[i] = edges[i] + binStep/2
	}

	// pad with zero-count bins down to zero amplitude: detection systems
	// cannot report negative amplitudes
	nextLow := centers[0] - binStep
	minBin := nextLow - binStep*math.Ceil(nextLow/binStep)
	var domain, padded []float64
	for v := minBin; v < nextLow+binStep/4; v += binStep {
		domain = append(domain, v)
		padded = append(padded, 0)
	}
	domain = append(domain, centers...)
	padded = append(padded, counts...)

	if peakIsCutoff(padded) {
		return cutoffFailPercent
	}

	maxCount := common.NaNMax(padded)
	modeSeed := modeSeedValue(counts, edges)
	cutoff := common.Percentile(amps, 1)
	p0 := []float64{maxCount, modeSeed, common.StandardDeviation(amps)}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			sse := 0.0
			for i, x := range domain {
				r := gaussianCut(x, p[0], p[1], p[2], cutoff) - padded[i]
				sse += r * r
			}
			return sse
		},
	}
	settings := &optimize.Settings{FuncEvaluations: maxFitEvaluations}
	fit, err := optimize.Minimize(problem, p0, settings, &optimize.NelderMead{})
	if err != nil {
		e.logger.Debug("truncated gaussian fit failed", logging.Fields{"error": err.Error()})
		return math.NaN()
	}

	mean, std := fit.X[1], fit.X[2]
	area := distuv.UnitNormal.CDF((mean - cutoff) / math.Abs(std))
	return 100 * (1 - area)
}

// gaussianCut is a Gaussian density forced to zero below the cutoff c
func gaussianCut(x, a, u, s, c float64) float64 {
	if x < c {
		return 0
	}
	d := x - u
	return a * math.Exp(-d*d/(2*s*s))
}

// peakIsCutoff reports whether the histogram climbs straight from zero to
// its maximum: in that case fewer than half the spikes were recorded and a
// truncated fit is unidentifiable.
func peakIsCutoff(counts []float64) bool {
	maxVal := common.NaNMax(counts)
	maxDiff := math.Inf(-1)
	for _, d := range common.Diff(counts) {
		if d > maxDiff {
			maxDiff = d
		}
	}
	return maxVal == maxDiff
}

// modeSeedValue picks the fit's location seed from the histogram mode. Ties
// across several equally full bins resolve to their mean index.
func modeSeedValue(counts, edges []float64) float64 {
	maxCount := common.NaNMax(counts)
	var sum, n float64
	for i, c := range counts {
		if c == maxCount {
			sum += float64(i)
			n++
		}
	}
	if n > 1 {
		return edges[int(sum/n)]
	}
	return edges[common.ArgMax(counts)]
}
