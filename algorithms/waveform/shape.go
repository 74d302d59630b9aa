// Package waveform derives shape metrics from a unit's peak-channel template
// waveform: peak and trough counts, duration, amplitude ratios, baseline
// flatness and the spatial decay of amplitude across neighboring channels.
// These metrics separate somatic spikes from noise and from axonal or
// dendritic signal.
package waveform

import (
	"math"

	"github.com/spikeforge/unitqc/algorithms/common"
	"github.com/spikeforge/unitqc/algorithms/spiketrain"
	"github.com/spikeforge/unitqc/logging"
)

// relaxedProminenceFraction is the second-chance detection threshold used
// when no peak clears the configured prominence
const relaxedProminenceFraction = 0.01

// Config controls the shape analysis
type Config struct {
	SampleRate            float64 `json:"sample_rate"`
	MinProminenceFraction float64 `json:"min_prominence_fraction"`
	// Baseline window in samples; a negative start disables the metric
	BaselineWindowStart int `json:"baseline_window_start"`
	BaselineWindowEnd   int `json:"baseline_window_end"`

	ComputeSpatialDecay   bool `json:"compute_spatial_decay"`
	LinearDecayFit        bool `json:"linear_decay_fit"`
	NormalizeSpatialDecay bool `json:"normalize_spatial_decay"`
}

// Metrics are the derived shape quantities. NaN means not computable for
// this waveform.
type Metrics struct {
	NPeaks                float64
	NTroughs              float64
	DurationMicros        float64
	SpatialDecaySlope     float64
	BaselineFlatness      float64
	ScndPeakToTroughRatio float64
	Peak1ToPeak2Ratio     float64
	MainPeakToTroughRatio float64
	TroughToPeak2Ratio    float64
	PeakBeforeWidth       float64
	TroughWidth           float64
}

// Analyzer computes shape metrics for template waveforms
type Analyzer struct {
	cfg    Config
	logger logging.Logger
}

// NewAnalyzer creates a shape analyzer
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{
		cfg: cfg,
		logger: logging.WithFields(logging.Fields{
			"component": "waveform_analyzer",
		}),
	}
}

// Analyze computes all shape metrics for one unit. Waveforms are indexed
// [unit][time][channel]. Any NaN in the peak-channel trace short-circuits
// every metric to NaN.
func (a *Analyzer) Analyze(waveforms [][][]float64, unit int, peakChannels []int, positions []spiketrain.ChannelPosition) Metrics {
	m := nanMetrics()
	if unit < 0 || unit >= len(waveforms) || unit >= len(peakChannels) {
		return m
	}

	w := channelTrace(waveforms[unit], peakChannels[unit])
	if len(w) < 3 || hasNaN(w) {
		a.logger.Debug("waveform not analyzable", logging.Fields{"unit": unit})
		return m
	}

	maxAbs := maxAbsValue(w)
	if maxAbs == 0 {
		return m
	}
	minProm := a.cfg.MinProminenceFraction * maxAbs

	// dominant trough via prominence detection on the inverted trace, with
	// the global minimum as fallback
	troughLocs, troughWidth := a.detectTroughs(w, minProm)
	m.NTroughs = float64(len(troughLocs))
	m.TroughWidth = troughWidth

	mainTroughVal := w[troughLocs[0]]
	troughLoc := troughLocs[0]
	for _, l := range troughLocs {
		if w[l] < mainTroughVal {
			mainTroughVal = w[l]
			troughLoc = l
		}
	}

	before, peakBeforeWidth, usedMaxBefore := a.detectSidePeaks(w[:troughLoc], minProm, maxAbs, 0, troughLoc)
	after, _, usedMaxAfter := a.detectSidePeaks(w[troughLoc:], minProm, maxAbs, troughLoc, troughLoc)
	m.PeakBeforeWidth = peakBeforeWidth

	// when both sides needed a fallback, only the side with the larger raw
	// amplitude is trusted
	if usedMaxBefore && usedMaxAfter {
		if maxValueAt(w, before) > maxValueAt(w, after) {
			usedMaxBefore = false
		} else {
			usedMaxAfter = false
		}
	}

	mainPeakBefore := maxValueAt(w, before)
	mainPeakAfter := maxValueAt(w, after)

	switch {
	case usedMaxBefore && mainPeakBefore < minProm*0.5:
		m.NPeaks = float64(len(after))
	case usedMaxAfter && mainPeakAfter < minProm*0.5:
		m.NPeaks = float64(len(before))
	default:
		m.NPeaks = float64(len(before) + len(after))
	}

	m.DurationMicros = a.peakTroughDuration(w)

	m.ScndPeakToTroughRatio = amplitudeRatio(mainPeakAfter, mainTroughVal)
	m.Peak1ToPeak2Ratio = amplitudeRatio(mainPeakBefore, mainPeakAfter)
	m.MainPeakToTroughRatio = amplitudeRatio(math.Max(mainPeakBefore, mainPeakAfter), mainTroughVal)
	m.TroughToPeak2Ratio = amplitudeRatio(mainTroughVal, mainPeakBefore)

	if a.cfg.ComputeSpatialDecay {
		m.SpatialDecaySlope = a.spatialDecay(waveforms, unit, peakChannels[unit], positions)
	}

	if a.cfg.BaselineWindowStart >= 0 && a.cfg.BaselineWindowEnd > a.cfg.BaselineWindowStart &&
		a.cfg.BaselineWindowEnd <= len(w) {
		m.BaselineFlatness = maxAbsValue(w[a.cfg.BaselineWindowStart:a.cfg.BaselineWindowEnd]) / maxAbs
	}

	return m
}

// detectTroughs finds trough locations on the inverted trace. With no trough
// above the prominence threshold the global minimum stands in, with an
// undefined width.
func (a *Analyzer) detectTroughs(w []float64, minProm float64) (locs []int, width float64) {
	inverted := make([]float64, len(w))
	for i, v := range w {
		inverted[i] = -v
	}

	troughs := FindPeaks(inverted, minProm)
	switch len(troughs) {
	case 0:
		return []int{common.ArgMin(w)}, math.NaN()
	case 1:
		return []int{troughs[0].Index}, troughs[0].Width
	default:
		locs = make([]int, len(troughs))
		best := 0
		for i, t := range troughs {
			locs[i] = t.Index
			if t.Prominence > troughs[best].Prominence {
				best = i
			}
		}
		return locs, troughs[best].Width
	}
}

// detectSidePeaks runs the three-level peak search on one side of the main
// trough: strict prominence, then a much lower relaxed prominence keeping
// only the most prominent hit, then the side's raw maximum. usedFallback
// reports that the strict level found nothing, which downstream
// reconciliation needs. Indices in the result are in full-trace coordinates
// via offset.
func (a *Analyzer) detectSidePeaks(side []float64, minProm, maxAbs float64, offset, troughLoc int) (locs []int, width float64, usedFallback bool) {
	width = math.NaN()

	// a side shorter than 3 samples cannot hold a detectable peak
	if troughLoc > 2 && len(side) >= 3 {
		peaks := FindPeaks(side, minProm)
		if len(peaks) > 0 {
			best := 0
			for i, p := range peaks {
				locs = append(locs, p.Index+offset)
				if p.Prominence > peaks[best].Prominence {
					best = i
				}
			}
			return locs, peaks[best].Width, false
		}
	}

	usedFallback = true

	if troughLoc > 2 && len(side) >= 3 {
		relaxed := FindPeaks(side, relaxedProminenceFraction*maxAbs)
		if len(relaxed) > 1 {
			best := 0
			for i, p := range relaxed {
				if p.Prominence > relaxed[best].Prominence {
					best = i
				}
			}
			return []int{relaxed[best].Index + offset}, relaxed[best].Width, true
		}
		if len(relaxed) == 1 {
			// a single relaxed hit keeps its location but its width is not
			// trusted
			return []int{relaxed[0].Index + offset}, math.NaN(), true
		}
	}

	if len(side) == 0 {
		return []int{offset}, math.NaN(), true
	}
	return []int{common.ArgMax(side) + offset}, math.NaN(), true
}

// peakTroughDuration measures the time between the waveform's dominant
// extremum and the opposite extremum following it, in microseconds. The sign
// of the dominant extremum decides which side counts as peak.
func (a *Analyzer) peakTroughDuration(w []float64) float64 {
	maxLoc := 0
	for i, v := range w {
		if math.Abs(v) > math.Abs(w[maxLoc]) {
			maxLoc = i
		}
	}

	var peakLoc, troughLoc int
	switch {
	case w[maxLoc] > 0:
		peakLoc = maxLoc
		troughLoc = common.ArgMin(w[maxLoc:]) + maxLoc
	case w[maxLoc] < 0:
		troughLoc = maxLoc
		peakLoc = common.ArgMax(w[maxLoc:]) + maxLoc
	default:
		return math.NaN()
	}

	return 1e6 * math.Abs(float64(troughLoc-peakLoc)) / a.cfg.SampleRate
}

// amplitudeRatio is the directional ratio |a/b|: a zero denominator yields
// +Inf, then a zero numerator yields 0
func amplitudeRatio(num, den float64) float64 {
	if den == 0 {
		return math.Inf(1)
	}
	if num == 0 {
		return 0
	}
	return math.Abs(num / den)
}

func nanMetrics() Metrics {
	nan := math.NaN()
	return Metrics{
		NPeaks: nan, NTroughs: nan, DurationMicros: nan,
		SpatialDecaySlope: nan, BaselineFlatness: nan,
		ScndPeakToTroughRatio: nan, Peak1ToPeak2Ratio: nan,
		MainPeakToTroughRatio: nan, TroughToPeak2Ratio: nan,
		PeakBeforeWidth: nan, TroughWidth: nan,
	}
}

// channelTrace extracts one channel's amplitude-over-time trace
func channelTrace(wf [][]float64, channel int) []float64 {
	trace := make([]float64, len(wf))
	for t := range wf {
		trace[t] = wf[t][channel]
	}
	return trace
}

func hasNaN(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func maxAbsValue(x []float64) float64 {
	out := 0.0
	for _, v := range x {
		if math.Abs(v) > out {
			out = math.Abs(v)
		}
	}
	return out
}

// maxValueAt returns the largest trace value over the given indices
func maxValueAt(w []float64, locs []int) float64 {
	out := math.Inf(-1)
	for _, l := range locs {
		if w[l] > out {
			out = w[l]
		}
	}
	return out
}
