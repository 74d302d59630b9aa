package waveform

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"

	"github.com/spikeforge/unitqc/algorithms/common"
	"github.com/spikeforge/unitqc/algorithms/spiketrain"
)

const (
	// maxChannelPitch is the vertical channel spacing, in the same units as
	// the channel positions, at or above which the decay fit is skipped.
	// Only dense probe geometries sample the amplitude falloff finely enough
	// to fit.
	maxChannelPitch = 30.0

	// lateralTolerance bounds how far off the peak channel's vertical line a
	// channel may sit and still contribute to the fit
	lateralTolerance = 33.0

	minLinearFitChannels = 5
	useLinearFitChannels = 6
	minExpFitChannels    = 8
	useExpFitChannels    = 10

	maxDecayFitEvaluations = 5000
)

// spatialDecay fits how the template amplitude falls off with distance from
// the peak channel, over channels in the same probe column. Each channel
// contributes its maximum absolute template value. The linear fit returns the
// raw slope; the exponential fit A*exp(m*d) returns the rate m. Too few
// usable channels, a probe too sparse for the fit or a failed fit all yield
// NaN.
func (a *Analyzer) spatialDecay(waveforms [][][]float64, unit, peakChannel int, positions []spiketrain.ChannelPosition) float64 {
	if len(positions) == 0 || peakChannel >= len(positions) {
		return math.NaN()
	}
	if p := channelPitch(positions); p == 0 || p >= maxChannelPitch {
		return math.NaN()
	}

	peakPos := positions[peakChannel]
	type sample struct {
		dist float64
		amp  float64
	}
	var samples []sample
	for c, pos := range positions {
		if math.Abs(pos.X-peakPos.X) > lateralTolerance {
			continue
		}
		dx, dy := pos.X-peakPos.X, pos.Y-peakPos.Y
		samples = append(samples, sample{
			dist: math.Sqrt(dx*dx + dy*dy),
			amp:  maxAbsValue(channelTrace(waveforms[unit], c)),
		})
	}

	minNeeded, useN := minExpFitChannels, useExpFitChannels
	if a.cfg.LinearDecayFit {
		minNeeded, useN = minLinearFitChannels, useLinearFitChannels
	}
	if len(samples) < minNeeded {
		return math.NaN()
	}

	// nearest channels dominate the decay; fit only the closest few
	sort.Slice(samples, func(i, j int) bool { return samples[i].dist < samples[j].dist })
	if len(samples) > useN {
		samples = samples[:useN]
	}

	dists := make([]float64, len(samples))
	amps := make([]float64, len(samples))
	for i, s := range samples {
		dists[i] = s.dist
		amps[i] = s.amp
	}
	if a.cfg.NormalizeSpatialDecay {
		peak := common.NaNMax(amps)
		if peak > 0 {
			for i := range amps {
				amps[i] /= peak
			}
		}
	}

	if a.cfg.LinearDecayFit {
		slope, _ := common.LinRegression(dists, amps)
		return slope
	}
	return fitExpDecayRate(dists, amps)
}

// fitExpDecayRate fits amp = A*exp(m*dist) by least squares and returns m
func fitExpDecayRate(dists, amps []float64) float64 {
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			m, amp := p[0], p[1]
			sse := 0.0
			for i, d := range dists {
				r := amps[i] - amp*math.Exp(m*d)
				sse += r * r
			}
			return sse
		},
	}
	settings := &optimize.Settings{FuncEvaluations: maxDecayFitEvaluations}
	result, err := optimize.Minimize(problem, []float64{1.0, 0.1}, settings, &optimize.NelderMead{})
	if err != nil || result == nil {
		return math.NaN()
	}
	return result.X[0]
}

// channelPitch is the smallest nonzero vertical spacing between channels
func channelPitch(positions []spiketrain.ChannelPosition) float64 {
	zs := make([]float64, 0, len(positions))
	for _, p := range positions {
		zs = append(zs, p.Y)
	}
	sort.Float64s(zs)
	pitch := math.Inf(1)
	for i := 1; i < len(zs); i++ {
		if d := zs[i] - zs[i-1]; d > 0 && d < pitch {
			pitch = d
		}
	}
	if math.IsInf(pitch, 1) {
		return 0
	}
	return pitch
}
