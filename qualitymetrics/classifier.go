package qualitymetrics

import (
	"math"

	"github.com/spikeforge/unitqc/qualitymetrics/config"
)

// UnitType is the terminal classification of one unit
type UnitType int

const (
	UnitNoise UnitType = iota
	UnitGood
	UnitMUA
	UnitNonSomaGood
	UnitNonSomaMUA
)

// Label returns the display label. The non-somatic labels depend on whether
// good and MUA non-somatic units are reported separately.
func (u UnitType) Label(split bool) string {
	switch u {
	case UnitNoise:
		return "NOISE"
	case UnitGood:
		return "GOOD"
	case UnitMUA:
		return "MUA"
	case UnitNonSomaGood:
		if split {
			return "NON-SOMA GOOD"
		}
		return "NON-SOMA"
	case UnitNonSomaMUA:
		return "NON-SOMA MUA"
	}
	return ""
}

// Classify evaluates the ordered rule set over the completed metric table
// and returns one type per unit row.
//
// Rules fire in a fixed order: noise first, then MUA over the remainder,
// everything left is good. A separate non-somatic predicate then relabels
// non-noise units. All comparisons against NaN metrics are false, so a unit
// missing a metric is never failed by the rule that needs it.
func Classify(t *Table, cfg *config.Config) []UnitType {
	n := t.Len()
	types := make([]UnitType, n)

	for i := 0; i < n; i++ {
		switch {
		case isNoise(t, i, cfg):
			types[i] = UnitNoise
		case isMUA(t, i, cfg):
			types[i] = UnitMUA
		default:
			types[i] = UnitGood
		}
	}

	for i := 0; i < n; i++ {
		if types[i] == UnitNoise || !isNonSomatic(t, i, cfg) {
			continue
		}
		if cfg.SplitGoodAndMUANonSomatic {
			if types[i] == UnitGood {
				types[i] = UnitNonSomaGood
			} else {
				types[i] = UnitNonSomaMUA
			}
		} else {
			types[i] = UnitNonSomaGood
		}
	}
	return types
}

// Labels renders the classification as display strings
func Labels(types []UnitType, cfg *config.Config) []string {
	out := make([]string, len(types))
	for i, u := range types {
		out[i] = u.Label(cfg.SplitGoodAndMUANonSomatic)
	}
	return out
}

// isNoise flags waveforms that cannot be a spike: undetectable or excess
// peaks and troughs, implausible duration, an unquiet baseline or an
// amplitude profile that does not decay over the probe
func isNoise(t *Table, i int, cfg *config.Config) bool {
	if math.IsNaN(t.Get(ColNPeaks, i)) {
		return true
	}
	if t.Get(ColNPeaks, i) > cfg.MaxNPeaks ||
		t.Get(ColNTroughs, i) > cfg.MaxNTroughs ||
		t.Get(ColWaveformDuration, i) < cfg.MinWvDurationMicros ||
		t.Get(ColWaveformDuration, i) > cfg.MaxWvDurationMicros ||
		t.Get(ColBaselineFlatness, i) > cfg.MaxWvBaselineFraction ||
		t.Get(ColScndPeakToTroughRatio, i) > cfg.MaxScndPeakToTroughRatio {
		return true
	}
	if cfg.ComputeSpatialDecay {
		slope := t.Get(ColSpatialDecaySlope, i)
		if cfg.LinearDecayFit {
			if slope < cfg.MinSpatialDecaySlope {
				return true
			}
		} else if slope < cfg.MinSpatialDecaySlopeExp || slope > cfg.MaxSpatialDecaySlopeExp {
			return true
		}
	}
	return false
}

// isMUA flags units whose waveform looks neural but whose spike train is too
// contaminated or incomplete to be a single cell
func isMUA(t *Table, i int, cfg *config.Config) bool {
	if t.Get(ColPercentMissingGaussian, i) > cfg.MaxPercSpikesMissing ||
		t.Get(ColNSpikes, i) < cfg.MinNumSpikes ||
		t.Get(ColFractionRPVs, i) > cfg.MaxRPV ||
		t.Get(ColPresenceRatio, i) < cfg.MinPresenceRatio {
		return true
	}
	if cfg.UseRawAmplitudes {
		if t.Get(ColRawAmplitude, i) < cfg.MinAmplitude ||
			t.Get(ColSignalToNoiseRatio, i) < cfg.MinSNR {
			return true
		}
	}
	if cfg.ComputeDrift && t.Get(ColMaxDrift, i) > cfg.MaxDrift {
		return true
	}
	if cfg.ComputeDistanceMetrics {
		if t.Get(ColIsolationDistance, i) < cfg.IsoDMin ||
			t.Get(ColLRatio, i) > cfg.LRatioMax {
			return true
		}
	}
	return false
}

// isNonSomatic detects axonal and dendritic waveforms: either the peak
// before the trough dwarfs the one after it alongside a narrow first peak
// and trough, or the main peak outright dominates the trough
func isNonSomatic(t *Table, i int, cfg *config.Config) bool {
	narrowDominantFirstPeak := t.Get(ColTroughToPeak2Ratio, i) < cfg.MinTroughToPeak2Ratio &&
		t.Get(ColPeakBeforeWidth, i) < cfg.MinWidthFirstPeak &&
		t.Get(ColTroughWidth, i) < cfg.MinWidthMainTrough &&
		t.Get(ColPeak1ToPeak2Ratio, i) > cfg.MaxPeak1ToPeak2Ratio
	return narrowDominantFirstPeak ||
		t.Get(ColMainPeakToTroughRatio, i) > cfg.MaxMainPeakToTrough
}
