package duplicates

import (
	"github.com/spikeforge/unitqc/algorithms/spiketrain"
)

// Apply returns pruned copies of the train and, when present, the PC feature
// loadings, with masked spikes removed. The inputs are never mutated so the
// caller can discard the originals or re-run with different parameters.
func Apply(train *spiketrain.Train, pc *spiketrain.PCFeatures, mask []bool) (*spiketrain.Train, *spiketrain.PCFeatures) {
	kept := 0
	for _, m := range mask {
		if !m {
			kept++
		}
	}

	out := &spiketrain.Train{
		TimesSeconds: make([]float64, 0, kept),
		Clusters:     make([]int32, 0, kept),
		Amplitudes:   make([]float64, 0, kept),
	}
	if len(train.TimesSamples) > 0 {
		out.TimesSamples = make([]float64, 0, kept)
	}

	var outPC *spiketrain.PCFeatures
	if pc != nil {
		outPC = &spiketrain.PCFeatures{
			Loadings:     make([][][]float64, 0, kept),
			ChannelIndex: pc.ChannelIndex,
		}
	}

	for i, m := range mask {
		if m {
			continue
		}
		out.TimesSeconds = append(out.TimesSeconds, train.TimesSeconds[i])
		out.Clusters = append(out.Clusters, train.Clusters[i])
		out.Amplitudes = append(out.Amplitudes, train.Amplitudes[i])
		if len(train.TimesSamples) > 0 {
			out.TimesSamples = append(out.TimesSamples, train.TimesSamples[i])
		}
		if outPC != nil {
			outPC.Loadings = append(outPC.Loadings, pc.Loadings[i])
		}
	}

	return out, outPC
}

// NonEmptyUnits returns, in ascending order, the unit ids that still own at
// least one spike after masking. Units that lost every spike are dropped from
// all per-unit outputs; surviving ids keep their original numbering.
func NonEmptyUnits(clusters []int32, mask []bool) []int32 {
	seen := make(map[int32]bool)
	for i, c := range clusters {
		if !mask[i] && c >= 0 {
			seen[c] = true
		}
	}

	units := make([]int32, 0, len(seen))
	for c := range seen {
		units = append(units, c)
	}
	sortInt32(units)
	return units
}
