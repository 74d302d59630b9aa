// Package duplicates finds and removes redundant spike detections: the same
// physical spike picked up more than once on one channel, either by the same
// unit or by two competing units. The train is scanned in overlapping batches
// so memory stays bounded while duplicates straddling a batch boundary are
// still caught.
package duplicates

import (
	"math"

	"github.com/spikeforge/unitqc/algorithms/spiketrain"
	"github.com/spikeforge/unitqc/logging"
)

// Params bounds the duplicate search. WindowSamples is the maximum distance
// in samples at which two spikes on the same peak channel count as one
// detection. IndexRadius limits the pair scan to index-adjacent spikes, which
// is a safe approximation on a time-sorted train.
type Params struct {
	WindowSamples float64 `json:"window_samples"`
	BatchSize     int     `json:"batch_size"`
	OverlapSize   int     `json:"overlap_size"`
	IndexRadius   int     `json:"index_radius"`
}

// DefaultParams returns the standard batch geometry
func DefaultParams(windowSamples float64) Params {
	return Params{
		WindowSamples: windowSamples,
		BatchSize:     10000,
		OverlapSize:   100,
		IndexRadius:   25,
	}
}

// Resolver detects duplicate spikes over a full spike train
type Resolver struct {
	params Params
	logger logging.Logger
}

// NewResolver creates a resolver with the given parameters
func NewResolver(params Params) *Resolver {
	return &Resolver{
		params: params,
		logger: logging.WithFields(logging.Fields{
			"component": "duplicate_resolver",
		}),
	}
}

// Mask returns a removal mask over the whole train: true means the spike is a
// duplicate and should be dropped. peakChannels maps each unit to its peak
// channel; sparse cluster ids index it through an internal dense renumbering.
//
// Batches are processed as one sequential pass over half-open windows. The
// batch owning the lower index range is authoritative for the overlap zone:
// a later batch sees the earlier decisions but cannot revise them.
func (r *Resolver) Mask(train *spiketrain.Train, peakChannels []int) []bool {
	n := train.Len()
	mask := make([]bool, n)
	if n == 0 {
		return mask
	}

	flat := flattenClusters(train.Clusters)

	step := r.params.BatchSize - r.params.OverlapSize
	if step <= 0 {
		step = r.params.BatchSize
	}

	decided := 0 // everything below this index is owned by an earlier batch
	for start := 0; start < n; start += step {
		end := min(start+r.params.BatchSize, n)
		r.resolveBatch(train, flat, peakChannels, mask, start, end, decided)
		decided = end
		if end == n {
			break
		}
	}

	removed := 0
	for _, m := range mask {
		if m {
			removed++
		}
	}
	r.logger.Info("duplicate spike scan complete", logging.Fields{
		"spikes":  n,
		"removed": removed,
	})

	return mask
}

// resolveBatch marks duplicates inside [start, end). Decisions for indices
// below writeFrom were made by the previous batch and are read-only here.
func (r *Resolver) resolveBatch(train *spiketrain.Train, flat []int, peakChannels []int, mask []bool, start, end, writeFrom int) {
	// batch-local spike counts per cluster decide inter-unit removals
	counts := make(map[int32]int, 64)
	for i := start; i < end; i++ {
		counts[train.Clusters[i]]++
	}

	for i := start; i < end; i++ {
		if mask[i] {
			continue
		}
		lo := max(i-r.params.IndexRadius, start)
		hi := min(i+r.params.IndexRadius, end)
		for j := lo; j < hi; j++ {
			if j == i || mask[i] || mask[j] {
				continue
			}
			if peakChannels[flat[i]] != peakChannels[flat[j]] {
				continue
			}
			if math.Abs(train.TimesSamples[i]-train.TimesSamples[j]) > r.params.WindowSamples {
				continue
			}

			var drop int
			if train.Clusters[i] == train.Clusters[j] {
				// intra-unit pair: keep the higher-amplitude detection
				if train.Amplitudes[i] < train.Amplitudes[j] {
					drop = i
				} else {
					drop = j
				}
			} else {
				// inter-unit pair: drop the spike from the more prolific
				// cluster, preserving rarer units
				if counts[train.Clusters[i]] > counts[train.Clusters[j]] {
					drop = i
				} else {
					drop = j
				}
			}

			if drop >= writeFrom {
				mask[drop] = true
			}
		}
	}
}

// flattenClusters densely renumbers sparse cluster ids so they can index the
// peak-channel lookup
func flattenClusters(clusters []int32) []int {
	ids := make(map[int32]int)
	var order []int32
	for _, c := range clusters {
		if _, ok := ids[c]; !ok {
			ids[c] = 0
			order = append(order, c)
		}
	}
	// dense ids follow ascending cluster id, matching the unit-array order
	sortInt32(order)
	for i, c := range order {
		ids[c] = i
	}

	flat := make([]int, len(clusters))
	for i, c := range clusters {
		flat[i] = ids[c]
	}
	return flat
}

func sortInt32(s []int32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
