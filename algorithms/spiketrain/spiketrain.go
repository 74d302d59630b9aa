// Package spiketrain holds the in-memory data model shared by the quality
// metric algorithms: the time-ordered spike train, per-unit template
// waveforms, channel geometry and the optional PC feature tensor. All arrays
// are supplied by the caller's loading layer and treated as read-only here.
package spiketrain

import (
	"fmt"
	"math"
)

// ExcludedCluster is the sentinel cluster id for spikes that fall outside a
// unit's selected time span. Such spikes stay in the train but are skipped by
// the per-unit metrics.
const ExcludedCluster int32 = -1

// ChannelPosition is the physical (x, y) location of one recording channel.
// The y coordinate is depth along the probe.
type ChannelPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Train is a time-ordered spike train as parallel arrays. TimesSeconds and
// TimesSamples describe the same events in the recording's two clocks;
// Clusters assigns every spike to a unit id (or ExcludedCluster); Amplitudes
// carries the template-scaling amplitude of each spike.
type Train struct {
	TimesSeconds []float64
	TimesSamples []float64
	Clusters     []int32
	Amplitudes   []float64
}

// Len returns the number of spikes in the train
func (t *Train) Len() int {
	return len(t.TimesSeconds)
}

// Validate checks the parallel-array and time-ordering invariants. The batch
// windowed algorithms are only correct on a time-sorted train, so a violation
// here is a hard error, not a NaN.
func (t *Train) Validate() error {
	n := len(t.TimesSeconds)
	if len(t.Clusters) != n || len(t.Amplitudes) != n {
		return fmt.Errorf("spike train arrays disagree on length: times=%d clusters=%d amplitudes=%d",
			n, len(t.Clusters), len(t.Amplitudes))
	}
	if len(t.TimesSamples) != 0 && len(t.TimesSamples) != n {
		return fmt.Errorf("spike train sample times length %d does not match %d spikes", len(t.TimesSamples), n)
	}
	for i := 1; i < n; i++ {
		if t.TimesSeconds[i] < t.TimesSeconds[i-1] {
			return fmt.Errorf("spike train is not time-ordered at index %d", i)
		}
	}
	return nil
}

// UnitSpikes returns the spike times and amplitudes belonging to one unit,
// as fresh slices
func (t *Train) UnitSpikes(unit int32) (times, amplitudes []float64) {
	for i, c := range t.Clusters {
		if c == unit {
			times = append(times, t.TimesSeconds[i])
			amplitudes = append(amplitudes, t.Amplitudes[i])
		}
	}
	return times, amplitudes
}

// PCFeatures is the per-spike principal-component tensor produced by the
// spike sorter: for every spike, the top-k PC loadings on the unit's most
// active channels. ChannelIndex maps each unit to the channel subset its
// loadings refer to.
type PCFeatures struct {
	// Loadings is indexed [spike][pc][channel slot]
	Loadings [][][]float64
	// ChannelIndex is indexed [unit][channel slot]
	ChannelIndex [][]int
}

// NPCs returns the number of principal components per channel slot
func (p *PCFeatures) NPCs() int {
	if len(p.Loadings) == 0 {
		return 0
	}
	return len(p.Loadings[0])
}

// PeakChannels returns, for each unit, the channel on which its template
// waveform has the largest peak-to-peak amplitude. Waveforms are indexed
// [unit][time][channel].
func PeakChannels(waveforms [][][]float64) []int {
	peaks := make([]int, len(waveforms))
	for u, wf := range waveforms {
		if len(wf) == 0 {
			continue
		}
		nChannels := len(wf[0])
		best, bestRange := 0, math.Inf(-1)
		for c := 0; c < nChannels; c++ {
			lo, hi := math.Inf(1), math.Inf(-1)
			for ti := range wf {
				v := wf[ti][c]
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			if hi-lo > bestRange {
				bestRange = hi - lo
				best = c
			}
		}
		peaks[u] = best
	}
	return peaks
}

// ChunkEdges partitions [start, end] into n equal-width time chunks and
// returns the n+1 edges
func ChunkEdges(start, end float64, n int) []float64 {
	if n < 1 || end < start {
		return nil
	}
	edges := make([]float64, n+1)
	width := (end - start) / float64(n)
	for i := range edges {
		edges[i] = start + float64(i)*width
	}
	edges[n] = end
	return edges
}
