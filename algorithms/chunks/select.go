// Package chunks picks the stretch of recording time over which a unit was
// reliably sorted, by combining the per-chunk missing-spike and
// refractory-violation estimates.
package chunks

import (
	"math"
)

// Selection is the chosen time span and the tauR column it was judged under
type Selection struct {
	Start    float64
	End      float64
	BestTauR int  // index into the candidate tauR grid
	AllBad   bool // no chunk passed both thresholds; span is the whole recording
}

// Select picks the tauR column with the maximum summed violation fraction
// across chunks: the window under which the unit looks worst, so the span is
// never judged under a cherry-picked optimistic tauR. A chunk is good when
// its missing-spike percentage and its violation fraction at that tauR are
// both under threshold (NaN estimates fail both comparisons). The selected
// span is the longest run of index-adjacent good chunks, with ties broken by
// first occurrence; a lone good chunk selects exactly itself, and a unit with
// no good chunks keeps the whole recording.
func Select(missingPct []float64, rpvFractions [][]float64, chunkEdges []float64, maxMissingPct, maxRPV float64) Selection {
	nChunks := len(chunkEdges) - 1
	if nChunks < 1 {
		return Selection{AllBad: true}
	}

	best := bestTauR(rpvFractions)

	var good []int
	for c := 0; c < nChunks; c++ {
		if missingPct[c] < maxMissingPct && rpvFractions[c][best] < maxRPV {
			good = append(good, c)
		}
	}

	if len(good) == 0 {
		return Selection{
			Start:    chunkEdges[0],
			End:      chunkEdges[nChunks],
			BestTauR: best,
			AllBad:   true,
		}
	}

	runStart, runEnd := longestAdjacentRun(good)
	return Selection{
		Start:    chunkEdges[runStart],
		End:      chunkEdges[runEnd+1],
		BestTauR: best,
	}
}

// bestTauR returns the column with the largest summed violation fraction
func bestTauR(rpvFractions [][]float64) int {
	if len(rpvFractions) == 0 {
		return 0
	}
	nTaus := len(rpvFractions[0])
	best, bestSum := 0, math.Inf(-1)
	for i := 0; i < nTaus; i++ {
		sum := 0.0
		for c := range rpvFractions {
			v := rpvFractions[c][i]
			if !math.IsNaN(v) {
				sum += v
			}
		}
		if sum > bestSum {
			bestSum = sum
			best = i
		}
	}
	return best
}

// longestAdjacentRun finds the longest run of consecutive chunk indices in
// the sorted good list; ties resolve to the earliest run. A list with no
// adjacency collapses to the first good chunk alone.
func longestAdjacentRun(good []int) (start, end int) {
	bestStart, bestLen := 0, 1
	runStart, runLen := 0, 1
	for i := 1; i < len(good); i++ {
		if good[i] == good[i-1]+1 {
			runLen++
		} else {
			runStart, runLen = i, 1
		}
		if runLen > bestLen {
			bestStart, bestLen = runStart, runLen
		}
	}
	return good[bestStart], good[bestStart+bestLen-1]
}
