package chunks

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllGoodChunksSelectFullSpan(t *testing.T) {
	edges := []float64{0, 10, 20, 30}
	missing := []float64{5, 5, 5}
	rpv := [][]float64{{0.01}, {0.01}, {0.01}}

	sel := Select(missing, rpv, edges, 20, 0.1)
	assert.False(t, sel.AllBad)
	assert.Equal(t, 0.0, sel.Start)
	assert.Equal(t, 30.0, sel.End)
}

func TestSingleGoodChunkSelectsExactlyThatChunk(t *testing.T) {
	edges := []float64{0, 10, 20, 30}
	missing := []float64{50, 5, 50}
	rpv := [][]float64{{0.01}, {0.01}, {0.01}}

	sel := Select(missing, rpv, edges, 20, 0.1)
	assert.False(t, sel.AllBad)
	assert.Equal(t, 10.0, sel.Start)
	assert.Equal(t, 20.0, sel.End)
}

func TestNoGoodChunkKeepsWholeRecording(t *testing.T) {
	edges := []float64{0, 10, 20}
	missing := []float64{50, 50}
	rpv := [][]float64{{0.5}, {0.5}}

	sel := Select(missing, rpv, edges, 20, 0.1)
	assert.True(t, sel.AllBad)
	assert.Equal(t, 0.0, sel.Start)
	assert.Equal(t, 20.0, sel.End)
}

func TestNaNEstimatesFailTheChunk(t *testing.T) {
	edges := []float64{0, 10, 20}
	missing := []float64{math.NaN(), 5}
	rpv := [][]float64{{0.01}, {0.01}}

	sel := Select(missing, rpv, edges, 20, 0.1)
	assert.Equal(t, 10.0, sel.Start)
	assert.Equal(t, 20.0, sel.End)
}

func TestLongestAdjacentRunWins(t *testing.T) {
	edges := []float64{0, 10, 20, 30, 40, 50}
	missing := []float64{5, 50, 5, 5, 5}
	rpv := [][]float64{{0}, {0}, {0}, {0}, {0}}

	sel := Select(missing, rpv, edges, 20, 0.1)
	assert.Equal(t, 20.0, sel.Start)
	assert.Equal(t, 50.0, sel.End)
}

func TestNonAdjacentGoodChunksFallBackToFirst(t *testing.T) {
	edges := []float64{0, 10, 20, 30}
	missing := []float64{5, 50, 5}
	rpv := [][]float64{{0}, {0}, {0}}

	sel := Select(missing, rpv, edges, 20, 0.1)
	assert.Equal(t, 0.0, sel.Start)
	assert.Equal(t, 10.0, sel.End)
}

func TestWorstTauRColumnIsChosen(t *testing.T) {
	edges := []float64{0, 10, 20}
	missing := []float64{5, 5}
	// column 1 sums to the larger violation fraction
	rpv := [][]float64{{0.01, 0.2}, {0.01, 0.2}}

	sel := Select(missing, rpv, edges, 20, 0.1)
	assert.Equal(t, 1, sel.BestTauR)
	// judged under column 1, no chunk is good
	assert.True(t, sel.AllBad)
}
