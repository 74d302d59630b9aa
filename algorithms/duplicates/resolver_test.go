package duplicates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spikeforge/unitqc/algorithms/spiketrain"
)

func testTrain(samples []float64, clusters []int32, amplitudes []float64) *spiketrain.Train {
	seconds := make([]float64, len(samples))
	for i, s := range samples {
		seconds[i] = s / 30000
	}
	return &spiketrain.Train{
		TimesSeconds: seconds,
		TimesSamples: samples,
		Clusters:     clusters,
		Amplitudes:   amplitudes,
	}
}

func TestIntraUnitPairKeepsHigherAmplitude(t *testing.T) {
	train := testTrain(
		[]float64{100, 102, 5000},
		[]int32{0, 0, 0},
		[]float64{1.0, 2.0, 1.0},
	)
	r := NewResolver(DefaultParams(5))

	mask := r.Mask(train, []int{0})
	assert.Equal(t, []bool{true, false, false}, mask)
}

func TestExactlyOneSurvivorPerPair(t *testing.T) {
	train := testTrain(
		[]float64{100, 103},
		[]int32{0, 0},
		[]float64{2.0, 2.0},
	)
	r := NewResolver(DefaultParams(5))

	mask := r.Mask(train, []int{0})
	survivors := 0
	for _, m := range mask {
		if !m {
			survivors++
		}
	}
	assert.Equal(t, 1, survivors)
}

func TestInterUnitPairDropsProlificCluster(t *testing.T) {
	// unit 0 owns three spikes in the batch, unit 1 only one; the shared
	// detection at sample 200 is charged to unit 0
	train := testTrain(
		[]float64{100, 200, 201, 5000},
		[]int32{0, 0, 1, 0},
		[]float64{1, 1, 1, 1},
	)
	r := NewResolver(DefaultParams(5))

	mask := r.Mask(train, []int{3, 3})
	assert.Equal(t, []bool{false, true, false, false}, mask)
}

func TestDifferentPeakChannelsNeverDuplicates(t *testing.T) {
	train := testTrain(
		[]float64{100, 101},
		[]int32{0, 1},
		[]float64{1, 1},
	)
	r := NewResolver(DefaultParams(5))

	mask := r.Mask(train, []int{0, 7})
	assert.Equal(t, []bool{false, false}, mask)
}

func TestMaskIsIdempotent(t *testing.T) {
	train := testTrain(
		[]float64{100, 102, 300, 301, 9000},
		[]int32{0, 0, 1, 1, 0},
		[]float64{1, 2, 3, 1, 1},
	)
	r := NewResolver(DefaultParams(5))

	mask := r.Mask(train, []int{0, 0})
	pruned, _ := Apply(train, nil, mask)

	again := r.Mask(pruned, []int{0, 0})
	for i, m := range again {
		assert.False(t, m, "second pass removed spike %d", i)
	}
}

func TestApplyPrunesAllArrays(t *testing.T) {
	train := testTrain(
		[]float64{1, 2, 3},
		[]int32{0, 1, 2},
		[]float64{10, 20, 30},
	)
	pc := &spiketrain.PCFeatures{
		Loadings:     [][][]float64{{{1}}, {{2}}, {{3}}},
		ChannelIndex: [][]int{{0}, {0}, {0}},
	}

	pruned, prunedPC := Apply(train, pc, []bool{false, true, false})
	require.Equal(t, 2, pruned.Len())
	assert.Equal(t, []int32{0, 2}, pruned.Clusters)
	assert.Equal(t, []float64{10, 30}, pruned.Amplitudes)
	assert.Len(t, prunedPC.Loadings, 2)
	assert.Equal(t, 3.0, prunedPC.Loadings[1][0][0])
}

func TestNonEmptyUnits(t *testing.T) {
	clusters := []int32{2, 0, 2, 5}
	mask := []bool{false, true, false, false}
	assert.Equal(t, []int32{2, 5}, NonEmptyUnits(clusters, mask))
}

func TestMaskCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache := NewMaskCache(dir)

	mask := []bool{true, false, true}
	require.NoError(t, cache.Store(mask))

	got, ok := cache.Load(3)
	require.True(t, ok)
	assert.Equal(t, mask, got)

	_, ok = cache.Load(4)
	assert.False(t, ok, "length mismatch must miss the cache")
}

func TestMaskCacheMissingFile(t *testing.T) {
	cache := NewMaskCache(t.TempDir())
	_, ok := cache.Load(1)
	assert.False(t, ok)
}
