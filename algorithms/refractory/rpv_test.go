package refractory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleanTrain(n int, isi float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * isi
	}
	return out
}

func defaultParams(hill bool) Params {
	return Params{
		TauRMin:       0.002,
		TauRMax:       0.002,
		TauRStep:      0.0005,
		TauC:          0.0001,
		UseHillMethod: hill,
	}
}

func TestTauRWindowIncludesEndpoint(t *testing.T) {
	p := Params{TauRMin: 0.001, TauRMax: 0.003, TauRStep: 0.001}
	taus := p.TauRWindow()
	require.Len(t, taus, 3)
	assert.InDelta(t, 0.003, taus[2], 1e-12)
}

func TestZeroViolationsYieldZeroFraction(t *testing.T) {
	// 10 ms ISIs, well above the 2 ms refractory window
	times := cleanTrain(500, 0.01)
	edges := []float64{0, times[len(times)-1]}

	for _, hill := range []bool{true, false} {
		res := NewEstimator(defaultParams(hill)).Estimate(times, edges, -1)
		assert.Equal(t, 0.0, res.Fractions[0][0], "hill=%v", hill)
		assert.Equal(t, 0.0, res.Violations[0][0], "hill=%v", hill)
	}
}

func TestFractionAlwaysInUnitInterval(t *testing.T) {
	// pathological burst: every ISI violates
	times := cleanTrain(50, 0.0005)
	edges := []float64{0, 1}

	for _, hill := range []bool{true, false} {
		res := NewEstimator(defaultParams(hill)).Estimate(times, edges, -1)
		f := res.Fractions[0][0]
		assert.GreaterOrEqual(t, f, 0.0, "hill=%v", hill)
		assert.LessOrEqual(t, f, 1.0, "hill=%v", hill)
	}
}

func TestHillContaminationGrowsWithViolations(t *testing.T) {
	edges := []float64{0, 10}
	base := cleanTrain(1000, 0.01)

	// splice doublets onto some spikes
	contaminated := append([]float64{}, base...)
	for i := 0; i < 1000; i += 20 {
		contaminated = append(contaminated, base[i]+0.001)
	}
	sortFloats(contaminated)

	est := NewEstimator(defaultParams(true))
	clean := est.Estimate(base, edges, -1).Fractions[0][0]
	dirty := est.Estimate(contaminated, edges, -1).Fractions[0][0]
	assert.Greater(t, dirty, clean)
}

func TestOnlyTauRComputesSingleColumn(t *testing.T) {
	p := Params{TauRMin: 0.001, TauRMax: 0.003, TauRStep: 0.001, TauC: 0.0001, UseHillMethod: true}
	times := cleanTrain(100, 0.01)
	edges := []float64{0, 1}

	res := NewEstimator(p).Estimate(times, edges, 1)
	require.Len(t, res.TauRs, 1)
	assert.InDelta(t, 0.002, res.TauRs[0], 1e-12)
	assert.Len(t, res.Fractions[0], 1)
}

func TestEmptyChunkIsZero(t *testing.T) {
	res := NewEstimator(defaultParams(true)).Estimate(nil, []float64{0, 1}, -1)
	assert.Equal(t, 0.0, res.Fractions[0][0])
}

func sortFloats(x []float64) {
	for i := 1; i < len(x); i++ {
		for j := i; j > 0 && x[j] < x[j-1]; j-- {
			x[j], x[j-1] = x[j-1], x[j]
		}
	}
}
