package qualitymetrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/spikeforge/unitqc/algorithms/spiketrain"
	"github.com/spikeforge/unitqc/qualitymetrics/config"
)

// somaticTemplate places a clean somatic pulse on the given channel: a small
// positive bump at sample 30 and a dominant trough at sample 45
func somaticTemplate(nChannels, channel int) [][]float64 {
	wf := make([][]float64, 82)
	for ti := range wf {
		wf[ti] = make([]float64, nChannels)
	}
	for i := 0; i < 5; i++ {
		wf[25+i][channel] = 0.5 * float64(i) / 5
		wf[35-i][channel] = 0.5 * float64(i) / 5
		wf[40+i][channel] = -float64(i) / 5
		wf[50-i][channel] = -float64(i) / 5
	}
	wf[30][channel] = 0.5
	wf[45][channel] = -1
	return wf
}

// twoUnitInput interleaves two clean 600-spike units firing at 1 Hz with
// Gaussian template amplitudes
func twoUnitInput() *Input {
	norm := distuv.Normal{Mu: 50, Sigma: 5}
	var times, samples, amps []float64
	var clusters []int32
	for i := 0; i < 600; i++ {
		for u := 0; u < 2; u++ {
			t := float64(i) + 0.5*float64(u)
			times = append(times, t)
			samples = append(samples, t*30000)
			clusters = append(clusters, int32(u))
			// deterministic shuffled normal draw
			p := (float64((i*37)%600) + 0.5) / 600
			amps = append(amps, norm.Quantile(p))
		}
	}

	return &Input{
		SpikeTimesSeconds:  times,
		SpikeTimesSamples:  samples,
		SpikeClusters:      clusters,
		TemplateAmplitudes: amps,
		TemplateWaveforms: [][][]float64{
			somaticTemplate(2, 0),
			somaticTemplate(2, 1),
		},
		ChannelPositions: []spiketrain.ChannelPosition{
			{X: 0, Y: 0},
			{X: 0, Y: 40},
		},
	}
}

func engineConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.NTimeChunks = 3
	cfg.Workers = 2
	cfg.ComputeSpatialDecay = false
	cfg.ComputeDrift = false
	cfg.ComputeDistanceMetrics = false
	return cfg
}

func TestEngineClassifiesCleanUnitsGood(t *testing.T) {
	engine, err := New(engineConfig())
	require.NoError(t, err)

	out, err := engine.Run(twoUnitInput())
	require.NoError(t, err)

	require.Equal(t, []int32{0, 1}, out.KeptUnits)
	assert.Equal(t, []string{"GOOD", "GOOD"}, out.Labels)

	for row := 0; row < 2; row++ {
		assert.Equal(t, 1.0, out.Table.Get(ColNPeaks, row))
		assert.Equal(t, 1.0, out.Table.Get(ColNTroughs, row))
		assert.Equal(t, 600.0, out.Table.Get(ColNSpikes, row))
		assert.Equal(t, 0.0, out.Table.Get(ColFractionRPVs, row))
		assert.GreaterOrEqual(t, out.Table.Get(ColPresenceRatio, row), 0.9)
		assert.Less(t, out.Table.Get(ColPercentMissingGaussian, row), 20.0)
	}
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SampleRate = 0
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestEngineRejectsUnorderedTrain(t *testing.T) {
	engine, err := New(engineConfig())
	require.NoError(t, err)

	in := twoUnitInput()
	in.SpikeTimesSeconds[0], in.SpikeTimesSeconds[1] = in.SpikeTimesSeconds[1], in.SpikeTimesSeconds[0]
	_, err = engine.Run(in)
	assert.Error(t, err)
}

func TestEngineRemovesDuplicateSpikes(t *testing.T) {
	in := twoUnitInput()
	// duplicate unit 0's first spike one sample later with lower amplitude
	cfg := engineConfig()
	cfg.DuplicateWindowSeconds = 0.001

	in.SpikeTimesSeconds = append([]float64{0, 1.0 / 30000}, in.SpikeTimesSeconds[1:]...)
	in.SpikeTimesSamples = append([]float64{0, 1}, in.SpikeTimesSamples[1:]...)
	in.SpikeClusters = append([]int32{0, 0}, in.SpikeClusters[1:]...)
	in.TemplateAmplitudes = append([]float64{50, 10}, in.TemplateAmplitudes[1:]...)

	engine, err := New(cfg)
	require.NoError(t, err)
	out, err := engine.Run(in)
	require.NoError(t, err)

	removed := 0
	for _, m := range out.DuplicateMask {
		if m {
			removed++
		}
	}
	assert.Equal(t, 1, removed)
	assert.True(t, out.DuplicateMask[1], "the lower-amplitude twin is dropped")
}

func TestEngineCachesDuplicateMask(t *testing.T) {
	dir := t.TempDir()
	engine, err := New(engineConfig())
	require.NoError(t, err)

	in := twoUnitInput()
	in.SaveDir = dir
	first, err := engine.Run(in)
	require.NoError(t, err)

	// a second run restores the mask from the cache artifact
	second, err := engine.Run(twoUnitInputWithSaveDir(dir))
	require.NoError(t, err)
	assert.Equal(t, first.Labels, second.Labels)
	assert.Equal(t, first.DuplicateMask, second.DuplicateMask)
}

func twoUnitInputWithSaveDir(dir string) *Input {
	in := twoUnitInput()
	in.SaveDir = dir
	return in
}

func TestEngineKeepsFinalSpikeInSpan(t *testing.T) {
	engine, err := New(engineConfig())
	require.NoError(t, err)

	out, err := engine.Run(twoUnitInput())
	require.NoError(t, err)

	// the span end is inclusive: a unit whose whole lifetime is kept loses no
	// spikes and nothing gets the exclusion sentinel
	for _, c := range out.Train.Clusters {
		assert.NotEqual(t, spiketrain.ExcludedCluster, c)
	}
	for row := 0; row < 2; row++ {
		assert.Equal(t, 600.0, out.Table.Get(ColNSpikes, row))
	}
}

func TestEngineDerivesRawAmplitudeFromWaveforms(t *testing.T) {
	cfg := engineConfig()
	cfg.UseRawAmplitudes = true
	engine, err := New(cfg)
	require.NoError(t, err)

	in := twoUnitInput()
	in.RawWaveforms = [][][]float64{
		{{30, -30}},
		{{5, -5}},
	}
	in.SignalToNoiseRatios = []float64{10, 10}

	out, err := engine.Run(in)
	require.NoError(t, err)

	assert.Equal(t, 60.0, out.Table.Get(ColRawAmplitude, 0))
	assert.Equal(t, 10.0, out.Table.Get(ColRawAmplitude, 1))
	// unit 1's raw amplitude sits under the minimum and demotes it
	assert.Equal(t, []string{"GOOD", "MUA"}, out.Labels)
}

func TestRawAmplitudeHelper(t *testing.T) {
	wf := [][]float64{{1, -2}, {3, 0}}
	assert.Equal(t, 10.0, RawAmplitude(wf, 2))
	assert.True(t, math.IsNaN(RawAmplitude(nil, 1)))
}
