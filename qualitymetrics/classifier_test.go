package qualitymetrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spikeforge/unitqc/qualitymetrics/config"
)

func classifierConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ComputeSpatialDecay = false
	cfg.ComputeDrift = false
	cfg.ComputeDistanceMetrics = false
	cfg.UseRawAmplitudes = false
	return cfg
}

// goodRow fills row 0 with metrics that pass every enabled rule
func goodRow(t *Table) {
	t.Set(ColNPeaks, 0, 1)
	t.Set(ColNTroughs, 0, 1)
	t.Set(ColWaveformDuration, 0, 500)
	t.Set(ColBaselineFlatness, 0, 0.1)
	t.Set(ColScndPeakToTroughRatio, 0, 0.2)
	t.Set(ColPercentMissingGaussian, 0, 2)
	t.Set(ColNSpikes, 0, 500)
	t.Set(ColFractionRPVs, 0, 0.01)
	t.Set(ColPresenceRatio, 0, 0.95)
	t.Set(ColTroughToPeak2Ratio, 0, 10)
	t.Set(ColPeakBeforeWidth, 0, 10)
	t.Set(ColTroughWidth, 0, 10)
	t.Set(ColPeak1ToPeak2Ratio, 0, 1)
	t.Set(ColMainPeakToTroughRatio, 0, 0.5)
}

func TestGoodUnit(t *testing.T) {
	table := NewTable([]int32{0})
	goodRow(table)

	types := Classify(table, classifierConfig())
	require.Len(t, types, 1)
	assert.Equal(t, UnitGood, types[0])
	assert.Equal(t, []string{"GOOD"}, Labels(types, classifierConfig()))
}

func TestExcessRPVMakesMUA(t *testing.T) {
	cfg := classifierConfig()
	table := NewTable([]int32{0})
	goodRow(table)
	table.Set(ColFractionRPVs, 0, cfg.MaxRPV+0.05)

	types := Classify(table, cfg)
	assert.Equal(t, UnitMUA, types[0])
}

func TestNoiseShortCircuitsEverything(t *testing.T) {
	cfg := classifierConfig()
	table := NewTable([]int32{0})
	goodRow(table)
	table.Set(ColNPeaks, 0, cfg.MaxNPeaks+1)
	// even metrics that would otherwise flag MUA or non-somatic are moot
	table.Set(ColFractionRPVs, 0, 0.9)
	table.Set(ColMainPeakToTroughRatio, 0, 5)

	types := Classify(table, cfg)
	assert.Equal(t, UnitNoise, types[0])
}

func TestUndetectableWaveformIsNoise(t *testing.T) {
	table := NewTable([]int32{0})
	goodRow(table)
	table.Set(ColNPeaks, 0, math.NaN())

	types := Classify(table, classifierConfig())
	assert.Equal(t, UnitNoise, types[0])
}

func TestNaNMetricsNeverFailAUnit(t *testing.T) {
	table := NewTable([]int32{0})
	goodRow(table)
	// a unit too sparse for these estimates is still classifiable
	table.Set(ColFractionRPVs, 0, math.NaN())
	table.Set(ColPercentMissingGaussian, 0, math.NaN())
	table.Set(ColPresenceRatio, 0, math.NaN())

	types := Classify(table, classifierConfig())
	assert.Equal(t, UnitGood, types[0])
}

func TestNonSomaticRelabel(t *testing.T) {
	cfg := classifierConfig()
	table := NewTable([]int32{0})
	goodRow(table)
	table.Set(ColMainPeakToTroughRatio, 0, cfg.MaxMainPeakToTrough+1)

	types := Classify(table, cfg)
	assert.Equal(t, UnitNonSomaGood, types[0])
	assert.Equal(t, []string{"NON-SOMA"}, Labels(types, cfg))
}

func TestNonSomaticSplitKeepsMUADistinct(t *testing.T) {
	cfg := classifierConfig()
	cfg.SplitGoodAndMUANonSomatic = true
	table := NewTable([]int32{0})
	goodRow(table)
	table.Set(ColMainPeakToTroughRatio, 0, cfg.MaxMainPeakToTrough+1)
	table.Set(ColFractionRPVs, 0, cfg.MaxRPV+0.05)

	types := Classify(table, cfg)
	assert.Equal(t, UnitNonSomaMUA, types[0])
	assert.Equal(t, []string{"NON-SOMA MUA"}, Labels(types, cfg))
}

func TestNarrowDominantFirstPeakIsNonSomatic(t *testing.T) {
	cfg := classifierConfig()
	table := NewTable([]int32{0})
	goodRow(table)
	table.Set(ColTroughToPeak2Ratio, 0, cfg.MinTroughToPeak2Ratio-1)
	table.Set(ColPeakBeforeWidth, 0, cfg.MinWidthFirstPeak-1)
	table.Set(ColTroughWidth, 0, cfg.MinWidthMainTrough-1)
	table.Set(ColPeak1ToPeak2Ratio, 0, cfg.MaxPeak1ToPeak2Ratio+1)

	types := Classify(table, cfg)
	assert.Equal(t, UnitNonSomaGood, types[0])
}

func TestIsolationDistanceRule(t *testing.T) {
	cfg := classifierConfig()
	cfg.ComputeDistanceMetrics = true
	table := NewTable([]int32{0})
	goodRow(table)
	table.Set(ColIsolationDistance, 0, cfg.IsoDMin-5)
	table.Set(ColLRatio, 0, 0.001)

	types := Classify(table, cfg)
	assert.Equal(t, UnitMUA, types[0])
}

func TestTableRoundTrip(t *testing.T) {
	table := NewTable([]int32{3, 9})
	assert.True(t, math.IsNaN(table.Get(ColNSpikes, 0)))

	table.Set(ColNSpikes, 1, 42)
	assert.Equal(t, 42.0, table.Get(ColNSpikes, 1))
	assert.Equal(t, 42.0, table.Row(1)[ColNSpikes])
	assert.Equal(t, 2, table.Len())
}
