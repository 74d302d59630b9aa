package qualitymetrics

import (
	"math"
)

// Metric table column names. They match the field names the wider
// spike-sorting tool ecosystem expects in exported tables.
const (
	ColNPeaks                  = "n_peaks"
	ColNTroughs                = "n_troughs"
	ColWaveformDuration        = "waveform_duration_peak_trough"
	ColSpatialDecaySlope       = "spatial_decay_slope"
	ColBaselineFlatness        = "waveform_baseline_flatness"
	ColScndPeakToTroughRatio   = "scnd_peak_to_trough_ratio"
	ColPeak1ToPeak2Ratio       = "peak1_to_peak2_ratio"
	ColMainPeakToTroughRatio   = "main_peak_to_trough_ratio"
	ColTroughToPeak2Ratio      = "trough_to_peak2_ratio"
	ColPeakBeforeWidth         = "peak_before_width"
	ColTroughWidth             = "trough_width"
	ColPercentMissingGaussian  = "percent_missing_gaussian"
	ColPercentMissingSymmetric = "percent_missing_symmetric"
	ColFractionRPVs            = "fraction_RPVs"
	ColPresenceRatio           = "presence_ratio"
	ColMaxDrift                = "max_drift_estimate"
	ColCumulativeDrift         = "cumulative_drift_estimate"
	ColNSpikes                 = "n_spikes"
	ColRawAmplitude            = "raw_amplitude"
	ColSignalToNoiseRatio      = "signal_to_noise_ratio"
	ColIsolationDistance       = "isolation_distance"
	ColLRatio                  = "l_ratio"
	ColSilhouetteScore         = "silhouette_score"
)

// ColumnNames lists every table column in presentation order
var ColumnNames = []string{
	ColNPeaks, ColNTroughs, ColWaveformDuration, ColSpatialDecaySlope,
	ColBaselineFlatness, ColScndPeakToTroughRatio, ColPeak1ToPeak2Ratio,
	ColMainPeakToTroughRatio, ColTroughToPeak2Ratio, ColPeakBeforeWidth,
	ColTroughWidth, ColPercentMissingGaussian, ColPercentMissingSymmetric,
	ColFractionRPVs, ColPresenceRatio, ColMaxDrift, ColCumulativeDrift,
	ColNSpikes, ColRawAmplitude, ColSignalToNoiseRatio,
	ColIsolationDistance, ColLRatio, ColSilhouetteScore,
}

// Table is the per-unit metric table. Rows are pre-allocated and NaN-filled
// so per-unit workers can write disjoint rows without locking.
type Table struct {
	Units   []int32
	columns map[string][]float64
}

// NewTable allocates a NaN-prefilled table over the given unit ids
func NewTable(units []int32) *Table {
	t := &Table{
		Units:   units,
		columns: make(map[string][]float64, len(ColumnNames)),
	}
	for _, name := range ColumnNames {
		col := make([]float64, len(units))
		for i := range col {
			col[i] = math.NaN()
		}
		t.columns[name] = col
	}
	return t
}

// Set writes one cell. Unknown columns are ignored rather than grown, the
// column set is fixed at construction.
func (t *Table) Set(column string, row int, value float64) {
	if col, ok := t.columns[column]; ok && row >= 0 && row < len(col) {
		col[row] = value
	}
}

// Get reads one cell, NaN when the column does not exist
func (t *Table) Get(column string, row int) float64 {
	col, ok := t.columns[column]
	if !ok || row < 0 || row >= len(col) {
		return math.NaN()
	}
	return col[row]
}

// Column returns the backing slice for one column; nil when absent
func (t *Table) Column(name string) []float64 {
	return t.columns[name]
}

// Len is the number of unit rows
func (t *Table) Len() int {
	return len(t.Units)
}

// Row returns one unit's metrics as a name-to-value map
func (t *Table) Row(row int) map[string]float64 {
	out := make(map[string]float64, len(ColumnNames))
	for _, name := range ColumnNames {
		out[name] = t.Get(name, row)
	}
	return out
}
