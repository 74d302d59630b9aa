// Package config holds the flat tuning surface of the quality-metric engine:
// thresholds, window sizes and feature toggles. Defaults follow common
// Neuropixels practice; correctness never depends on them.
package config

import (
	"fmt"
)

// Config is the complete engine configuration
type Config struct {
	// Recording geometry and timing
	SampleRate       float64 `json:"sample_rate"`
	GainToMicrovolts float64 `json:"gain_to_microvolts"`

	// Time chunking for per-chunk amplitude and violation estimates
	NTimeChunks int `json:"n_time_chunks"`

	// Worker pool size for the per-unit pass; zero means GOMAXPROCS
	Workers int `json:"workers"`

	// Duplicate spike resolution
	RemoveDuplicateSpikes  bool    `json:"remove_duplicate_spikes"`
	DuplicateWindowSeconds float64 `json:"duplicate_window_seconds"`
	RecomputeDuplicates    bool    `json:"recompute_duplicates"`

	// Refractory period violations. Times are in seconds.
	TauRMin       float64 `json:"tau_r_min"`
	TauRMax       float64 `json:"tau_r_max"`
	TauRStep      float64 `json:"tau_r_step"`
	TauC          float64 `json:"tau_c"`
	UseHillMethod bool    `json:"use_hill_method"`
	MaxRPV        float64 `json:"max_rpv"`

	// Amplitude distribution truncation
	MaxPercSpikesMissing float64 `json:"max_perc_spikes_missing"`

	// Firing statistics
	MinNumSpikes         float64 `json:"min_num_spikes"`
	MinPresenceRatio     float64 `json:"min_presence_ratio"`
	PresenceRatioBinSize float64 `json:"presence_ratio_bin_size"`

	// Drift
	ComputeDrift bool    `json:"compute_drift"`
	DriftBinSize float64 `json:"drift_bin_size"`
	MaxDrift     float64 `json:"max_drift"`

	// Waveform shape
	MinThreshDetectPeaksTroughs float64 `json:"min_thresh_detect_peaks_troughs"`
	MaxNPeaks                   float64 `json:"max_n_peaks"`
	MaxNTroughs                 float64 `json:"max_n_troughs"`
	MinWvDurationMicros         float64 `json:"min_wv_duration_micros"`
	MaxWvDurationMicros         float64 `json:"max_wv_duration_micros"`
	MaxWvBaselineFraction       float64 `json:"max_wv_baseline_fraction"`
	BaselineWindowStart         int     `json:"baseline_window_start"`
	BaselineWindowEnd           int     `json:"baseline_window_end"`
	MaxScndPeakToTroughRatio    float64 `json:"max_scnd_peak_to_trough_ratio_noise"`

	// Spatial decay
	ComputeSpatialDecay     bool    `json:"compute_spatial_decay"`
	LinearDecayFit          bool    `json:"linear_decay_fit"`
	NormalizeSpatialDecay   bool    `json:"normalize_spatial_decay"`
	MinSpatialDecaySlope    float64 `json:"min_spatial_decay_slope"`
	MinSpatialDecaySlopeExp float64 `json:"min_spatial_decay_slope_exp"`
	MaxSpatialDecaySlopeExp float64 `json:"max_spatial_decay_slope_exp"`

	// Non-somatic detection
	MinTroughToPeak2Ratio     float64 `json:"min_trough_to_peak2_ratio_non_somatic"`
	MinWidthFirstPeak         float64 `json:"min_width_first_peak_non_somatic"`
	MinWidthMainTrough        float64 `json:"min_width_main_trough_non_somatic"`
	MaxPeak1ToPeak2Ratio      float64 `json:"max_peak1_to_peak2_ratio_non_somatic"`
	MaxMainPeakToTrough       float64 `json:"max_main_peak_to_trough_ratio_non_somatic"`
	SplitGoodAndMUANonSomatic bool    `json:"split_good_and_mua_non_somatic"`

	// Raw waveform criteria, only applied when raw amplitudes and SNR are
	// supplied by the caller
	UseRawAmplitudes bool    `json:"use_raw_amplitudes"`
	MinAmplitude     float64 `json:"min_amplitude"`
	MinSNR           float64 `json:"min_snr"`

	// Distance metrics
	ComputeDistanceMetrics bool    `json:"compute_distance_metrics"`
	NChannelsIsoDist       int     `json:"n_channels_iso_dist"`
	IsoDMin                float64 `json:"iso_d_min"`
	LRatioMax              float64 `json:"l_ratio_max"`
}

// DefaultConfig returns a configuration tuned for Neuropixels-style
// recordings at 30 kHz
func DefaultConfig() *Config {
	return &Config{
		SampleRate:       30000,
		GainToMicrovolts: 1.0,
		NTimeChunks:      6,
		Workers:          0,

		RemoveDuplicateSpikes:  true,
		DuplicateWindowSeconds: 0.00001,
		RecomputeDuplicates:    false,

		TauRMin:       0.002,
		TauRMax:       0.002,
		TauRStep:      0.0005,
		TauC:          0.0001,
		UseHillMethod: true,
		MaxRPV:        0.1,

		MaxPercSpikesMissing: 20,

		MinNumSpikes:         300,
		MinPresenceRatio:     0.7,
		PresenceRatioBinSize: 60,

		ComputeDrift: false,
		DriftBinSize: 60,
		MaxDrift:     100,

		MinThreshDetectPeaksTroughs: 0.2,
		MaxNPeaks:                   2,
		MaxNTroughs:                 1,
		MinWvDurationMicros:         100,
		MaxWvDurationMicros:         1150,
		MaxWvBaselineFraction:       0.3,
		BaselineWindowStart:         0,
		BaselineWindowEnd:           20,
		MaxScndPeakToTroughRatio:    0.8,

		ComputeSpatialDecay:     true,
		LinearDecayFit:          false,
		NormalizeSpatialDecay:   true,
		MinSpatialDecaySlope:    -0.008,
		MinSpatialDecaySlopeExp: 0.01,
		MaxSpatialDecaySlopeExp: 0.1,

		MinTroughToPeak2Ratio: 5,
		MinWidthFirstPeak:     4,
		MinWidthMainTrough:    5,
		MaxPeak1ToPeak2Ratio:  3,
		MaxMainPeakToTrough:   0.8,

		SplitGoodAndMUANonSomatic: false,

		UseRawAmplitudes: false,
		MinAmplitude:     20,
		MinSNR:           5,

		ComputeDistanceMetrics: false,
		NChannelsIsoDist:       4,
		IsoDMin:                20,
		LRatioMax:              0.1,
	}
}

// Validate rejects internally contradictory settings. These are the only
// hard errors the engine raises; everything downstream degrades to NaN.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %v", c.SampleRate)
	}
	if c.NTimeChunks < 1 {
		return fmt.Errorf("n_time_chunks must be at least 1, got %d", c.NTimeChunks)
	}
	if c.TauRStep <= 0 {
		return fmt.Errorf("tau_r_step must be positive, got %v", c.TauRStep)
	}
	if c.TauRMin > c.TauRMax {
		return fmt.Errorf("tau_r_min %v exceeds tau_r_max %v", c.TauRMin, c.TauRMax)
	}
	if c.TauC >= c.TauRMin {
		return fmt.Errorf("tau_c %v must be below tau_r_min %v", c.TauC, c.TauRMin)
	}
	if c.RemoveDuplicateSpikes && c.DuplicateWindowSeconds <= 0 {
		return fmt.Errorf("duplicate_window_seconds must be positive, got %v", c.DuplicateWindowSeconds)
	}
	if c.PresenceRatioBinSize <= 0 {
		return fmt.Errorf("presence_ratio_bin_size must be positive, got %v", c.PresenceRatioBinSize)
	}
	if c.ComputeDrift && c.DriftBinSize <= 0 {
		return fmt.Errorf("drift_bin_size must be positive, got %v", c.DriftBinSize)
	}
	if c.MinWvDurationMicros > c.MaxWvDurationMicros {
		return fmt.Errorf("min_wv_duration_micros %v exceeds max_wv_duration_micros %v",
			c.MinWvDurationMicros, c.MaxWvDurationMicros)
	}
	if c.MinThreshDetectPeaksTroughs <= 0 || c.MinThreshDetectPeaksTroughs >= 1 {
		return fmt.Errorf("min_thresh_detect_peaks_troughs must be in (0,1), got %v",
			c.MinThreshDetectPeaksTroughs)
	}
	if c.ComputeDistanceMetrics && c.NChannelsIsoDist < 1 {
		return fmt.Errorf("n_channels_iso_dist must be at least 1, got %d", c.NChannelsIsoDist)
	}
	return nil
}
