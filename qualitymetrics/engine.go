// Package qualitymetrics computes per-unit spike sorting quality metrics and
// classifies every unit as noise, good, multi-unit or non-somatic. The engine
// is a single-pass batch: duplicate spikes are resolved once over the whole
// train, then each unit's metrics are computed independently by a worker pool
// writing disjoint rows of the metric table.
package qualitymetrics

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/spikeforge/unitqc/algorithms/amplitude"
	"github.com/spikeforge/unitqc/algorithms/chunks"
	"github.com/spikeforge/unitqc/algorithms/drift"
	"github.com/spikeforge/unitqc/algorithms/duplicates"
	"github.com/spikeforge/unitqc/algorithms/isolation"
	"github.com/spikeforge/unitqc/algorithms/presence"
	"github.com/spikeforge/unitqc/algorithms/refractory"
	"github.com/spikeforge/unitqc/algorithms/spiketrain"
	"github.com/spikeforge/unitqc/algorithms/waveform"
	"github.com/spikeforge/unitqc/logging"
	"github.com/spikeforge/unitqc/qualitymetrics/config"
)

// Input is everything the loading layer supplies. TemplateWaveforms is
// indexed [unit][time][channel]; unit ids index directly into it and into
// the optional per-unit raw arrays. PCFeatures, RawAmplitudes and
// SignalToNoiseRatios may be nil when the corresponding metrics are
// disabled.
type Input struct {
	SpikeTimesSeconds  []float64
	SpikeTimesSamples  []float64
	SpikeClusters      []int32
	TemplateAmplitudes []float64
	TemplateWaveforms  [][][]float64
	ChannelPositions   []spiketrain.ChannelPosition
	PCFeatures         *spiketrain.PCFeatures

	// RawWaveforms are extracted average raw waveforms per unit, used to
	// derive raw amplitudes when RawAmplitudes is not supplied directly
	RawWaveforms        [][][]float64
	RawAmplitudes       []float64
	SignalToNoiseRatios []float64

	// SaveDir, when set, holds the duplicate-mask cache artifact
	SaveDir string
}

// Output is the completed metric table with classifications, plus the
// resolved spike train the metrics were computed on
type Output struct {
	Table         *Table
	UnitTypes     []UnitType
	Labels        []string
	KeptUnits     []int32
	DuplicateMask []bool
	Train         *spiketrain.Train
}

// Engine runs the full quality-metric pipeline
type Engine struct {
	cfg      *config.Config
	missing  *amplitude.Estimator
	rpv      *refractory.Estimator
	shape    *waveform.Analyzer
	distance *isolation.Estimator
	logger   logging.Logger
}

// New validates the configuration and builds an engine. Configuration
// inconsistency is the only hard error in the pipeline; everything after
// this point degrades to NaN per unit.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Engine{
		cfg:     cfg,
		missing: amplitude.NewEstimator(),
		rpv: refractory.NewEstimator(refractory.Params{
			TauRMin:       cfg.TauRMin,
			TauRMax:       cfg.TauRMax,
			TauRStep:      cfg.TauRStep,
			TauC:          cfg.TauC,
			UseHillMethod: cfg.UseHillMethod,
		}),
		shape: waveform.NewAnalyzer(waveform.Config{
			SampleRate:            cfg.SampleRate,
			MinProminenceFraction: cfg.MinThreshDetectPeaksTroughs,
			BaselineWindowStart:   cfg.BaselineWindowStart,
			BaselineWindowEnd:     cfg.BaselineWindowEnd,
			ComputeSpatialDecay:   cfg.ComputeSpatialDecay,
			LinearDecayFit:        cfg.LinearDecayFit,
			NormalizeSpatialDecay: cfg.NormalizeSpatialDecay,
		}),
		distance: isolation.NewEstimator(cfg.NChannelsIsoDist),
		logger: logging.WithFields(logging.Fields{
			"component": "quality_engine",
		}),
	}, nil
}

// Run computes the metric table and classification for every unit that
// survives duplicate resolution
func (e *Engine) Run(in *Input) (*Output, error) {
	train := &spiketrain.Train{
		TimesSeconds: in.SpikeTimesSeconds,
		TimesSamples: in.SpikeTimesSamples,
		Clusters:     in.SpikeClusters,
		Amplitudes:   in.TemplateAmplitudes,
	}
	if err := train.Validate(); err != nil {
		return nil, err
	}

	peakChannels := spiketrain.PeakChannels(in.TemplateWaveforms)

	mask := make([]bool, train.Len())
	if e.cfg.RemoveDuplicateSpikes {
		mask = e.duplicateMask(train, peakChannels, in.SaveDir)
	}
	// Apply always copies, so the caller's arrays survive the exclusion
	// sentinels written below
	train, pc := duplicates.Apply(train, in.PCFeatures, mask)

	units := duplicates.NonEmptyUnits(train.Clusters, make([]bool, train.Len()))
	e.logger.Info("computing quality metrics", logging.Fields{
		"n_spikes": train.Len(),
		"n_units":  len(units),
	})

	table := NewTable(units)
	spans := make([]chunks.Selection, len(units))

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				spans[row] = e.computeUnit(table, row, units[row], train, pc, in, peakChannels)
			}
		}()
	}
	for row := range units {
		jobs <- row
	}
	close(jobs)
	wg.Wait()

	// spikes outside each unit's selected span get the exclusion sentinel,
	// applied after the pool so workers never mutate the shared train
	for i, c := range train.Clusters {
		row := rowOf(units, c)
		if row < 0 {
			continue
		}
		t := train.TimesSeconds[i]
		if t < spans[row].Start || t > spans[row].End {
			train.Clusters[i] = spiketrain.ExcludedCluster
		}
	}

	types := Classify(table, e.cfg)
	return &Output{
		Table:         table,
		UnitTypes:     types,
		Labels:        Labels(types, e.cfg),
		KeptUnits:     units,
		DuplicateMask: mask,
		Train:         train,
	}, nil
}

// duplicateMask computes or restores the duplicate-spike mask. The cache
// artifact carries no parameter fingerprint, so a parameter change requires
// the recompute flag.
func (e *Engine) duplicateMask(train *spiketrain.Train, peakChannels []int, saveDir string) []bool {
	var cache *duplicates.MaskCache
	if saveDir != "" {
		cache = duplicates.NewMaskCache(saveDir)
		if !e.cfg.RecomputeDuplicates {
			if mask, ok := cache.Load(train.Len()); ok {
				e.logger.Debug("restored duplicate mask from cache", logging.Fields{"save_dir": saveDir})
				return mask
			}
		}
	}

	windowSamples := math.Round(e.cfg.DuplicateWindowSeconds * e.cfg.SampleRate)
	resolver := duplicates.NewResolver(duplicates.DefaultParams(windowSamples))
	mask := resolver.Mask(train, peakChannels)

	if cache != nil {
		if err := cache.Store(mask); err != nil {
			e.logger.Warn("failed to store duplicate mask", logging.Fields{"error": err.Error()})
		}
	}
	return mask
}

// computeUnit fills one unit's table row and returns its selected time span
func (e *Engine) computeUnit(table *Table, row int, unit int32, train *spiketrain.Train, pc *spiketrain.PCFeatures, in *Input, peakChannels []int) chunks.Selection {
	times, amps := train.UnitSpikes(unit)
	if len(times) == 0 {
		return chunks.Selection{}
	}

	// chunked first pass over the unit's whole lifetime
	edges := spiketrain.ChunkEdges(times[0], times[len(times)-1], e.cfg.NTimeChunks)
	missing := e.missing.Estimate(times, amps, edges)
	rpv := e.rpv.Estimate(times, edges, -1)
	sel := chunks.Select(missing.Gaussian, rpv.Fractions, edges,
		e.cfg.MaxPercSpikesMissing, e.cfg.MaxRPV)

	// second pass: the table scalars come from the selected span treated as
	// one chunk, judged at the chosen tauR
	spanEdges := []float64{sel.Start, sel.End}
	spanMissing := e.missing.Estimate(times, amps, spanEdges)
	spanRPV := e.rpv.Estimate(times, spanEdges, sel.BestTauR)
	table.Set(ColPercentMissingGaussian, row, spanMissing.Gaussian[0])
	table.Set(ColPercentMissingSymmetric, row, spanMissing.Symmetric[0])
	table.Set(ColFractionRPVs, row, spanRPV.Fractions[0][0])

	// the span is inclusive at both ends, so a unit whose whole lifetime was
	// kept keeps its final spike
	var selTimes []float64
	for _, t := range times {
		if t >= sel.Start && t <= sel.End {
			selTimes = append(selTimes, t)
		}
	}
	table.Set(ColNSpikes, row, float64(len(selTimes)))
	table.Set(ColPresenceRatio, row,
		presence.Ratio(selTimes, sel.Start, sel.End, e.cfg.PresenceRatioBinSize))

	if e.cfg.ComputeDrift && pc != nil {
		maxDrift, cumDrift := e.unitDrift(train, pc, unit, sel, in.ChannelPositions)
		table.Set(ColMaxDrift, row, maxDrift)
		table.Set(ColCumulativeDrift, row, cumDrift)
	}

	shape := e.shape.Analyze(in.TemplateWaveforms, int(unit), peakChannels, in.ChannelPositions)
	table.Set(ColNPeaks, row, shape.NPeaks)
	table.Set(ColNTroughs, row, shape.NTroughs)
	table.Set(ColWaveformDuration, row, shape.DurationMicros)
	table.Set(ColSpatialDecaySlope, row, shape.SpatialDecaySlope)
	table.Set(ColBaselineFlatness, row, shape.BaselineFlatness)
	table.Set(ColScndPeakToTroughRatio, row, shape.ScndPeakToTroughRatio)
	table.Set(ColPeak1ToPeak2Ratio, row, shape.Peak1ToPeak2Ratio)
	table.Set(ColMainPeakToTroughRatio, row, shape.MainPeakToTroughRatio)
	table.Set(ColTroughToPeak2Ratio, row, shape.TroughToPeak2Ratio)
	table.Set(ColPeakBeforeWidth, row, shape.PeakBeforeWidth)
	table.Set(ColTroughWidth, row, shape.TroughWidth)

	if e.cfg.UseRawAmplitudes {
		switch {
		case int(unit) < len(in.RawAmplitudes):
			table.Set(ColRawAmplitude, row, in.RawAmplitudes[unit])
		case int(unit) < len(in.RawWaveforms):
			table.Set(ColRawAmplitude, row, RawAmplitude(in.RawWaveforms[unit], e.cfg.GainToMicrovolts))
		}
		if int(unit) < len(in.SignalToNoiseRatios) {
			table.Set(ColSignalToNoiseRatio, row, in.SignalToNoiseRatios[unit])
		}
	}

	if e.cfg.ComputeDistanceMetrics && pc != nil {
		clusters := spanClusters(train, unit, sel)
		res := e.distance.Estimate(pc, clusters, unit)
		table.Set(ColIsolationDistance, row, res.IsolationDistance)
		table.Set(ColLRatio, row, res.LRatio)
		table.Set(ColSilhouetteScore, row, res.SilhouetteScore)
	}

	return sel
}

// unitDrift gathers the unit's in-span first-PC loadings and the vertical
// positions behind its channel slots, then estimates drift
func (e *Engine) unitDrift(train *spiketrain.Train, pc *spiketrain.PCFeatures, unit int32, sel chunks.Selection, positions []spiketrain.ChannelPosition) (float64, float64) {
	if int(unit) >= len(pc.ChannelIndex) || pc.NPCs() == 0 {
		return math.NaN(), math.NaN()
	}

	slots := pc.ChannelIndex[unit]
	channelZ := make([]float64, len(slots))
	for s, ch := range slots {
		if ch >= 0 && ch < len(positions) {
			channelZ[s] = positions[ch].Y
		}
	}

	var pc1 [][]float64
	var times []float64
	for i, c := range train.Clusters {
		t := train.TimesSeconds[i]
		if c != unit || t < sel.Start || t > sel.End {
			continue
		}
		pc1 = append(pc1, pc.Loadings[i][0])
		times = append(times, t)
	}
	return drift.Estimate(pc1, channelZ, times, e.cfg.DriftBinSize)
}

// spanClusters is a per-unit view of the cluster assignment with the unit's
// own out-of-span spikes already excluded. The shared train stays untouched
// so concurrent workers never observe each other's exclusions.
func spanClusters(train *spiketrain.Train, unit int32, sel chunks.Selection) []int32 {
	clusters := make([]int32, len(train.Clusters))
	copy(clusters, train.Clusters)
	for i, c := range clusters {
		if c != unit {
			continue
		}
		t := train.TimesSeconds[i]
		if t < sel.Start || t > sel.End {
			clusters[i] = spiketrain.ExcludedCluster
		}
	}
	return clusters
}

// RawAmplitude converts an extracted average raw waveform (time by channel)
// into a gain-scaled peak-to-peak amplitude in microvolts
func RawAmplitude(rawWaveform [][]float64, gainToMicrovolts float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, samples := range rawWaveform {
		for _, v := range samples {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if math.IsInf(lo, 1) {
		return math.NaN()
	}
	return math.Abs(hi*gainToMicrovolts) + math.Abs(lo*gainToMicrovolts)
}

// rowOf finds a unit id's row in the ascending kept-units list
func rowOf(units []int32, unit int32) int {
	lo, hi := 0, len(units)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case units[mid] == unit:
			return mid
		case units[mid] < unit:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return -1
}
