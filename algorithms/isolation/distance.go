// Package isolation measures how separable a unit's spikes are from the rest
// of the recording in principal-component space. Spikes from other units are
// projected onto the target unit's channels and scored by Mahalanobis
// distance against the target's own feature cloud.
package isolation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/spikeforge/unitqc/algorithms/spiketrain"
	"github.com/spikeforge/unitqc/logging"
)

// Result holds the per-unit separability scores. SilhouetteScore is reported
// for table compatibility but not computed.
type Result struct {
	IsolationDistance float64
	LRatio            float64
	SilhouetteScore   float64
}

// Estimator computes distance-based separability metrics
type Estimator struct {
	nChannels int
	logger    logging.Logger
}

// NewEstimator creates an estimator that uses the first nChannels feature
// slots of each unit
func NewEstimator(nChannels int) *Estimator {
	return &Estimator{
		nChannels: nChannels,
		logger: logging.WithFields(logging.Fields{
			"component": "isolation_estimator",
		}),
	}
}

// Estimate scores one unit against all other units with a positive id.
// clusters must be the full (unpruned by unit) cluster assignment aligned
// with pc.Loadings. Both metrics need more target spikes than feature
// dimensions and a non-empty comparison pool, otherwise they are NaN.
func (e *Estimator) Estimate(pc *spiketrain.PCFeatures, clusters []int32, unit int32) Result {
	out := Result{
		IsolationDistance: math.NaN(),
		LRatio:            math.NaN(),
		SilhouetteScore:   math.NaN(),
	}

	nPCs := pc.NPCs()
	if nPCs == 0 || int(unit) >= len(pc.ChannelIndex) {
		return out
	}
	nChan := min(e.nChannels, len(pc.ChannelIndex[unit]))
	if nChan == 0 {
		return out
	}
	dims := nPCs * nChan
	targetChannels := pc.ChannelIndex[unit][:nChan]

	targetRows := e.targetFeatures(pc, clusters, unit, nPCs, nChan)
	nSpikes := len(targetRows)
	if nSpikes <= dims {
		return out
	}

	pool, nCount := e.poolFeatures(pc, clusters, unit, targetChannels, nPCs)
	if len(pool) == 0 {
		return out
	}

	d2 := mahalanobisSquared(targetRows, pool, dims)
	if d2 == nil {
		e.logger.Debug("singular feature covariance", logging.Fields{"unit": unit})
		return out
	}

	chi2 := distuv.ChiSquared{K: float64(dims)}
	lr := 0.0
	for _, d := range d2 {
		lr += chi2.Survival(d)
	}
	out.LRatio = lr / float64(nSpikes)

	if nCount > nSpikes && nSpikes < len(d2) {
		sort.Float64s(d2)
		out.IsolationDistance = d2[nSpikes]
	}
	return out
}

// targetFeatures flattens the unit's own loadings, PC-major, over its first
// nChan channel slots
func (e *Estimator) targetFeatures(pc *spiketrain.PCFeatures, clusters []int32, unit int32, nPCs, nChan int) [][]float64 {
	var rows [][]float64
	for i, c := range clusters {
		if c != unit {
			continue
		}
		row := make([]float64, nPCs*nChan)
		for p := 0; p < nPCs; p++ {
			for s := 0; s < nChan; s++ {
				row[p*nChan+s] = pc.Loadings[i][p][s]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// poolFeatures collects spikes from every other positive-id unit whose
// feature channels include the target's primary channel, realigned onto the
// target's channel slots. A target channel absent from the other unit's
// slots contributes zero. nCount gates the isolation distance and totals the
// spike counts of every unit sharing ANY of the target's channels, including
// units that contribute no pool rows.
func (e *Estimator) poolFeatures(pc *spiketrain.PCFeatures, clusters []int32, unit int32, targetChannels []int, nPCs int) (pool [][]float64, nCount int) {
	nChan := len(targetChannels)

	unitSpikes := make(map[int32][]int)
	for i, c := range clusters {
		if c > 0 && c != unit {
			unitSpikes[c] = append(unitSpikes[c], i)
		}
	}

	for other, spikes := range unitSpikes {
		if int(other) >= len(pc.ChannelIndex) {
			continue
		}
		slotOf := make(map[int]int, len(pc.ChannelIndex[other]))
		for s, ch := range pc.ChannelIndex[other] {
			slotOf[ch] = s
		}
		shared := false
		for _, ch := range targetChannels {
			if _, ok := slotOf[ch]; ok {
				shared = true
				break
			}
		}
		if !shared {
			continue
		}
		nCount += len(spikes)
		if _, primary := slotOf[targetChannels[0]]; !primary {
			continue
		}
		for _, i := range spikes {
			row := make([]float64, nPCs*nChan)
			for p := 0; p < nPCs; p++ {
				for t, ch := range targetChannels {
					if s, ok := slotOf[ch]; ok {
						row[p*nChan+t] = pc.Loadings[i][p][s]
					}
				}
			}
			pool = append(pool, row)
		}
	}
	return pool, nCount
}

// mahalanobisSquared returns the squared Mahalanobis distance of each pool
// row to the target cloud, or nil when the target covariance is singular
func mahalanobisSquared(target, pool [][]float64, dims int) []float64 {
	data := mat.NewDense(len(target), dims, nil)
	for i, row := range target {
		data.SetRow(i, row)
	}

	mean := make([]float64, dims)
	for j := 0; j < dims; j++ {
		mean[j] = stat.Mean(mat.Col(nil, j, data), nil)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	var covInv mat.Dense
	if err := covInv.Inverse(&cov); err != nil {
		return nil
	}

	d2 := make([]float64, len(pool))
	diff := mat.NewVecDense(dims, nil)
	tmp := mat.NewVecDense(dims, nil)
	for i, row := range pool {
		for j := 0; j < dims; j++ {
			diff.SetVec(j, row[j]-mean[j])
		}
		tmp.MulVec(&covInv, diff)
		d2[i] = mat.Dot(diff, tmp)
	}
	return d2
}
