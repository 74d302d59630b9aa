// Package refractory estimates the fraction of refractory-period violations
// in a unit's spike train. A neuron cannot fire twice within its refractory
// period, so inter-spike intervals shorter than the candidate window tauR
// (minus the censored dead time tauC) measure contamination by other units.
package refractory

import (
	"math"

	"github.com/spikeforge/unitqc/logging"
)

// Params selects the candidate refractory windows and the estimation model.
// TauR candidates span [TauRMin, TauRMax] at TauRStep, inclusive of the end
// point. UseHillMethod picks the closed-form estimator; the alternative is
// the exact O(N²) pairwise count, acceptable only for moderate per-chunk
// spike counts and therefore an explicit caller choice, never inferred.
type Params struct {
	TauRMin       float64 `json:"tau_r_min"`
	TauRMax       float64 `json:"tau_r_max"`
	TauRStep      float64 `json:"tau_r_step"`
	TauC          float64 `json:"tau_c"`
	UseHillMethod bool    `json:"use_hill_method"`
}

// TauRWindow expands the candidate grid, end point included
func (p Params) TauRWindow() []float64 {
	var taus []float64
	for v := p.TauRMin; v <= p.TauRMax+p.TauRStep/4; v += p.TauRStep {
		taus = append(taus, v)
	}
	return taus
}

// Result holds per-(chunk, tauR) violation fractions and raw violation
// counts. Fractions are always in [0, 1].
type Result struct {
	TauRs      []float64
	Fractions  [][]float64
	Violations [][]float64
}

// Estimator computes refractory-period violation fractions
type Estimator struct {
	params Params
	logger logging.Logger
}

// NewEstimator creates an RPV estimator
func NewEstimator(params Params) *Estimator {
	return &Estimator{
		params: params,
		logger: logging.WithFields(logging.Fields{
			"component": "rpv_estimator",
		}),
	}
}

// Estimate evaluates every candidate tauR for every time chunk. When
// onlyTauR is a valid index into the candidate grid, only that single column
// is computed; pass a negative index for the full grid.
func (e *Estimator) Estimate(times []float64, chunkEdges []float64, onlyTauR int) Result {
	taus := e.params.TauRWindow()
	if onlyTauR >= 0 && onlyTauR < len(taus) {
		taus = taus[onlyTauR : onlyTauR+1]
	}

	nChunks := max(len(chunkEdges)-1, 0)
	res := Result{
		TauRs:      taus,
		Fractions:  make([][]float64, nChunks),
		Violations: make([][]float64, nChunks),
	}

	for c := 0; c < nChunks; c++ {
		res.Fractions[c] = make([]float64, len(taus))
		res.Violations[c] = make([]float64, len(taus))

		t0, t1 := chunkEdges[c], chunkEdges[c+1]
		var chunk []float64
		for _, t := range times {
			if t >= t0 && t < t1 {
				chunk = append(chunk, t)
			}
		}

		for i, tauR := range taus {
			if e.params.UseHillMethod {
				res.Fractions[c][i], res.Violations[c][i] = e.hill(chunk, tauR, t1-t0)
			} else {
				res.Fractions[c][i], res.Violations[c][i] = e.pairwise(chunk, tauR, t1-t0)
			}
		}
	}
	return res
}

// hill counts successive-ISI violations and solves the quadratic relating
// the expected violation count to the contamination fraction f:
//
//	k·f² − k·f + v·T = 0, k = 2(tauR − tauC)·n²
//
// The smaller real root is the fraction. Complex roots mean the violation
// count is implausibly high for the spike count; fall back to a direct ratio,
// clamped to the f=1 overestimate when violations reach the spike count.
func (e *Estimator) hill(chunk []float64, tauR, duration float64) (fraction, violations float64) {
	n := float64(len(chunk))
	for i := 1; i < len(chunk); i++ {
		if chunk[i]-chunk[i-1] <= tauR {
			violations++
		}
	}
	if violations == 0 {
		// no observed violations: report 0, never extrapolate
		return 0, 0
	}

	k := 2 * (tauR - e.params.TauC) * n * n
	vT := violations * duration

	disc := k*k - 4*k*vT
	switch {
	case k > 0 && disc >= 0:
		fraction = (k - math.Sqrt(disc)) / (2 * k)
	case violations < n:
		fraction = violations / (2 * (tauR - e.params.TauC) * (n - violations))
	default:
		fraction = 1
	}

	if fraction > 1 {
		fraction = 1
	}
	return fraction, violations
}

// pairwise counts every spike pair whose interval falls inside [tauC, tauR]
// and inverts the expected-count relation directly. A negative radicand
// clamps the fraction to 1.
func (e *Estimator) pairwise(chunk []float64, tauR, duration float64) (fraction, violations float64) {
	n := float64(len(chunk))
	for i := range chunk {
		for j := i + 1; j < len(chunk); j++ {
			isi := chunk[j] - chunk[i]
			if isi >= e.params.TauC && isi <= tauR {
				violations++
			}
		}
	}
	if violations == 0 {
		return 0, 0
	}

	underRoot := 1 - violations*(duration-2*n*e.params.TauC)/(n*n*(tauR-e.params.TauC))
	if underRoot >= 0 {
		fraction = 1 - math.Sqrt(underRoot)
	} else {
		fraction = 1
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return fraction, violations
}
