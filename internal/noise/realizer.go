// Package noise turns noiseless model fluxes into realistic flux
// measurements. The covariance has a diagonal sky+Poisson term per epoch
// plus, for bands with a declared calibration error, a fully-correlated
// multiplicative term shared across all epochs of the band. One correlated
// noise vector is drawn per transient through a Cholesky factorization of
// the covariance.
package noise

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/shaonghosh/simsurvey/internal/instrument"
)

// ErrNotPositiveDefinite is returned when the flux covariance cannot be
// Cholesky-factorized. Given the construction this indicates a numerically
// singular design (e.g. zero skynoise and zero flux), which is a modeling
// defect rather than expected sparsity.
var ErrNotPositiveDefinite = errors.New("flux covariance is not positive definite")

// Design is the per-transient observation design: the plan rows the
// transient is observed at, ordered by time, with the instrument columns
// resolved per band.
type Design struct {
	Time     []float64
	Band     []string
	Skynoise []float64
	Gain     []float64
	ZP       []float64
	ZPSys    []string
}

// Len returns the number of design rows (epochs).
func (d *Design) Len() int { return len(d.Time) }

// Result is one realized lightcurve's flux data. Cov is non-nil only when
// at least one contributing band declares a calibration error; otherwise
// the diagonal (as Fluxerr) is all that is kept.
type Result struct {
	Flux    []float64
	Fluxerr []float64
	Cov     *mat.SymDense
}

// Realizer draws correlated flux realizations for observation designs.
// Not safe for concurrent use: each worker should own one.
type Realizer struct {
	instruments *instrument.Set
	rng         *rand.Rand
}

// NewRealizer creates a realizer drawing from the given source. A nil rng
// falls back to an unseeded source.
func NewRealizer(set *instrument.Set, rng *rand.Rand) *Realizer {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Realizer{instruments: set, rng: rng}
}

// Covariance builds the flux covariance for a design and its noiseless
// model fluxes. It returns the matrix and whether any contributing band
// carries a calibration error (and the full matrix is therefore worth
// keeping).
func (r *Realizer) Covariance(d *Design, flux []float64) (*mat.SymDense, bool, error) {
	n := d.Len()
	if len(flux) != n {
		return nil, false, fmt.Errorf("flux length %d does not match design length %d", len(flux), n)
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		fe := math.Sqrt(d.Skynoise[i]*d.Skynoise[i] + math.Abs(flux[i])/d.Gain[i])
		cov.SetSym(i, i, fe*fe)
	}

	saveCov := false
	byBand := make(map[string][]int)
	for i, b := range d.Band {
		byBand[b] = append(byBand[b], i)
	}
	for band, idx := range byBand {
		spec, ok := r.instruments.Get(band)
		if !ok {
			return nil, false, fmt.Errorf("design row band %q: %w", band, instrument.ErrUnknownBand)
		}
		if spec.ErrCalib == nil {
			continue
		}
		saveCov = true
		e2 := *spec.ErrCalib * *spec.ErrCalib
		for _, i := range idx {
			for _, j := range idx {
				if j < i {
					continue
				}
				cov.SetSym(i, j, cov.At(i, j)+flux[i]*flux[j]*e2)
			}
		}
	}

	return cov, saveCov, nil
}

// Realize produces the noisy fluxes for one design given its noiseless
// model fluxes. The blinded bias, if configured, scales the realized flux
// after the noise draw; the reported fluxerr stays unbiased (square root
// of the covariance diagonal).
func (r *Realizer) Realize(d *Design, modelFlux []float64) (*Result, error) {
	n := d.Len()
	cov, saveCov, err := r.Covariance(d, modelFlux)
	if err != nil {
		return nil, err
	}

	var chol mat.Cholesky
	if !chol.Factorize(cov) {
		return nil, ErrNotPositiveDefinite
	}
	var l mat.TriDense
	chol.LTo(&l)

	z := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		z.SetVec(i, r.rng.NormFloat64())
	}
	noise := mat.NewVecDense(n, nil)
	noise.MulVec(&l, z)

	flux := make([]float64, n)
	fluxerr := make([]float64, n)
	for i := 0; i < n; i++ {
		flux[i] = (modelFlux[i] + noise.AtVec(i)) * r.instruments.BiasScale(d.Band[i])
		fluxerr[i] = math.Sqrt(cov.At(i, i))
	}

	res := &Result{Flux: flux, Fluxerr: fluxerr}
	if saveCov {
		res.Cov = cov
	}
	return res, nil
}
