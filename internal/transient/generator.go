// Package transient provides a concrete transient population generator and
// a simple Gaussian burst brightness model. They satisfy the survey
// interfaces so the binaries and tests have a complete pipeline to run;
// richer models plug in through the same interfaces.
package transient

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/shaonghosh/simsurvey/internal/survey"
)

// GeneratorConfig describes a uniform transient population.
type GeneratorConfig struct {
	// Count is the number of transients to draw.
	Count int

	// RAMin, RAMax bound right ascension in degrees. RAMin may exceed
	// RAMax to wrap through 0.
	RAMin, RAMax float64
	// DecMin, DecMax bound declination in degrees.
	DecMin, DecMax float64

	// ZMin, ZMax bound redshift.
	ZMin, ZMax float64

	// EpochMin, EpochMax bound the reference epoch (MJD).
	EpochMin, EpochMax float64

	// AmplitudeMean, AmplitudeSigma parameterize the lognormal peak-flux
	// draw stored under the "amplitude" parameter.
	AmplitudeMean, AmplitudeSigma float64

	// MWEBV is the fixed Milky Way extinction estimate attached to every
	// transient. A real run would look this up per position.
	MWEBV float64

	// Seed makes the population reproducible when non-zero.
	Seed int64
}

// Generator draws a fixed transient catalog once and serves it as a
// survey.TransientSource.
type Generator struct {
	transients []survey.Transient
	ra, dec    []float64
}

// NewGenerator draws the population described by cfg.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.Count < 0 {
		return nil, fmt.Errorf("transient count %d must not be negative", cfg.Count)
	}
	if cfg.DecMin < -90 || cfg.DecMax > 90 || cfg.DecMin > cfg.DecMax {
		return nil, fmt.Errorf("declination range [%g, %g] invalid", cfg.DecMin, cfg.DecMax)
	}
	if cfg.ZMin < 0 || cfg.ZMin > cfg.ZMax {
		return nil, fmt.Errorf("redshift range [%g, %g] invalid", cfg.ZMin, cfg.ZMax)
	}
	if cfg.EpochMin > cfg.EpochMax {
		return nil, fmt.Errorf("epoch range [%g, %g] invalid", cfg.EpochMin, cfg.EpochMax)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	raSpan := cfg.RAMax - cfg.RAMin
	if raSpan <= 0 {
		raSpan += 360
	}
	// Uniform on the sphere: draw sin(dec), not dec.
	sinLo := math.Sin(cfg.DecMin * math.Pi / 180)
	sinHi := math.Sin(cfg.DecMax * math.Pi / 180)

	g := &Generator{
		transients: make([]survey.Transient, cfg.Count),
		ra:         make([]float64, cfg.Count),
		dec:        make([]float64, cfg.Count),
	}
	for i := 0; i < cfg.Count; i++ {
		ra := cfg.RAMin + rng.Float64()*raSpan
		if ra >= 360 {
			ra -= 360
		}
		dec := math.Asin(sinLo+rng.Float64()*(sinHi-sinLo)) * 180 / math.Pi

		amp := cfg.AmplitudeMean
		if cfg.AmplitudeSigma > 0 {
			amp = math.Exp(math.Log(cfg.AmplitudeMean) + rng.NormFloat64()*cfg.AmplitudeSigma)
		}

		g.transients[i] = survey.Transient{
			RA:       ra,
			Dec:      dec,
			Redshift: cfg.ZMin + rng.Float64()*(cfg.ZMax-cfg.ZMin),
			RefEpoch: cfg.EpochMin + rng.Float64()*(cfg.EpochMax-cfg.EpochMin),
			MWEBV:    cfg.MWEBV,
			Params:   map[string]float64{"amplitude": amp},
		}
		g.ra[i] = ra
		g.dec[i] = dec
	}
	return g, nil
}

func (g *Generator) Count() int                { return len(g.transients) }
func (g *Generator) At(i int) survey.Transient { return g.transients[i] }
func (g *Generator) RA() []float64             { return g.ra }
func (g *Generator) Dec() []float64            { return g.dec }
