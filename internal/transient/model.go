package transient

import (
	"fmt"
	"math"

	"github.com/shaonghosh/simsurvey/internal/survey"
)

// GaussianBurst is a brightness model with a Gaussian time profile around
// the reference epoch. The profile is stretched by (1+z) in the observer
// frame, and per-band throughput factors scale the amplitude.
type GaussianBurst struct {
	// Width is the rest-frame standard deviation of the profile in days.
	Width float64
	// Support is the half-width of the rest-frame time support in units
	// of Width.
	Support float64
	// Throughput scales the amplitude per band; bands absent from the
	// map use 1.
	Throughput map[string]float64
}

// NewGaussianBurst builds a burst model with the conventional 5-sigma
// support.
func NewGaussianBurst(width float64, throughput map[string]float64) (*GaussianBurst, error) {
	if width <= 0 {
		return nil, fmt.Errorf("burst width %g must be positive", width)
	}
	return &GaussianBurst{Width: width, Support: 5, Throughput: throughput}, nil
}

// TimeBounds returns the rest-frame support of the profile.
func (m *GaussianBurst) TimeBounds() (float64, float64) {
	h := m.Support * m.Width
	return -h, h
}

// Bandflux evaluates the profile at observer-frame times. The amplitude
// comes from the transient's "amplitude" parameter; a missing parameter
// means zero flux.
func (m *GaussianBurst) Bandflux(tr survey.Transient, times []float64, band string) ([]float64, error) {
	amp := tr.Params["amplitude"]
	if scale, ok := m.Throughput[band]; ok {
		amp *= scale
	}
	sigma := m.Width * (1 + tr.Redshift)

	out := make([]float64, len(times))
	for i, t := range times {
		d := (t - tr.RefEpoch) / sigma
		out[i] = amp * math.Exp(-0.5*d*d)
	}
	return out, nil
}
