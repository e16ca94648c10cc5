// Package instrument holds the per-band instrument properties used to turn
// model fluxes into measurements: gain, photometric zero point, optional
// calibration error, and the survey's blinded photometric bias.
//
// Bands form a closed, pre-declared set: every band appearing in an
// observation plan must be registered here before a run.
package instrument

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ErrUnknownBand is returned when an observation references a band with no
// registered instrument properties.
var ErrUnknownBand = errors.New("unknown instrument band")

// Spec describes one band's instrument properties. ErrCalib is the relative
// calibration error for the band; nil means the band has no inter-epoch
// calibration correlation.
type Spec struct {
	Gain     float64
	ZP       float64
	ZPSys    string
	ErrCalib *float64
}

// Set is the registry of instrument specs for a survey, plus the blinded
// per-band bias drawn for the current configuration.
type Set struct {
	specs map[string]Spec
	bias  map[string]float64
}

// NewSet creates an empty instrument registry.
func NewSet() *Set {
	return &Set{specs: make(map[string]Spec)}
}

// Add registers the spec for a band, replacing any previous one.
func (s *Set) Add(band string, spec Spec) error {
	if band == "" {
		return errors.New("band name must not be empty")
	}
	if spec.Gain <= 0 {
		return fmt.Errorf("band %q: gain must be positive, got %g", band, spec.Gain)
	}
	if spec.ZPSys == "" {
		spec.ZPSys = "ab"
	}
	if spec.ErrCalib != nil && *spec.ErrCalib < 0 {
		return fmt.Errorf("band %q: calibration error must be non-negative, got %g", band, *spec.ErrCalib)
	}
	s.specs[band] = spec
	return nil
}

// Get returns the spec for a band.
func (s *Set) Get(band string) (Spec, bool) {
	spec, ok := s.specs[band]
	return spec, ok
}

// Len returns the number of registered bands.
func (s *Set) Len() int { return len(s.specs) }

// Bands returns the registered band names, sorted.
func (s *Set) Bands() []string {
	out := make([]string, 0, len(s.specs))
	for b := range s.specs {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Validate checks that every band in the given list is registered. The
// first missing band fails the whole check: silently dropping rows for an
// unregistered band would corrupt the noise statistics downstream.
func (s *Set) Validate(bands []string) error {
	for _, b := range bands {
		if _, ok := s.specs[b]; !ok {
			return fmt.Errorf("band %q used in plan: %w (known bands: %v)", b, ErrUnknownBand, s.Bands())
		}
	}
	return nil
}

// SetBlindedBias draws a hidden photometric offset for each band in limits,
// uniformly from [-limit, +limit], and holds it fixed until the next call.
// Calling again redraws and replaces all values. The draw is intentionally
// not seeded by the caller: the bias is meant to be unknown to the analyst.
func (s *Set) SetBlindedBias(limits map[string]float64) {
	bias := make(map[string]float64, len(limits))
	for band, limit := range limits {
		bias[band] = -limit + 2*limit*rand.Float64()
	}
	s.bias = bias
}

// SetBlindedBiasValues installs explicit bias values, bypassing the random
// draw. Intended for test fixtures that need a reproducible bias.
func (s *Set) SetBlindedBiasValues(values map[string]float64) {
	bias := make(map[string]float64, len(values))
	for band, v := range values {
		bias[band] = v
	}
	s.bias = bias
}

// HasBlindedBias reports whether a bias has been configured.
func (s *Set) HasBlindedBias() bool { return s.bias != nil }

// BiasScale returns the multiplicative flux factor 10^(-0.4*bias[band]) for
// the band. Bands without a configured bias (or with no bias configured at
// all) scale by 1.
func (s *Set) BiasScale(band string) float64 {
	if s.bias == nil {
		return 1
	}
	b, ok := s.bias[band]
	if !ok {
		return 1
	}
	return math.Pow(10, -0.4*b)
}
