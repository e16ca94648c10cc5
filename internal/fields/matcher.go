// Package fields matches sky positions against survey fields and custom
// telescope pointings.
//
// Field assignment uses a declination-band index over the catalog so that a
// query only tests fields whose band can geometrically contain the position:
// for N positions and F fields the cost is O(N * F_band) with F_band the
// mean band occupancy, instead of the brute-force O(N * F). Custom-pointing
// assignment has no index (the sentinel set is typically small) and is a
// plain O(N * S) sweep, evaluated only when sentinel pointings exist.
package fields

import "math"

// Matcher answers batch spatial queries against a field catalog.
// Immutable after construction; safe for concurrent reads.
type Matcher struct {
	catalog *Catalog
	bandDeg float64
	bands   map[int][]int // dec band -> field slice indices
}

// NewMatcher builds the declination-band index for the catalog.
func NewMatcher(c *Catalog) *Matcher {
	m := &Matcher{
		catalog: c,
		bandDeg: c.Height,
		bands:   make(map[int][]int),
	}
	for i := range c.IDs {
		b := m.band(c.Dec[i])
		m.bands[b] = append(m.bands[b], i)
	}
	return m
}

func (m *Matcher) band(dec float64) int {
	return int(math.Floor((dec + 90) / m.bandDeg))
}

// AssignFields returns, for each position, the ids of all catalog fields
// whose footprint contains it. A position covered by no field gets an
// empty slice.
func (m *Matcher) AssignFields(ra, dec []float64) [][]int64 {
	out := make([][]int64, len(ra))
	for i := range ra {
		b := m.band(dec[i])
		var ids []int64
		// A field centered in an adjacent band can still reach this
		// position, so check the band and both neighbors.
		for _, nb := range [3]int{b - 1, b, b + 1} {
			for _, fi := range m.bands[nb] {
				if m.catalog.Footprint(fi).Contains(ra[i], dec[i]) {
					ids = append(ids, m.catalog.IDs[fi])
				}
			}
		}
		out[i] = ids
	}
	return out
}

// AssignCustomPointings returns, for each position, the indices (into the
// footprints slice) of all custom pointings whose footprint contains it.
// A position contained by none gets an empty slice; that is a normal
// outcome, not an error.
func AssignCustomPointings(ra, dec []float64, footprints []Footprint) [][]int {
	out := make([][]int, len(ra))
	for k, f := range footprints {
		hits := f.ContainsBatch(ra, dec)
		for i, hit := range hits {
			if hit {
				out[i] = append(out[i], k)
			}
		}
	}
	return out
}
