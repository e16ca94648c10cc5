package fields

import "math"

const deg2rad = math.Pi / 180

// Footprint is a rectangular patch of sky centered on (RA, Dec) with the
// given angular width and height in degrees. Containment uses a small-angle
// approximation: the RA offset is scaled by cos(dec) and compared against
// half the width, with wraparound at the 0/360 boundary.
type Footprint struct {
	RA     float64 // degrees
	Dec    float64 // degrees
	Width  float64 // degrees
	Height float64 // degrees
}

// Contains reports whether the sky position (ra, dec) falls inside the footprint.
func (f Footprint) Contains(ra, dec float64) bool {
	dDec := dec - f.Dec
	if math.Abs(dDec) > f.Height/2 {
		return false
	}
	dRA := wrapDegrees(ra - f.RA)
	return math.Abs(dRA*math.Cos(dec*deg2rad)) <= f.Width/2
}

// ContainsBatch evaluates Contains for every position. Positions are given
// as parallel ra/dec slices; the result slice is parallel to them.
func (f Footprint) ContainsBatch(ra, dec []float64) []bool {
	out := make([]bool, len(ra))
	for i := range ra {
		out[i] = f.Contains(ra[i], dec[i])
	}
	return out
}

// wrapDegrees maps an angle difference into [-180, 180).
func wrapDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d >= 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return d
}
