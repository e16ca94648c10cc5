// Package visibility computes the observer-frame time interval during which
// a transient can produce signal.
package visibility

import "fmt"

// Window returns the observer-frame interval [t0, t1] for a transient with
// the given reference epoch and redshift, given the brightness model's
// rest-frame support bounds. Time dilation stretches the rest-frame offsets
// by (1+z).
func Window(refEpoch, redshift, minOffset, maxOffset float64) (float64, float64, error) {
	if redshift < 0 {
		return 0, 0, fmt.Errorf("redshift must be non-negative, got %g", redshift)
	}
	if minOffset > maxOffset {
		return 0, 0, fmt.Errorf("model time bounds inverted: min %g > max %g", minOffset, maxOffset)
	}
	t0 := refEpoch + minOffset*(1+redshift)
	t1 := refEpoch + maxOffset*(1+redshift)
	return t0, t1, nil
}
