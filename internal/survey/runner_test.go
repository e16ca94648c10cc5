package survey

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/shaonghosh/simsurvey/internal/instrument"
	"github.com/shaonghosh/simsurvey/internal/plan"
)

// sliceSource is a fixed in-memory transient catalog.
type sliceSource []Transient

func (s sliceSource) Count() int         { return len(s) }
func (s sliceSource) At(i int) Transient { return s[i] }

func (s sliceSource) RA() []float64 {
	out := make([]float64, len(s))
	for i, tr := range s {
		out[i] = tr.RA
	}
	return out
}

func (s sliceSource) Dec() []float64 {
	out := make([]float64, len(s))
	for i, tr := range s {
		out[i] = tr.Dec
	}
	return out
}

// rampModel has rest-frame support [minOff, maxOff] and a flux that grows
// linearly with time, base + slope*(t - ref), independent of band.
type rampModel struct {
	minOff, maxOff float64
	base, slope    float64
}

func (m rampModel) TimeBounds() (float64, float64) { return m.minOff, m.maxOff }

func (m rampModel) Bandflux(tr Transient, times []float64, band string) ([]float64, error) {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = m.base + m.slope*(t-tr.RefEpoch)
	}
	return out, nil
}

func calib(v float64) *float64 { return &v }

func testLogger() *slog.Logger { return slog.Default() }

func fieldOnePlan(t *testing.T) *plan.Plan {
	t.Helper()
	p, err := plan.New(7, 7)
	if err != nil {
		t.Fatalf("plan.New: %v", err)
	}
	if err := p.SetFields([]int64{1}, []float64{180}, []float64{0}); err != nil {
		t.Fatalf("SetFields: %v", err)
	}
	if err := p.AddPointings([]plan.Pointing{
		plan.FieldPointing(0, "g", 0.1, 1),
		plan.FieldPointing(10, "g", 0.1, 1),
	}); err != nil {
		t.Fatalf("AddPointings: %v", err)
	}
	return p
}

func gOnlyInstruments(t *testing.T, errCalib *float64) *instrument.Set {
	t.Helper()
	set := instrument.NewSet()
	if err := set.Add("g", instrument.Spec{Gain: 1, ZP: 30, ZPSys: "ab", ErrCalib: errCalib}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return set
}

func TestRunFieldTransientBothEpochs(t *testing.T) {
	p := fieldOnePlan(t)
	set := gOnlyInstruments(t, nil)
	src := sliceSource{{RA: 180, Dec: 0, Redshift: 0, RefEpoch: 5}}
	model := rampModel{minOff: -5, maxOff: 20, base: 100, slope: 0}

	r := NewRunner(p, set, src, model, Config{Workers: 2, Seed: 1}, testLogger())
	lcs, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if lcs.Len() != 1 {
		t.Fatalf("collection length = %d, want 1", lcs.Len())
	}
	lc, err := lcs.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if lc.Len() != 2 {
		t.Fatalf("epochs = %d, want 2 (window [0, 25] covers both pointings)", lc.Len())
	}
	if lc.Time[0] != 0 || lc.Time[1] != 10 {
		t.Errorf("epoch times = %v, want [0 10]", lc.Time)
	}

	// No calibration error: fluxerr is the baseline sqrt(skynoise^2 + |flux|/gain)
	// and no covariance is stored.
	for i := 0; i < 2; i++ {
		want := math.Sqrt(0.1*0.1 + 100.0)
		if math.Abs(lc.Fluxerr[i]-want) > 1e-12 {
			t.Errorf("fluxerr[%d] = %g, want %g", i, lc.Fluxerr[i], want)
		}
		if lc.Gain[i] != 1 || lc.ZP[i] != 30 || lc.ZPSys[i] != "ab" {
			t.Errorf("instrument columns wrong at epoch %d: gain=%g zp=%g zpsys=%q",
				i, lc.Gain[i], lc.ZP[i], lc.ZPSys[i])
		}
	}
	if lc.FluxCov != nil {
		t.Error("covariance must not be stored without calibration errors")
	}

	if lc.Meta["idx_orig"].(int64) != 0 {
		t.Errorf("idx_orig = %v, want 0", lc.Meta["idx_orig"])
	}
	if lc.Meta["ra"].(float64) != 180 || lc.Meta["dec"].(float64) != 0 {
		t.Errorf("position metadata wrong: %v", lc.Meta)
	}
}

func TestRunTransientOutsideWindowExcluded(t *testing.T) {
	p := fieldOnePlan(t)
	set := gOnlyInstruments(t, nil)
	// Window [95, 125] misses the epochs at 0 and 10.
	src := sliceSource{{RA: 180, Dec: 0, Redshift: 0, RefEpoch: 100}}
	model := rampModel{minOff: -5, maxOff: 20, base: 100}

	r := NewRunner(p, set, src, model, Config{Workers: 1, Seed: 1}, testLogger())
	lcs, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lcs.Len() != 0 {
		t.Errorf("collection length = %d, want 0 (transient outside every epoch window)", lcs.Len())
	}
}

func TestRunCalibrationCovarianceStored(t *testing.T) {
	p := fieldOnePlan(t)
	set := gOnlyInstruments(t, calib(0.01))
	src := sliceSource{{RA: 180, Dec: 0, Redshift: 0, RefEpoch: 5}}
	// Model flux 100 at epoch 0 and 120 at epoch 10.
	model := rampModel{minOff: -5, maxOff: 20, base: 110, slope: 2}

	r := NewRunner(p, set, src, model, Config{Workers: 1, Seed: 1}, testLogger())
	lcs, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lcs.Len() != 1 {
		t.Fatalf("collection length = %d, want 1", lcs.Len())
	}
	lc, _ := lcs.Get(0)
	if lc.FluxCov == nil {
		t.Fatal("covariance must be stored when a band carries a calibration error")
	}
	if got, want := lc.FluxCov[0][1], 100.0*120.0*0.0001; math.Abs(got-want) > 1e-9 {
		t.Errorf("off-diagonal covariance = %g, want %g", got, want)
	}
}

func TestRunNotConfigured(t *testing.T) {
	set := gOnlyInstruments(t, nil)
	src := sliceSource{{RA: 180, Dec: 0}}
	model := rampModel{minOff: -5, maxOff: 20, base: 100}

	r := NewRunner(nil, set, src, model, Config{}, testLogger())
	if _, err := r.Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("nil plan: expected ErrNotConfigured, got %v", err)
	}

	empty, _ := plan.New(7, 7)
	r = NewRunner(empty, set, src, model, Config{}, testLogger())
	if _, err := r.Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("empty plan: expected ErrNotConfigured, got %v", err)
	}

	p := fieldOnePlan(t)
	r = NewRunner(p, instrument.NewSet(), src, model, Config{}, testLogger())
	if _, err := r.Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("empty instruments: expected ErrNotConfigured, got %v", err)
	}
}

func TestRunUnknownBandAbortsBeforeProcessing(t *testing.T) {
	p := fieldOnePlan(t)
	if err := p.AddPointings([]plan.Pointing{plan.FieldPointing(5, "z", 0.1, 1)}); err != nil {
		t.Fatalf("AddPointings: %v", err)
	}
	set := gOnlyInstruments(t, nil)
	src := sliceSource{{RA: 180, Dec: 0, RefEpoch: 5}}
	model := rampModel{minOff: -5, maxOff: 20, base: 100}

	r := NewRunner(p, set, src, model, Config{Seed: 1}, testLogger())
	_, err := r.Run(context.Background())
	if !errors.Is(err, instrument.ErrUnknownBand) {
		t.Errorf("expected ErrUnknownBand, got %v", err)
	}
}

func TestRunCustomPointingObservation(t *testing.T) {
	p, err := plan.New(7, 7)
	if err != nil {
		t.Fatalf("plan.New: %v", err)
	}
	// No field catalog at all: only custom pointings.
	if err := p.AddPointings([]plan.Pointing{
		plan.CustomPointing(3, "g", 0.1, 100, -30),
		plan.CustomPointing(8, "g", 0.1, 100, -30),
		plan.CustomPointing(8, "g", 0.1, 250, 40), // far away
	}); err != nil {
		t.Fatalf("AddPointings: %v", err)
	}
	set := gOnlyInstruments(t, nil)
	src := sliceSource{
		{RA: 100, Dec: -30, RefEpoch: 5},
		{RA: 10, Dec: 10, RefEpoch: 5}, // covered by nothing
	}
	model := rampModel{minOff: -5, maxOff: 20, base: 100}

	r := NewRunner(p, set, src, model, Config{Workers: 2, Seed: 1}, testLogger())
	lcs, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lcs.Len() != 1 {
		t.Fatalf("collection length = %d, want 1", lcs.Len())
	}
	lc, _ := lcs.Get(0)
	if lc.Len() != 2 {
		t.Errorf("epochs = %d, want 2 (the two pointings covering the transient)", lc.Len())
	}
	if lc.Meta["idx_orig"].(int64) != 0 {
		t.Errorf("idx_orig = %v, want 0", lc.Meta["idx_orig"])
	}
}

func TestRunDeterministicOrderAcrossWorkers(t *testing.T) {
	p := fieldOnePlan(t)
	set := gOnlyInstruments(t, nil)

	// Alternate transients inside and outside the field; with many workers
	// the output order must still follow the catalog index.
	var src sliceSource
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			src = append(src, Transient{RA: 180, Dec: 0, RefEpoch: 5})
		} else {
			src = append(src, Transient{RA: 20, Dec: 50, RefEpoch: 5})
		}
	}
	model := rampModel{minOff: -5, maxOff: 20, base: 100}

	r := NewRunner(p, set, src, model, Config{Workers: 8, Seed: 1}, testLogger())
	lcs, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lcs.Len() != 20 {
		t.Fatalf("collection length = %d, want 20", lcs.Len())
	}
	for i := 0; i < lcs.Len(); i++ {
		lc, _ := lcs.Get(i)
		if got, want := lc.Meta["idx_orig"].(int64), int64(2*i); got != want {
			t.Errorf("position %d: idx_orig = %d, want %d", i, got, want)
		}
	}
}

func TestRunSeedReproducible(t *testing.T) {
	model := rampModel{minOff: -5, maxOff: 20, base: 100}
	src := sliceSource{{RA: 180, Dec: 0, RefEpoch: 5}}

	run := func() []float64 {
		p := fieldOnePlan(t)
		set := gOnlyInstruments(t, nil)
		r := NewRunner(p, set, src, model, Config{Workers: 4, Seed: 99}, testLogger())
		lcs, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		lc, _ := lcs.Get(0)
		return lc.Flux
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("flux[%d] differs across seeded runs: %g vs %g", i, a[i], b[i])
		}
	}
}

func TestOnPlanChangedInvalidatesAssignments(t *testing.T) {
	p, err := plan.New(7, 7)
	if err != nil {
		t.Fatalf("plan.New: %v", err)
	}
	if err := p.AddPointings([]plan.Pointing{plan.CustomPointing(3, "g", 0.1, 250, 40)}); err != nil {
		t.Fatalf("AddPointings: %v", err)
	}
	set := gOnlyInstruments(t, nil)
	src := sliceSource{{RA: 100, Dec: -30, RefEpoch: 5}}
	model := rampModel{minOff: -5, maxOff: 20, base: 100}

	r := NewRunner(p, set, src, model, Config{Workers: 1, Seed: 1}, testLogger())
	lcs, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lcs.Len() != 0 {
		t.Fatalf("transient should not be observed yet, got %d lightcurves", lcs.Len())
	}

	// Add a pointing that covers the transient. Without invalidation the
	// cached assignment is stale and the run still misses it.
	if err := p.AddPointings([]plan.Pointing{plan.CustomPointing(6, "g", 0.1, 100, -30)}); err != nil {
		t.Fatalf("AddPointings: %v", err)
	}
	lcs, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lcs.Len() != 0 {
		t.Fatalf("stale cache should still miss the new pointing, got %d", lcs.Len())
	}

	r.OnPlanChanged()
	lcs, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lcs.Len() != 1 {
		t.Errorf("after OnPlanChanged the transient should be observed, got %d", lcs.Len())
	}
}
