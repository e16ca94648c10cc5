// Package survey orchestrates a full simulation run: field and
// custom-pointing assignment for the transient catalog, per-transient
// visibility windows and observation designs, noise realization, and
// collection of the resulting lightcurves.
package survey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/shaonghosh/simsurvey/internal/fields"
	"github.com/shaonghosh/simsurvey/internal/instrument"
	"github.com/shaonghosh/simsurvey/internal/lightcurve"
	"github.com/shaonghosh/simsurvey/internal/metrics"
	"github.com/shaonghosh/simsurvey/internal/noise"
	"github.com/shaonghosh/simsurvey/internal/plan"
	"github.com/shaonghosh/simsurvey/internal/visibility"
)

// ErrNotConfigured is returned by Run when the plan, instruments, transient
// source or model are missing or empty. The check runs before any transient
// is processed; there are no partial runs.
var ErrNotConfigured = errors.New("survey not fully configured")

// Config holds run parameters.
type Config struct {
	// Workers bounds the number of concurrent per-transient realizations.
	// Zero means one worker per CPU.
	Workers int
	// Seed makes the noise draws reproducible per transient index when
	// non-zero. Zero draws a fresh seed per run.
	Seed int64
}

// Runner composes the plan, instruments, transient source and brightness
// model into a survey simulation. The two batched assignment passes are
// cached across runs; call OnPlanChanged after mutating the plan or its
// field catalog to invalidate them.
type Runner struct {
	plan        *plan.Plan
	instruments *instrument.Set
	source      TransientSource
	model       Model
	config      Config
	logger      *slog.Logger

	// Assignment caches, rebuilt on demand after OnPlanChanged.
	assignValid  bool
	fieldAssign  [][]int64
	customAssign [][]int
}

// NewRunner creates a run orchestrator.
func NewRunner(p *plan.Plan, set *instrument.Set, src TransientSource, m Model,
	config Config, logger *slog.Logger) *Runner {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		plan:        p,
		instruments: set,
		source:      src,
		model:       m,
		config:      config,
		logger:      logger,
	}
}

// OnPlanChanged invalidates the assignment caches. Whoever mutates the plan
// (or its field catalog) must call this before the next Run.
func (r *Runner) OnPlanChanged() {
	r.assignValid = false
	r.fieldAssign = nil
	r.customAssign = nil
}

// realized is one worker's output for a single transient; nil means the
// transient was not observed.
type realized struct {
	body lightcurve.Body
	meta lightcurve.Meta
}

// Run simulates the whole catalog and returns the collection of realized
// lightcurves, ordered by original catalog index. Transients with no
// overlapping epochs are silently excluded. Any numerical or configuration
// failure aborts the run with the offending transient index.
func (r *Runner) Run(ctx context.Context) (*lightcurve.Collection, error) {
	if r.plan == nil || r.instruments == nil || r.source == nil || r.model == nil {
		return nil, fmt.Errorf("%w: plan, instruments, generator and model must all be set", ErrNotConfigured)
	}
	if r.plan.Len() == 0 {
		return nil, fmt.Errorf("%w: plan has no pointings", ErrNotConfigured)
	}
	if r.instruments.Len() == 0 {
		return nil, fmt.Errorf("%w: no instruments registered", ErrNotConfigured)
	}
	// Bands are a closed set: one unknown band fails the run up front.
	if err := r.instruments.Validate(r.plan.Bands()); err != nil {
		return nil, err
	}

	r.ensureAssignments()

	seed := r.config.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	minOff, maxOff := r.model.TimeBounds()
	n := r.source.Count()

	r.logger.Debug("starting survey run",
		"transients", n,
		"pointings", r.plan.Len(),
		"workers", r.config.Workers,
	)
	start := time.Now()

	results := make([]*realized, n)
	errs := make([]error, n)
	sem := make(chan struct{}, r.config.Workers)
	var wg sync.WaitGroup

	for k := 0; k < n; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[k] = ctx.Err()
				return
			}

			// Seeding by transient index keeps the draw independent of
			// worker scheduling.
			rlz := noise.NewRealizer(r.instruments, rand.New(rand.NewSource(seed+int64(k))))
			res, err := r.realizeOne(k, rlz, minOff, maxOff)
			if err != nil {
				errs[k] = err
				return
			}
			results[k] = res
		}(k)
	}
	wg.Wait()

	// Merge phase: single-threaded, original catalog order.
	for k := 0; k < n; k++ {
		if errs[k] != nil {
			return nil, fmt.Errorf("transient %d: %w", k, errs[k])
		}
	}
	lcs := lightcurve.NewCollection()
	epochs := 0
	for k := 0; k < n; k++ {
		if results[k] == nil {
			continue
		}
		if err := lcs.Add(results[k].body, results[k].meta); err != nil {
			return nil, fmt.Errorf("transient %d: %w", k, err)
		}
		epochs += results[k].body.Len()
	}

	duration := time.Since(start)
	metrics.RecordRun(duration, n, lcs.Len(), epochs)
	metrics.SetPlanPointings(r.plan.Len())

	r.logger.Info("survey run complete",
		"transients", n,
		"realized", lcs.Len(),
		"epochs", epochs,
		"duration_ms", duration.Milliseconds(),
	)
	return lcs, nil
}

// ensureAssignments rebuilds the batched field and custom-pointing
// assignments if they were invalidated.
func (r *Runner) ensureAssignments() {
	if r.assignValid {
		return
	}
	metrics.IncAssignmentRebuilds()

	ra, dec := r.source.RA(), r.source.Dec()

	if cat := r.plan.Fields(); cat != nil && r.plan.HasFieldPointings() {
		r.fieldAssign = fields.NewMatcher(cat).AssignFields(ra, dec)
	} else {
		r.fieldAssign = nil
	}

	// "No custom pointings configured" and "checked, none matched" produce
	// the same observations, but are distinct situations worth telling
	// apart in the logs.
	footprints := r.plan.SentinelFootprints()
	if len(footprints) == 0 {
		r.customAssign = nil
		r.logger.Debug("no custom pointings configured, containment check skipped")
	} else {
		r.customAssign = fields.AssignCustomPointings(ra, dec, footprints)
		matched := 0
		for _, idx := range r.customAssign {
			if len(idx) > 0 {
				matched++
			}
		}
		r.logger.Debug("custom pointing containment computed",
			"custom_pointings", len(footprints),
			"transients_matched", matched,
		)
	}

	r.assignValid = true
}

// realizeOne walks one transient through window computation, epoch lookup
// and noise realization. A nil result with nil error means "not observed".
func (r *Runner) realizeOne(k int, rlz *noise.Realizer, minOff, maxOff float64) (*realized, error) {
	tr := r.source.At(k)

	t0, t1, err := visibility.Window(tr.RefEpoch, tr.Redshift, minOff, maxOff)
	if err != nil {
		return nil, err
	}

	var fieldIDs []int64
	if r.fieldAssign != nil {
		fieldIDs = r.fieldAssign[k]
	}
	var customIdx []int
	if r.customAssign != nil {
		customIdx = r.customAssign[k]
	}
	if len(fieldIDs) == 0 && len(customIdx) == 0 {
		return nil, nil
	}

	rows, err := r.plan.FieldLookup(fieldIDs, customIdx, t0, t1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	design, err := r.buildDesign(rows)
	if err != nil {
		return nil, err
	}
	modelFlux, err := r.evaluateModel(tr, design)
	if err != nil {
		return nil, err
	}
	res, err := rlz.Realize(design, modelFlux)
	if err != nil {
		return nil, err
	}

	body := lightcurve.Body{
		Time:     design.Time,
		Band:     design.Band,
		Skynoise: design.Skynoise,
		Gain:     design.Gain,
		ZP:       design.ZP,
		ZPSys:    design.ZPSys,
		Flux:     res.Flux,
		Fluxerr:  res.Fluxerr,
		FluxCov:  covRows(res.Cov),
	}
	meta := lightcurve.Meta{
		"ra":          tr.RA,
		"dec":         tr.Dec,
		"mwebv_sfd98": tr.MWEBV,
		"idx_orig":    int64(k),
	}
	return &realized{body: body, meta: meta}, nil
}

// buildDesign resolves the instrument columns for the selected plan rows.
func (r *Runner) buildDesign(rows []plan.Pointing) (*noise.Design, error) {
	n := len(rows)
	d := &noise.Design{
		Time:     make([]float64, n),
		Band:     make([]string, n),
		Skynoise: make([]float64, n),
		Gain:     make([]float64, n),
		ZP:       make([]float64, n),
		ZPSys:    make([]string, n),
	}
	for i, row := range rows {
		spec, ok := r.instruments.Get(row.Band)
		if !ok {
			return nil, fmt.Errorf("band %q: %w", row.Band, instrument.ErrUnknownBand)
		}
		d.Time[i] = row.Time
		d.Band[i] = row.Band
		d.Skynoise[i] = row.Skynoise
		d.Gain[i] = spec.Gain
		d.ZP[i] = spec.ZP
		d.ZPSys[i] = spec.ZPSys
	}
	return d, nil
}

// evaluateModel computes the noiseless flux for every design row, calling
// the model once per band with that band's times.
func (r *Runner) evaluateModel(tr Transient, d *noise.Design) ([]float64, error) {
	byBand := make(map[string][]int)
	for i, b := range d.Band {
		byBand[b] = append(byBand[b], i)
	}

	flux := make([]float64, d.Len())
	for band, idx := range byBand {
		times := make([]float64, len(idx))
		for j, i := range idx {
			times[j] = d.Time[i]
		}
		vals, err := r.model.Bandflux(tr, times, band)
		if err != nil {
			return nil, fmt.Errorf("model flux in band %q: %w", band, err)
		}
		if len(vals) != len(idx) {
			return nil, fmt.Errorf("model returned %d fluxes for %d times in band %q",
				len(vals), len(idx), band)
		}
		for j, i := range idx {
			flux[i] = vals[j]
		}
	}
	return flux, nil
}

// covRows converts the symmetric covariance into row-major storage for the
// lightcurve body; nil stays nil.
func covRows(cov *mat.SymDense) [][]float64 {
	if cov == nil {
		return nil
	}
	n, _ := cov.Dims()
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = cov.At(i, j)
		}
	}
	return out
}
