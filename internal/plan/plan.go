// Package plan holds the survey observation plan: the time-ordered catalog
// of telescope pointings and the field catalog they refer to.
package plan

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shaonghosh/simsurvey/internal/fields"
)

// FieldNone is the field id sentinel for a custom pointing, i.e. a pointing
// not tied to any declared field. Declared field ids must be non-negative.
const FieldNone int64 = -1

// ErrNoSelector is returned by FieldLookup when neither field ids nor
// custom-pointing indices are given.
var ErrNoSelector = errors.New("provide field ids and/or custom pointing indices")

// Pointing is one row of the observation plan. RA and Dec are always
// populated; Field is FieldNone for custom pointings.
type Pointing struct {
	Time     float64 // observer-frame epoch (MJD)
	Band     string
	Skynoise float64 // sky background noise in flux units
	RA       float64 // degrees
	Dec      float64 // degrees
	Field    int64
}

// FieldPointing builds a pointing addressed by field id; the coordinates
// are resolved from the field catalog when the pointing is added.
func FieldPointing(time float64, band string, skynoise float64, field int64) Pointing {
	return Pointing{Time: time, Band: band, Skynoise: skynoise,
		RA: math.NaN(), Dec: math.NaN(), Field: field}
}

// CustomPointing builds a pointing addressed by explicit coordinates.
func CustomPointing(time float64, band string, skynoise, ra, dec float64) Pointing {
	return Pointing{Time: time, Band: band, Skynoise: skynoise,
		RA: ra, Dec: dec, Field: FieldNone}
}

// Plan is the survey observation plan. Pointings are appended in order and
// never reordered in place; time-based queries sort their own output.
// Read-only during a run.
type Plan struct {
	width    float64
	height   float64
	catalog  *fields.Catalog
	rows     []Pointing
	sentinel []int // row indices with Field == FieldNone, in append order
}

// New creates an empty plan with the given shared footprint dimensions
// (degrees), used for fields and custom pointings alike.
func New(width, height float64) (*Plan, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("plan footprint width and height must be positive")
	}
	return &Plan{width: width, height: height}, nil
}

// Width returns the shared footprint width in degrees.
func (p *Plan) Width() float64 { return p.width }

// Height returns the shared footprint height in degrees.
func (p *Plan) Height() float64 { return p.height }

// SetFields installs the field catalog. The catalog inherits the plan's
// footprint dimensions.
func (p *Plan) SetFields(ids []int64, ra, dec []float64) error {
	cat, err := fields.NewCatalog(ids, ra, dec, p.width, p.height)
	if err != nil {
		return err
	}
	p.catalog = cat
	return nil
}

// Fields returns the field catalog, or nil if none is set.
func (p *Plan) Fields() *fields.Catalog { return p.catalog }

// Len returns the number of pointings.
func (p *Plan) Len() int { return len(p.rows) }

// AddPointings appends rows to the plan. Rows addressed by field id get
// their coordinates resolved from the catalog; rows addressed by
// coordinates must carry finite RA and Dec. No deduplication, no
// reordering: append order is preserved for tie-breaking.
func (p *Plan) AddPointings(rows []Pointing) error {
	resolved := make([]Pointing, 0, len(rows))
	for i, r := range rows {
		hasCoord := !math.IsNaN(r.RA) && !math.IsNaN(r.Dec)
		switch {
		case r.Field == FieldNone && !hasCoord:
			return fmt.Errorf("pointing %d: either field or ra/dec must be specified", i)
		case r.Field != FieldNone && r.Field < 0:
			return fmt.Errorf("pointing %d: invalid field id %d", i, r.Field)
		case r.Field != FieldNone && !hasCoord:
			if p.catalog == nil {
				return fmt.Errorf("pointing %d: field %d given but no field catalog set", i, r.Field)
			}
			ra, dec, ok := p.catalog.Center(r.Field)
			if !ok {
				return fmt.Errorf("pointing %d: field %d not in catalog", i, r.Field)
			}
			r.RA, r.Dec = ra, dec
		}
		if r.Skynoise < 0 {
			return fmt.Errorf("pointing %d: skynoise must be non-negative, got %g", i, r.Skynoise)
		}
		resolved = append(resolved, r)
	}

	base := len(p.rows)
	p.rows = append(p.rows, resolved...)
	for i, r := range resolved {
		if r.Field == FieldNone {
			p.sentinel = append(p.sentinel, base+i)
		}
	}
	return nil
}

// Pointing returns a copy of the row at index i.
func (p *Plan) Pointing(i int) Pointing { return p.rows[i] }

// Bands returns the distinct bands used by the plan, sorted.
func (p *Plan) Bands() []string {
	seen := make(map[string]bool)
	for _, r := range p.rows {
		seen[r.Band] = true
	}
	out := make([]string, 0, len(seen))
	for b := range seen {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// HasFieldPointings reports whether any row is addressed by a field id.
func (p *Plan) HasFieldPointings() bool {
	return len(p.sentinel) < len(p.rows)
}

// SentinelCount returns the number of custom pointings.
func (p *Plan) SentinelCount() int { return len(p.sentinel) }

// SentinelFootprints returns the footprints of all custom pointings, in
// append order. The index into this slice is the custom-pointing index
// used by FieldLookup.
func (p *Plan) SentinelFootprints() []fields.Footprint {
	out := make([]fields.Footprint, len(p.sentinel))
	for k, ri := range p.sentinel {
		r := p.rows[ri]
		out[k] = fields.Footprint{RA: r.RA, Dec: r.Dec, Width: p.width, Height: p.height}
	}
	return out
}

// FieldLookup returns the union of pointings whose field id is in fieldIDs
// and the custom pointings at customIdx (indices into the sentinel subset),
// restricted to the window [t0, t1] inclusive on both ends and sorted by
// time ascending with ties broken by original row order.
//
// At least one selector must be given; both empty is a configuration error.
func (p *Plan) FieldLookup(fieldIDs []int64, customIdx []int, t0, t1 float64) ([]Pointing, error) {
	if fieldIDs == nil && customIdx == nil {
		return nil, ErrNoSelector
	}

	selected := make(map[int]bool)
	if len(fieldIDs) > 0 {
		want := make(map[int64]bool, len(fieldIDs))
		for _, id := range fieldIDs {
			want[id] = true
		}
		for ri, r := range p.rows {
			if r.Field != FieldNone && want[r.Field] {
				selected[ri] = true
			}
		}
	}
	for _, ci := range customIdx {
		if ci < 0 || ci >= len(p.sentinel) {
			return nil, fmt.Errorf("custom pointing index %d out of range (have %d custom pointings)",
				ci, len(p.sentinel))
		}
		selected[p.sentinel[ci]] = true
	}

	idx := make([]int, 0, len(selected))
	for ri := range selected {
		if t := p.rows[ri].Time; t >= t0 && t <= t1 {
			idx = append(idx, ri)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		ta, tb := p.rows[idx[a]].Time, p.rows[idx[b]].Time
		if ta != tb {
			return ta < tb
		}
		return idx[a] < idx[b]
	})

	out := make([]Pointing, len(idx))
	for k, ri := range idx {
		out[k] = p.rows[ri]
	}
	return out, nil
}

// SkynoiseFromDepth converts a 5-sigma limiting magnitude into the
// flux-unit sky noise used by the plan: the flux of a source detected at
// exactly 5 sigma, divided by 5. The zero point must match the instrument
// zero point used for the survey.
func SkynoiseFromDepth(depth, zp float64) float64 {
	return math.Pow(10, -0.4*(depth-zp)) / 5
}
