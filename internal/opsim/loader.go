// Package opsim ingests observation plans from opsim-style SQLite files.
// The schema expected is the survey summary table with one row per
// exposure: epoch, filter, field position, field id and 5-sigma limiting
// depth.
package opsim

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/shaonghosh/simsurvey/internal/plan"
)

// Options controls the ingestion.
type Options struct {
	// Table is the summary table name. Defaults to "Summary".
	Table string

	// ZP is the zero point used to convert limiting depth into sky
	// noise. It must match the instrument zero points used downstream.
	ZP float64

	// DefaultDepth substitutes for NULL 5-sigma depth values.
	DefaultDepth float64

	// BandMap translates the filter column into instrument band names.
	// Filters absent from a non-nil map fail the load; a nil map keeps
	// the filter names as-is.
	BandMap map[string]string

	// Width and Height are the field footprint dimensions in degrees.
	Width, Height float64
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load reads every exposure from the opsim file at path and builds an
// observation plan: the distinct fields become the plan's field catalog
// and each exposure becomes a field pointing. Positions in the file are
// radians and are converted to degrees.
func Load(ctx context.Context, path string, opts Options, logger *slog.Logger) (*plan.Plan, error) {
	if opts.Table == "" {
		opts.Table = "Summary"
	}
	if !identPattern.MatchString(opts.Table) {
		return nil, fmt.Errorf("invalid summary table name %q", opts.Table)
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open opsim file %s: %w", path, err)
	}
	defer db.Close()

	query := fmt.Sprintf(
		"SELECT expMJD, filter, fieldRA, fieldDec, fieldID, fiveSigmaDepth FROM %s ORDER BY expMJD",
		opts.Table)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", opts.Table, err)
	}
	defer rows.Close()

	type fieldPos struct{ ra, dec float64 }
	fieldSeen := make(map[int64]fieldPos)
	var pointings []plan.Pointing
	defaulted := 0

	for rows.Next() {
		var (
			mjd, ra, dec float64
			filter       string
			fieldID      int64
			depth        sql.NullFloat64
		)
		if err := rows.Scan(&mjd, &filter, &ra, &dec, &fieldID, &depth); err != nil {
			return nil, fmt.Errorf("scan exposure row: %w", err)
		}

		band := filter
		if opts.BandMap != nil {
			mapped, ok := opts.BandMap[filter]
			if !ok {
				return nil, fmt.Errorf("filter %q has no band mapping", filter)
			}
			band = mapped
		}

		d := opts.DefaultDepth
		if depth.Valid {
			d = depth.Float64
		} else {
			defaulted++
		}

		fieldSeen[fieldID] = fieldPos{ra: ra * 180 / math.Pi, dec: dec * 180 / math.Pi}
		pointings = append(pointings, plan.FieldPointing(
			mjd, band, plan.SkynoiseFromDepth(d, opts.ZP), fieldID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", opts.Table, err)
	}
	if len(pointings) == 0 {
		return nil, fmt.Errorf("table %s holds no exposures", opts.Table)
	}

	ids := make([]int64, 0, len(fieldSeen))
	for id := range fieldSeen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fra := make([]float64, len(ids))
	fdec := make([]float64, len(ids))
	for i, id := range ids {
		fra[i] = fieldSeen[id].ra
		fdec[i] = fieldSeen[id].dec
	}

	p, err := plan.New(opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}
	if err := p.SetFields(ids, fra, fdec); err != nil {
		return nil, err
	}
	if err := p.AddPointings(pointings); err != nil {
		return nil, err
	}

	logger.Info("opsim plan loaded",
		"path", path,
		"exposures", len(pointings),
		"fields", len(ids),
		"defaulted_depths", defaulted,
	)
	return p, nil
}
