package opsim

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"github.com/shaonghosh/simsurvey/internal/plan"
)

func writeFixture(t *testing.T, table string, rows [][]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opsim.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE " + table + " (" +
		"expMJD REAL, filter TEXT, fieldRA REAL, fieldDec REAL, " +
		"fieldID INTEGER, fiveSigmaDepth REAL)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for _, r := range rows {
		if _, err := db.Exec(
			"INSERT INTO "+table+" VALUES (?, ?, ?, ?, ?, ?)",
			r...); err != nil {
			t.Fatalf("insert row: %v", err)
		}
	}
	return path
}

func TestLoadBuildsPlan(t *testing.T) {
	// Positions are radians in the file.
	raRad := 180 * math.Pi / 180
	decRad := -30 * math.Pi / 180
	path := writeFixture(t, "Summary", [][]any{
		{58010.0, "g", raRad, decRad, int64(7), 24.5},
		{58000.0, "r", 0.0, 0.0, int64(3), 25.0},
		{58020.0, "g", raRad, decRad, int64(7), nil}, // NULL depth
	})

	p, err := Load(context.Background(), path, Options{
		ZP:           30,
		DefaultDepth: 23.0,
		Width:        7,
		Height:       7,
	}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if p.Len() != 3 {
		t.Fatalf("plan has %d pointings, want 3", p.Len())
	}
	cat := p.Fields()
	if cat == nil || cat.Len() != 2 {
		t.Fatalf("field catalog missing or wrong size")
	}
	ra, dec, ok := cat.Center(7)
	if !ok {
		t.Fatal("field 7 missing from catalog")
	}
	if math.Abs(ra-180) > 1e-9 || math.Abs(dec-(-30)) > 1e-9 {
		t.Errorf("field 7 center = (%g, %g), want (180, -30)", ra, dec)
	}

	// Epochs ordered by MJD, skynoise from the depth conversion.
	rows, err := p.FieldLookup([]int64{3, 7}, []int{}, 0, 1e6)
	if err != nil {
		t.Fatalf("FieldLookup: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("lookup returned %d rows, want 3", len(rows))
	}
	if rows[0].Time != 58000 || rows[1].Time != 58010 || rows[2].Time != 58020 {
		t.Errorf("epochs out of order: %v %v %v", rows[0].Time, rows[1].Time, rows[2].Time)
	}
	if want := plan.SkynoiseFromDepth(25.0, 30); rows[0].Skynoise != want {
		t.Errorf("skynoise = %g, want %g", rows[0].Skynoise, want)
	}
	// The NULL depth row uses the configured default.
	if want := plan.SkynoiseFromDepth(23.0, 30); rows[2].Skynoise != want {
		t.Errorf("defaulted skynoise = %g, want %g", rows[2].Skynoise, want)
	}
}

func TestLoadBandMap(t *testing.T) {
	path := writeFixture(t, "Summary", [][]any{
		{58000.0, "g", 0.0, 0.0, int64(1), 24.0},
	})

	p, err := Load(context.Background(), path, Options{
		ZP: 30, DefaultDepth: 23, Width: 7, Height: 7,
		BandMap: map[string]string{"g": "ztfg"},
	}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	bands := p.Bands()
	if len(bands) != 1 || bands[0] != "ztfg" {
		t.Errorf("bands = %v, want [ztfg]", bands)
	}

	// A filter without a mapping fails the load.
	if _, err := Load(context.Background(), path, Options{
		ZP: 30, DefaultDepth: 23, Width: 7, Height: 7,
		BandMap: map[string]string{"r": "ztfr"},
	}, nil); err == nil {
		t.Error("unmapped filter should fail the load")
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	empty := writeFixture(t, "Summary", nil)
	if _, err := Load(context.Background(), empty, Options{
		ZP: 30, Width: 7, Height: 7,
	}, nil); err == nil {
		t.Error("empty summary table should fail")
	}

	if _, err := Load(context.Background(), empty, Options{
		Table: "Summary; DROP TABLE x", ZP: 30, Width: 7, Height: 7,
	}, nil); err == nil {
		t.Error("invalid table name should be rejected")
	}

	path := writeFixture(t, "Exposures", [][]any{
		{58000.0, "g", 0.0, 0.0, int64(1), 24.0},
	})
	if _, err := Load(context.Background(), path, Options{
		ZP: 30, Width: 7, Height: 7,
	}, nil); err == nil {
		t.Error("missing Summary table should fail")
	}
	if p, err := Load(context.Background(), path, Options{
		Table: "Exposures", ZP: 30, Width: 7, Height: 7,
	}, nil); err != nil || p.Len() != 1 {
		t.Errorf("custom table name: plan=%v err=%v", p, err)
	}
}
