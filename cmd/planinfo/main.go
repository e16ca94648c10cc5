// planinfo loads an opsim observation plan and prints summary statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"

	"github.com/shaonghosh/simsurvey/internal/opsim"
)

func main() {
	table := flag.String("table", "Summary", "summary table name")
	zp := flag.Float64("zp", 30, "zero point for the depth conversion")
	depth := flag.Float64("default-depth", 23, "depth substitute for NULL values")
	width := flag.Float64("width", 7, "field width in degrees")
	height := flag.Float64("height", 7, "field height in degrees")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: planinfo [flags] <opsim-file>")
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	p, err := opsim.Load(context.Background(), flag.Arg(0), opsim.Options{
		Table:        *table,
		ZP:           *zp,
		DefaultDepth: *depth,
		Width:        *width,
		Height:       *height,
	}, logger)
	if err != nil {
		fmt.Println("ERROR loading plan:", err)
		os.Exit(1)
	}

	fmt.Printf("Pointings: %d\n", p.Len())
	if cat := p.Fields(); cat != nil {
		fmt.Printf("Fields: %d\n", cat.Len())
	}
	fmt.Printf("Custom pointings: %d\n", p.SentinelCount())

	bands := p.Bands()
	fmt.Printf("Bands: %v\n", bands)

	// Per-band epoch counts and the global time and skynoise ranges come
	// from a full-window lookup over every field.
	ids := []int64{}
	if cat := p.Fields(); cat != nil {
		ids = append(ids, cat.IDs...)
	}
	customIdx := make([]int, p.SentinelCount())
	for i := range customIdx {
		customIdx[i] = i
	}
	rows, err := p.FieldLookup(ids, customIdx, math.Inf(-1), math.Inf(1))
	if err != nil {
		fmt.Println("ERROR reading pointings:", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		return
	}

	counts := make(map[string]int)
	tMin, tMax := rows[0].Time, rows[0].Time
	sMin, sMax := rows[0].Skynoise, rows[0].Skynoise
	for _, r := range rows {
		counts[r.Band]++
		tMin = math.Min(tMin, r.Time)
		tMax = math.Max(tMax, r.Time)
		sMin = math.Min(sMin, r.Skynoise)
		sMax = math.Max(sMax, r.Skynoise)
	}

	fmt.Printf("Time range: MJD %.4f .. %.4f (%.1f days)\n", tMin, tMax, tMax-tMin)
	fmt.Printf("Skynoise range: %.4g .. %.4g\n", sMin, sMax)

	keys := make([]string, 0, len(counts))
	for b := range counts {
		keys = append(keys, b)
	}
	sort.Strings(keys)
	for _, b := range keys {
		fmt.Printf("  %s: %d epochs\n", b, counts[b])
	}
}
