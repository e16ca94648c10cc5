// Package lightcurve stores realized lightcurves compactly: variable-length
// per-transient bodies alongside a fixed-schema metadata record per body.
// Full table views are reconstructed on demand so a large collection never
// holds materialized views.
package lightcurve

import (
	"errors"
	"fmt"
	"sort"
)

// ErrSchemaMismatch is returned when a metadata record does not match the
// schema fixed by the collection's first add.
var ErrSchemaMismatch = errors.New("lightcurve metadata schema mismatch")

// Body holds one realized lightcurve's column data. All float64/string
// slices are parallel, one entry per epoch. FluxCov is the full flux
// covariance (row-major, Len x Len) and is nil when no contributing band
// carried a calibration error.
type Body struct {
	Time     []float64
	Band     []string
	Skynoise []float64
	Gain     []float64
	ZP       []float64
	ZPSys    []string
	Flux     []float64
	Fluxerr  []float64
	FluxCov  [][]float64
}

// Len returns the number of epochs in the body.
func (b *Body) Len() int { return len(b.Time) }

func (b *Body) validate() error {
	n := len(b.Time)
	if len(b.Band) != n || len(b.Skynoise) != n || len(b.Gain) != n ||
		len(b.ZP) != n || len(b.ZPSys) != n || len(b.Flux) != n || len(b.Fluxerr) != n {
		return fmt.Errorf("body columns must all have %d rows", n)
	}
	if b.FluxCov != nil {
		if len(b.FluxCov) != n {
			return fmt.Errorf("flux covariance has %d rows, want %d", len(b.FluxCov), n)
		}
		for i, row := range b.FluxCov {
			if len(row) != n {
				return fmt.Errorf("flux covariance row %d has %d entries, want %d", i, len(row), n)
			}
		}
	}
	return nil
}

// Meta is one lightcurve's metadata record. Supported value kinds are
// float64, int64 and string.
type Meta map[string]any

type metaKind int

const (
	kindFloat metaKind = iota
	kindInt
	kindString
)

func (k metaKind) String() string {
	switch k {
	case kindFloat:
		return "float64"
	case kindInt:
		return "int64"
	case kindString:
		return "string"
	}
	return "unknown"
}

type metaField struct {
	name string
	kind metaKind
}

func kindOf(v any) (metaKind, error) {
	switch v.(type) {
	case float64:
		return kindFloat, nil
	case int64:
		return kindInt, nil
	case string:
		return kindString, nil
	}
	return 0, fmt.Errorf("unsupported metadata value type %T", v)
}

// Lightcurve is a full view of one stored lightcurve: the body columns plus
// the metadata record. Views are constructed on demand by Get and not
// retained by the collection.
type Lightcurve struct {
	Body
	Meta Meta
}

// Collection is an append-only store of lightcurve bodies and their
// lockstep metadata records. The metadata schema (key names and value
// kinds) is fixed by the first added item; every later add must match it
// exactly.
type Collection struct {
	bodies []Body
	schema []metaField
	meta   [][]any // row store, values ordered by schema
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// Len returns the number of stored lightcurves.
func (c *Collection) Len() int { return len(c.bodies) }

// MetaSchema returns the metadata key names in schema order, or nil before
// the first add.
func (c *Collection) MetaSchema() []string {
	if c.schema == nil {
		return nil
	}
	out := make([]string, len(c.schema))
	for i, f := range c.schema {
		out[i] = f.name
	}
	return out
}

// Add appends one lightcurve. The first add fixes the metadata schema;
// subsequent adds failing the schema check leave the collection unchanged.
func (c *Collection) Add(body Body, meta Meta) error {
	if err := body.validate(); err != nil {
		return err
	}

	if c.schema == nil {
		schema, err := schemaOf(meta)
		if err != nil {
			return err
		}
		row, err := rowOf(meta, schema)
		if err != nil {
			return err
		}
		c.schema = schema
		c.bodies = append(c.bodies, body)
		c.meta = append(c.meta, row)
		return nil
	}

	row, err := rowOf(meta, c.schema)
	if err != nil {
		return err
	}
	c.bodies = append(c.bodies, body)
	c.meta = append(c.meta, row)
	return nil
}

// AddAll appends many lightcurves; it fails on the first non-conforming
// item, leaving earlier items added.
func (c *Collection) AddAll(bodies []Body, metas []Meta) error {
	if len(bodies) != len(metas) {
		return fmt.Errorf("got %d bodies and %d metadata records", len(bodies), len(metas))
	}
	for i := range bodies {
		if err := c.Add(bodies[i], metas[i]); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// Get reconstructs the full lightcurve view at the given index.
func (c *Collection) Get(i int) (Lightcurve, error) {
	if i < 0 || i >= len(c.bodies) {
		return Lightcurve{}, fmt.Errorf("index %d out of range (collection has %d lightcurves)", i, len(c.bodies))
	}
	meta := make(Meta, len(c.schema))
	for fi, f := range c.schema {
		meta[f.name] = c.meta[i][fi]
	}
	return Lightcurve{Body: c.bodies[i], Meta: meta}, nil
}

// GetSlice reconstructs views for the half-open index range [start, end).
func (c *Collection) GetSlice(start, end int) ([]Lightcurve, error) {
	if start < 0 || end > len(c.bodies) || start > end {
		return nil, fmt.Errorf("slice [%d, %d) out of range (collection has %d lightcurves)",
			start, end, len(c.bodies))
	}
	out := make([]Lightcurve, 0, end-start)
	for i := start; i < end; i++ {
		lc, err := c.Get(i)
		if err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, nil
}

// schemaOf derives the canonical schema from the first metadata record:
// keys sorted, kinds inferred from the values.
func schemaOf(meta Meta) ([]metaField, error) {
	if len(meta) == 0 {
		return nil, errors.New("metadata record must not be empty")
	}
	names := make([]string, 0, len(meta))
	for k := range meta {
		names = append(names, k)
	}
	sort.Strings(names)

	schema := make([]metaField, len(names))
	for i, name := range names {
		kind, err := kindOf(meta[name])
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", name, err)
		}
		schema[i] = metaField{name: name, kind: kind}
	}
	return schema, nil
}

// rowOf converts a metadata record into a schema-ordered value row,
// checking the record against the schema exactly (same keys, same kinds).
func rowOf(meta Meta, schema []metaField) ([]any, error) {
	if len(meta) != len(schema) {
		return nil, fmt.Errorf("%w: record has %d keys, schema has %d",
			ErrSchemaMismatch, len(meta), len(schema))
	}
	row := make([]any, len(schema))
	for i, f := range schema {
		v, ok := meta[f.name]
		if !ok {
			return nil, fmt.Errorf("%w: missing key %q", ErrSchemaMismatch, f.name)
		}
		kind, err := kindOf(v)
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", f.name, err)
		}
		if kind != f.kind {
			return nil, fmt.Errorf("%w: key %q is %s, schema expects %s",
				ErrSchemaMismatch, f.name, kind, f.kind)
		}
		row[i] = v
	}
	return row, nil
}
