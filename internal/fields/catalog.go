package fields

import (
	"errors"
	"fmt"
)

// Catalog is the survey's field grid: a set of uniquely numbered fields,
// each a Footprint of the shared survey-wide width and height centered on
// its own (ra, dec).
type Catalog struct {
	IDs    []int64
	RA     []float64
	Dec    []float64
	Width  float64
	Height float64

	idIndex map[int64]int
}

// NewCatalog builds a field catalog. Field ids must be unique and the
// coordinate slices must be parallel to the id slice.
func NewCatalog(ids []int64, ra, dec []float64, width, height float64) (*Catalog, error) {
	if len(ids) != len(ra) || len(ids) != len(dec) {
		return nil, fmt.Errorf("catalog slices must have equal length: ids=%d ra=%d dec=%d",
			len(ids), len(ra), len(dec))
	}
	if width <= 0 || height <= 0 {
		return nil, errors.New("field width and height must be positive")
	}

	idx := make(map[int64]int, len(ids))
	for i, id := range ids {
		if _, dup := idx[id]; dup {
			return nil, fmt.Errorf("duplicate field id %d", id)
		}
		idx[id] = i
	}

	return &Catalog{
		IDs:     ids,
		RA:      ra,
		Dec:     dec,
		Width:   width,
		Height:  height,
		idIndex: idx,
	}, nil
}

// Len returns the number of fields.
func (c *Catalog) Len() int { return len(c.IDs) }

// Center returns the center coordinates of the field with the given id.
func (c *Catalog) Center(id int64) (ra, dec float64, ok bool) {
	i, ok := c.idIndex[id]
	if !ok {
		return 0, 0, false
	}
	return c.RA[i], c.Dec[i], true
}

// Footprint returns the footprint of the field at slice index i.
func (c *Catalog) Footprint(i int) Footprint {
	return Footprint{RA: c.RA[i], Dec: c.Dec[i], Width: c.Width, Height: c.Height}
}
