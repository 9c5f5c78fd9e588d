// Package hexgrid wraps the H3 hexagonal addressing library behind the
// narrow surface the rest of the pipeline needs: resolution, parent and
// children traversal, and rectangle coverage. No other package imports
// h3-go directly.
package hexgrid

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/uber/h3-go/v4"
)

const (
	// MinResolution is the coarsest H3 resolution.
	MinResolution = 0
	// MaxResolution is the finest H3 resolution.
	MaxResolution = 15
)

// ErrInvalidAddress indicates a value that is not a valid H3 cell index.
var ErrInvalidAddress = errors.New("hexgrid: invalid cell address")

// Cell is a 64-bit H3 cell index. The zero value is not a valid cell.
type Cell uint64

// Valid reports whether c is a well-formed H3 cell index.
func (c Cell) Valid() bool {
	return h3.Cell(c).IsValid()
}

// Resolution returns the cell's resolution (0 coarsest, 15 finest).
func (c Cell) Resolution() int {
	return h3.Cell(c).Resolution()
}

// ParentAt returns the ancestor of c at resolution res. res must be at
// most the cell's own resolution.
func (c Cell) ParentAt(res int) (Cell, error) {
	parent, err := h3.Cell(c).Parent(res)
	if err != nil {
		return 0, fmt.Errorf("parent of %s at res %d: %w", c, res, err)
	}
	return Cell(parent), nil
}

// ChildrenAt returns the descendants of c at resolution res. res must be
// at least the cell's own resolution. Most cells have 7 children per
// resolution step; pentagons have 6.
func (c Cell) ChildrenAt(res int) ([]Cell, error) {
	children, err := h3.Cell(c).Children(res)
	if err != nil {
		return nil, fmt.Errorf("children of %s at res %d: %w", c, res, err)
	}
	cells := make([]Cell, len(children))
	for i, child := range children {
		cells[i] = Cell(child)
	}
	return cells, nil
}

// String renders the cell as the lowercase hexadecimal form used in
// query paths and diagnostics.
func (c Cell) String() string {
	return strconv.FormatUint(uint64(c), 16)
}

// ParseCell parses a hexadecimal cell index. It returns ErrInvalidAddress
// for strings that do not parse or do not name a valid cell.
func ParseCell(s string) (Cell, error) {
	index, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	c := Cell(index)
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return c, nil
}

// CellAt returns the cell containing the point at the given resolution.
func CellAt(lat, lng float64, res int) (Cell, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), res)
	if err != nil {
		return 0, fmt.Errorf("cell at (%v, %v) res %d: %w", lat, lng, res, err)
	}
	return Cell(cell), nil
}

// Rect is a latitude/longitude rectangle in degrees.
type Rect struct {
	North float64
	South float64
	East  float64
	West  float64
}

// CoverRect returns the cells at resolution res whose union covers the
// rectangle. The ring is built closed and clockwise starting from the
// southwest corner.
func CoverRect(r Rect, res int) ([]Cell, error) {
	ring := h3.GeoLoop{
		h3.NewLatLng(r.South, r.West),
		h3.NewLatLng(r.South, r.East),
		h3.NewLatLng(r.North, r.East),
		h3.NewLatLng(r.North, r.West),
		h3.NewLatLng(r.South, r.West),
	}
	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: ring}, res)
	if err != nil {
		return nil, fmt.Errorf("cover rect at res %d: %w", res, err)
	}
	out := make([]Cell, len(cells))
	for i, cell := range cells {
		out[i] = Cell(cell)
	}
	return out, nil
}
