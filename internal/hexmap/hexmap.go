// Package hexmap implements a mixed-resolution population index over the
// aperture-7 hex hierarchy. Fine-resolution records are inserted at the
// bottom and lazily compacted: whenever every child of a parent at or
// above the floor resolution is stored, the children are replaced by the
// parent holding their sum. The stored entries (the frontier) are
// therefore never ancestors or descendants of one another.
package hexmap

import (
	"errors"
	"fmt"
	"io"

	"github.com/thehardbits/gpw/internal/hexgrid"
	"github.com/thehardbits/gpw/internal/stream"
)

// Progress observes ingestion. It receives the running record count and
// is purely cosmetic; passing nil disables it.
type Progress func(records int)

// progressStride is how many records pass between Progress callbacks.
const progressStride = 1 << 16

// node is one cell in the hierarchy. A node either holds a frontier
// value (occupied, no children) or routes to finer descendants.
type node struct {
	value    float32
	occupied bool
	children map[hexgrid.Cell]*node
}

// Map is the aggregation tree. It is not safe for concurrent mutation;
// build it from a single goroutine. Once building is done any number of
// goroutines may call Get, Reduce and Range concurrently since reads do
// not mutate the tree.
type Map struct {
	floor   int
	roots   map[hexgrid.Cell]*node
	entries int
}

// New returns an empty Map whose compaction never produces an entry
// coarser than the floor resolution.
func New(floor int) (*Map, error) {
	if floor < hexgrid.MinResolution || floor > hexgrid.MaxResolution {
		return nil, fmt.Errorf("hexmap: floor resolution %d out of range [%d, %d]",
			floor, hexgrid.MinResolution, hexgrid.MaxResolution)
	}
	return &Map{
		floor: floor,
		roots: make(map[hexgrid.Cell]*node),
	}, nil
}

// NewStatic returns a Map that never compacts. Loading an already
// combined snapshot must preserve its stored granularity exactly, so the
// floor sits above the finest possible parent.
func NewStatic() *Map {
	m, _ := New(hexgrid.MaxResolution)
	return m
}

// Floor returns the compaction floor resolution.
func (m *Map) Floor() int {
	return m.floor
}

// Len returns the number of frontier entries.
func (m *Map) Len() int {
	return m.entries
}

type step struct {
	cell hexgrid.Cell
	n    *node
}

// Insert stores value at cell and compacts upward. Inserting the exact
// same cell twice overwrites. A cell already covered by a compacted
// ancestor is left alone: the ancestor's sum already accounts for one
// copy of the leaf and cannot be decomposed. A cell coarser than stored
// descendants replaces that whole subtree.
func (m *Map) Insert(cell hexgrid.Cell, value float32) error {
	if !cell.Valid() {
		return fmt.Errorf("hexmap: insert: %w", hexgrid.ErrInvalidAddress)
	}
	res := cell.Resolution()

	path := make([]step, 0, res+1)
	level := m.roots
	for r := 0; r <= res; r++ {
		ancestor, err := cell.ParentAt(r)
		if err != nil {
			return fmt.Errorf("hexmap: insert %s: %w", cell, err)
		}
		n, ok := level[ancestor]
		if !ok {
			n = &node{}
			level[ancestor] = n
		}
		if n.occupied && r < res {
			return nil
		}
		path = append(path, step{cell: ancestor, n: n})
		if r < res {
			if n.children == nil {
				n.children = make(map[hexgrid.Cell]*node)
			}
			level = n.children
		}
	}

	leaf := path[len(path)-1].n
	if leaf.children != nil {
		m.entries -= countEntries(leaf)
		leaf.children = nil
	}
	if !leaf.occupied {
		m.entries++
	}
	leaf.occupied = true
	leaf.value = value

	return m.compact(path)
}

// compact walks the insertion path bottom-up, merging each complete
// sibling set at or above the floor into its parent.
func (m *Map) compact(path []step) error {
	for i := len(path) - 2; i >= 0; i-- {
		parent := path[i]
		if parent.cell.Resolution() < m.floor {
			return nil
		}
		siblings, err := parent.cell.ChildrenAt(parent.cell.Resolution() + 1)
		if err != nil {
			return fmt.Errorf("hexmap: compact %s: %w", parent.cell, err)
		}
		if len(parent.n.children) != len(siblings) {
			return nil
		}
		// Sum in canonical child order so the result does not depend on
		// map iteration.
		var sum float32
		for _, sibling := range siblings {
			child, ok := parent.n.children[sibling]
			if !ok || !child.occupied {
				return nil
			}
			sum += child.value
		}
		parent.n.children = nil
		parent.n.occupied = true
		parent.n.value = sum
		m.entries -= len(siblings) - 1
	}
	return nil
}

// Get returns the value stored exactly at cell.
func (m *Map) Get(cell hexgrid.Cell) (float32, bool) {
	n := m.lookup(cell)
	if n == nil || !n.occupied {
		return 0, false
	}
	return n.value, true
}

// Reduce resolves cell against whatever granularity is stored. An exact
// or ancestor entry is returned unchanged; stored descendants are summed.
// The boolean is false when nothing in the tree covers or is covered by
// the cell.
func (m *Map) Reduce(cell hexgrid.Cell) (float32, bool) {
	if !cell.Valid() {
		return 0, false
	}
	res := cell.Resolution()
	level := m.roots
	var n *node
	for r := 0; r <= res; r++ {
		ancestor, err := cell.ParentAt(r)
		if err != nil {
			return 0, false
		}
		n = level[ancestor]
		if n == nil {
			return 0, false
		}
		if n.occupied {
			return n.value, true
		}
		level = n.children
	}
	// The node exists but holds no value, so at least one finer entry
	// lives below it.
	return sumEntries(n), true
}

func (m *Map) lookup(cell hexgrid.Cell) *node {
	if !cell.Valid() {
		return nil
	}
	res := cell.Resolution()
	level := m.roots
	var n *node
	for r := 0; r <= res; r++ {
		ancestor, err := cell.ParentAt(r)
		if err != nil {
			return nil
		}
		n = level[ancestor]
		if n == nil {
			return nil
		}
		if r < res {
			level = n.children
		}
	}
	return n
}

func countEntries(n *node) int {
	if n.occupied {
		return 1
	}
	total := 0
	for _, child := range n.children {
		total += countEntries(child)
	}
	return total
}

func sumEntries(n *node) float32 {
	if n.occupied {
		return n.value
	}
	var sum float32
	for _, child := range n.children {
		sum += sumEntries(child)
	}
	return sum
}

// Range calls fn for every frontier entry until fn returns false. Order
// is unspecified.
func (m *Map) Range(fn func(cell hexgrid.Cell, value float32) bool) {
	for cell, n := range m.roots {
		if !rangeNode(cell, n, fn) {
			return
		}
	}
}

func rangeNode(cell hexgrid.Cell, n *node, fn func(hexgrid.Cell, float32) bool) bool {
	if n.occupied {
		return fn(cell, n.value)
	}
	for childCell, child := range n.children {
		if !rangeNode(childCell, child, fn) {
			return false
		}
	}
	return true
}

// Ingest reads records from r until end of stream, inserting each one.
// A truncated stream or invalid cell aborts the ingest with an error;
// nothing read so far is rolled back, so callers must discard the map on
// failure.
func (m *Map) Ingest(r *stream.Reader, progress Progress) error {
	read := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			if progress != nil {
				progress(read)
			}
			return nil
		}
		if err != nil {
			return err
		}
		if err := m.Insert(rec.Cell, rec.Value); err != nil {
			return err
		}
		read++
		if progress != nil && read%progressStride == 0 {
			progress(read)
		}
	}
}

// WriteTo serializes the frontier, one record per entry, in unspecified
// order.
func (m *Map) WriteTo(w io.Writer) error {
	sw := stream.NewWriter(w)
	var writeErr error
	m.Range(func(cell hexgrid.Cell, value float32) bool {
		writeErr = sw.Write(stream.Record{Cell: cell, Value: value})
		return writeErr == nil
	})
	return writeErr
}
