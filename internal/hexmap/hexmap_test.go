package hexmap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehardbits/gpw/internal/hexgrid"
	"github.com/thehardbits/gpw/internal/stream"
)

// siblings returns a res-9 hexagon near the given point together with its
// seven res-10 children. The default point is well away from any pentagon.
func siblings(t *testing.T, lat, lng float64) (hexgrid.Cell, []hexgrid.Cell) {
	t.Helper()
	parent, err := hexgrid.CellAt(lat, lng, 9)
	require.NoError(t, err)
	children, err := parent.ChildrenAt(10)
	require.NoError(t, err)
	require.Len(t, children, 7)
	return parent, children
}

func TestNewFloorRange(t *testing.T) {
	for _, floor := range []int{-1, 16} {
		_, err := New(floor)
		assert.Error(t, err, "floor %d", floor)
	}
	m, err := New(0)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Floor())
}

func TestInsertCompactsFullSiblingSet(t *testing.T) {
	parent, children := siblings(t, 40.0, -100.0)

	m, err := New(9)
	require.NoError(t, err)

	for i, child := range children[:6] {
		require.NoError(t, m.Insert(child, float32(i+1)))
	}
	assert.Equal(t, 6, m.Len())
	_, ok := m.Get(parent)
	assert.False(t, ok, "parent must not exist before the set is complete")

	require.NoError(t, m.Insert(children[6], 7))
	assert.Equal(t, 1, m.Len())

	got, ok := m.Get(parent)
	require.True(t, ok)
	assert.Equal(t, float32(28), got, "1+2+...+7")

	_, ok = m.Get(children[0])
	assert.False(t, ok, "compacted children must no longer be stored")
}

func TestInsertRespectsFloor(t *testing.T) {
	_, children := siblings(t, 40.0, -100.0)

	m, err := New(10)
	require.NoError(t, err)

	for i, child := range children {
		require.NoError(t, m.Insert(child, float32(i+1)))
	}
	assert.Equal(t, 7, m.Len(), "parent at res 9 is below the floor")
	for _, child := range children {
		_, ok := m.Get(child)
		assert.True(t, ok)
	}
}

func TestCompactionRecurses(t *testing.T) {
	grandparent, err := hexgrid.CellAt(40.0, -100.0, 8)
	require.NoError(t, err)
	parents, err := grandparent.ChildrenAt(9)
	require.NoError(t, err)
	require.Len(t, parents, 7)

	m, err := New(8)
	require.NoError(t, err)

	for _, parent := range parents {
		children, err := parent.ChildrenAt(10)
		require.NoError(t, err)
		for _, child := range children {
			require.NoError(t, m.Insert(child, 1))
		}
	}

	assert.Equal(t, 1, m.Len())
	got, ok := m.Get(grandparent)
	require.True(t, ok)
	assert.Equal(t, float32(49), got)
}

// frontier collects the stored entries and fails if any two are
// ancestor and descendant of one another.
func frontier(t *testing.T, m *Map) []hexgrid.Cell {
	t.Helper()
	var cells []hexgrid.Cell
	m.Range(func(cell hexgrid.Cell, _ float32) bool {
		cells = append(cells, cell)
		return true
	})
	for _, a := range cells {
		for _, b := range cells {
			if a == b || a.Resolution() > b.Resolution() {
				continue
			}
			ancestor, err := b.ParentAt(a.Resolution())
			require.NoError(t, err)
			require.NotEqual(t, a, ancestor,
				"%s and %s are ancestor and descendant", a, b)
		}
	}
	return cells
}

func TestCompactionStopsAtFloor(t *testing.T) {
	grandparent, err := hexgrid.CellAt(40.0, -100.0, 8)
	require.NoError(t, err)
	parents, err := grandparent.ChildrenAt(9)
	require.NoError(t, err)
	leaves, err := grandparent.ChildrenAt(10)
	require.NoError(t, err)
	require.Len(t, leaves, 49)

	m, err := New(9)
	require.NoError(t, err)

	for _, leaf := range leaves {
		require.NoError(t, m.Insert(leaf, 1))
		frontier(t, m)
	}

	entries := frontier(t, m)
	assert.Len(t, entries, 7, "each res-9 sibling set compacts, res 8 is below the floor")
	for _, entry := range entries {
		assert.Equal(t, 9, entry.Resolution())
	}
	_, ok := m.Get(grandparent)
	assert.False(t, ok, "the floor forbids a res-8 entry")

	for _, parent := range parents {
		got, ok := m.Get(parent)
		require.True(t, ok)
		assert.Equal(t, float32(7), got)
	}
	got, ok := m.Reduce(grandparent)
	require.True(t, ok)
	assert.Equal(t, float32(49), got)
}

func TestInsertOverwritesDuplicate(t *testing.T) {
	_, children := siblings(t, 40.0, -100.0)

	m := NewStatic()
	require.NoError(t, m.Insert(children[0], 3))
	require.NoError(t, m.Insert(children[0], 5))

	assert.Equal(t, 1, m.Len())
	got, ok := m.Get(children[0])
	require.True(t, ok)
	assert.Equal(t, float32(5), got)
}

func TestInsertUnderOccupiedAncestorIsNoop(t *testing.T) {
	parent, children := siblings(t, 40.0, -100.0)

	m := NewStatic()
	require.NoError(t, m.Insert(parent, 28))
	require.NoError(t, m.Insert(children[0], 4))

	assert.Equal(t, 1, m.Len())
	got, ok := m.Get(parent)
	require.True(t, ok)
	assert.Equal(t, float32(28), got)
	_, ok = m.Get(children[0])
	assert.False(t, ok)
}

func TestInsertAboveDescendantsReplacesSubtree(t *testing.T) {
	parent, children := siblings(t, 40.0, -100.0)

	m := NewStatic()
	require.NoError(t, m.Insert(children[0], 1))
	require.NoError(t, m.Insert(children[1], 2))
	require.NoError(t, m.Insert(parent, 10))

	assert.Equal(t, 1, m.Len())
	got, ok := m.Get(parent)
	require.True(t, ok)
	assert.Equal(t, float32(10), got)
	_, ok = m.Get(children[0])
	assert.False(t, ok)
}

func TestInsertInvalidCell(t *testing.T) {
	m := NewStatic()
	err := m.Insert(hexgrid.Cell(0), 1)
	assert.ErrorIs(t, err, hexgrid.ErrInvalidAddress)
}

func TestReduce(t *testing.T) {
	parent, children := siblings(t, 40.0, -100.0)

	m := NewStatic()
	require.NoError(t, m.Insert(children[0], 3))
	require.NoError(t, m.Insert(children[1], 4))

	t.Run("exact", func(t *testing.T) {
		got, ok := m.Reduce(children[0])
		require.True(t, ok)
		assert.Equal(t, float32(3), got)
	})

	t.Run("coarser query sums descendants", func(t *testing.T) {
		got, ok := m.Reduce(parent)
		require.True(t, ok)
		assert.Equal(t, float32(7), got)
	})

	t.Run("finer query returns ancestor value", func(t *testing.T) {
		grandchildren, err := children[0].ChildrenAt(12)
		require.NoError(t, err)
		got, ok := m.Reduce(grandchildren[0])
		require.True(t, ok)
		assert.Equal(t, float32(3), got)
	})

	t.Run("miss", func(t *testing.T) {
		elsewhere, err := hexgrid.CellAt(-33.9, 151.2, 10)
		require.NoError(t, err)
		_, ok := m.Reduce(elsewhere)
		assert.False(t, ok)
	})

	t.Run("invalid", func(t *testing.T) {
		_, ok := m.Reduce(hexgrid.Cell(0))
		assert.False(t, ok)
	})
}

func TestIngestAndWriteToRoundTrip(t *testing.T) {
	_, children := siblings(t, 40.0, -100.0)

	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	for i, child := range children[:3] {
		require.NoError(t, w.Write(stream.Record{Cell: child, Value: float32(i + 1)}))
	}

	m := NewStatic()
	var last int
	require.NoError(t, m.Ingest(stream.NewReader(&buf), func(records int) { last = records }))
	assert.Equal(t, 3, last)
	assert.Equal(t, 3, m.Len())

	var out bytes.Buffer
	require.NoError(t, m.WriteTo(&out))
	assert.Equal(t, 3*stream.RecordSize, out.Len())

	reload := NewStatic()
	require.NoError(t, reload.Ingest(stream.NewReader(&out), nil))
	for i, child := range children[:3] {
		got, ok := reload.Get(child)
		require.True(t, ok)
		assert.Equal(t, float32(i+1), got)
	}
}

func TestIngestTruncatedStream(t *testing.T) {
	_, children := siblings(t, 40.0, -100.0)

	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	require.NoError(t, w.Write(stream.Record{Cell: children[0], Value: 1}))
	buf.Write([]byte{0x01}) // 13 bytes total

	m := NewStatic()
	err := m.Ingest(stream.NewReader(&buf), nil)
	assert.ErrorIs(t, err, stream.ErrTruncated)
	assert.Equal(t, 1, m.Len(), "the complete leading record was inserted")
}
