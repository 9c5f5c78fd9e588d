// Package tess converts parsed population grids into streams of
// fine-resolution hex records. Raster cells are covered by hex cells in
// parallel; a single consumer serializes the records, so output order is
// undefined.
package tess

import (
	"context"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/thehardbits/gpw/internal/gpwascii"
	"github.com/thehardbits/gpw/internal/hexgrid"
	"github.com/thehardbits/gpw/internal/stream"
)

// Resolution is the fixed fine resolution grids are tessellated at. It is
// fine enough to absorb drift between the raster and hex coordinate
// systems regardless of the resolution snapshots are later combined to.
const Resolution = 10

// CoverCell returns the hex cells covering raster cell (row, col). The
// south edge uses the half-open raster convention where row 0 is the
// northernmost row one full cell below the grid top.
func CoverCell(h gpwascii.Header, row, col int) ([]hexgrid.Cell, error) {
	south := h.YLLCorner + h.CellSize*float64(h.NRows-row+1)
	west := h.XLLCorner + h.CellSize*float64(col)
	rect := hexgrid.Rect{
		North: south + h.CellSize,
		South: south,
		East:  west + h.CellSize,
		West:  west,
	}
	return hexgrid.CoverRect(rect, Resolution)
}

// emission is one sampled raster cell's covering set before
// apportionment.
type emission struct {
	cells []hexgrid.Cell
	value float32
}

// Tessellator streams grid documents to record sinks.
type Tessellator struct {
	// Workers bounds row and column fan-out. Zero means GOMAXPROCS.
	Workers int
}

// Stream tessellates every sampled cell of the grid and writes one record
// per covering hex cell to w, the sample value apportioned evenly across
// the covering set. NODATA cells emit nothing. The call returns after all
// workers have finished and the output has been fully written; the first
// sink write failure cancels the remaining workers and fails the call,
// leaving the partial output invalid.
func (t *Tessellator) Stream(ctx context.Context, g *gpwascii.Grid, w io.Writer) error {
	workers := t.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan emission, 4*workers)

	// Single consumer: sole owner of the sink.
	var sinkErr error
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		sw := stream.NewWriter(w)
		for e := range out {
			if sinkErr != nil {
				continue
			}
			scaled := e.value / float32(len(e.cells))
			for _, cell := range e.cells {
				if err := sw.Write(stream.Record{Cell: cell, Value: scaled}); err != nil {
					sinkErr = err
					cancel()
					break
				}
			}
		}
	}()

	rows, rctx := errgroup.WithContext(cctx)
	rows.SetLimit(workers)
	for rowIdx, row := range g.Rows {
		rows.Go(func() error {
			cols := new(errgroup.Group)
			cols.SetLimit(workers)
			for colIdx, sample := range row {
				if !sample.Valid {
					continue
				}
				cols.Go(func() error {
					cells, err := CoverCell(g.Header, rowIdx, colIdx)
					if err != nil {
						return err
					}
					if len(cells) == 0 {
						return nil
					}
					select {
					case out <- emission{cells: cells, value: sample.Value}:
						return nil
					case <-rctx.Done():
						return rctx.Err()
					}
				})
			}
			return cols.Wait()
		})
	}

	err := rows.Wait()
	close(out)
	<-drained

	if sinkErr != nil {
		return sinkErr
	}
	return err
}
