package tess

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/thehardbits/gpw/internal/gpwascii"
	"github.com/thehardbits/gpw/internal/stream"
)

// testHeader describes a 2x1 grid of ~500m raster cells over the central
// US, small enough that each covers only a handful of res-10 hexes.
func testHeader(ncols, nrows int) gpwascii.Header {
	return gpwascii.Header{
		NCols:     ncols,
		NRows:     nrows,
		XLLCorner: -100.0,
		YLLCorner: 40.0,
		CellSize:  0.005,
		NoData:    "-9999",
	}
}

func readAll(t *testing.T, buf *bytes.Buffer) []stream.Record {
	t.Helper()
	r := stream.NewReader(buf)
	var records []stream.Record
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records
		}
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
		records = append(records, rec)
	}
}

func TestCoverCell(t *testing.T) {
	h := testHeader(2, 1)
	cells, err := CoverCell(h, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cells) == 0 {
		t.Fatalf("expected covering cells")
	}
	for _, cell := range cells {
		if cell.Resolution() != Resolution {
			t.Fatalf("expected res %d, got %d", Resolution, cell.Resolution())
		}
	}

	other, err := CoverCell(h, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(other) == 0 {
		t.Fatalf("expected covering cells for the second column")
	}
}

func TestStreamApportionsValues(t *testing.T) {
	g := &gpwascii.Grid{
		Header: testHeader(2, 1),
		Rows: [][]gpwascii.Sample{
			{{Value: 5.0, Valid: true}, {Value: 12.0, Valid: true}},
		},
	}

	var buf bytes.Buffer
	tess := &Tessellator{Workers: 4}
	if err := tess.Stream(context.Background(), g, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records := readAll(t, &buf)
	if len(records) == 0 {
		t.Fatalf("expected records")
	}

	var total float64
	for _, rec := range records {
		if !rec.Cell.Valid() {
			t.Fatalf("invalid cell in output: %x", uint64(rec.Cell))
		}
		if rec.Cell.Resolution() != Resolution {
			t.Fatalf("expected res %d record, got %d", Resolution, rec.Cell.Resolution())
		}
		total += float64(rec.Value)
	}
	if math.Abs(total-17.0) > 1e-3 {
		t.Fatalf("expected record values to sum to 17, got %v", total)
	}
}

func TestStreamSkipsNoData(t *testing.T) {
	g := &gpwascii.Grid{
		Header: testHeader(2, 1),
		Rows: [][]gpwascii.Sample{
			{{}, {Value: 3.0, Valid: true}},
		},
	}

	var buf bytes.Buffer
	tess := &Tessellator{Workers: 2}
	if err := tess.Stream(context.Background(), g, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var total float64
	for _, rec := range readAll(t, &buf) {
		total += float64(rec.Value)
	}
	if math.Abs(total-3.0) > 1e-3 {
		t.Fatalf("expected only the sampled cell's value, got %v", total)
	}
}

func TestStreamAllNoData(t *testing.T) {
	g := &gpwascii.Grid{
		Header: testHeader(2, 1),
		Rows:   [][]gpwascii.Sample{{{}, {}}},
	}

	var buf bytes.Buffer
	tess := &Tessellator{}
	if err := tess.Stream(context.Background(), g, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %d bytes", buf.Len())
	}
}

type failWriter struct{ err error }

func (w *failWriter) Write(p []byte) (int, error) { return 0, w.err }

func TestStreamSinkFailure(t *testing.T) {
	g := &gpwascii.Grid{
		Header: testHeader(2, 1),
		Rows: [][]gpwascii.Sample{
			{{Value: 5.0, Valid: true}, {Value: 12.0, Valid: true}},
		},
	}

	sinkErr := errors.New("disk full")
	tess := &Tessellator{Workers: 2}
	err := tess.Stream(context.Background(), g, &failWriter{err: sinkErr})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestStreamCancelledContext(t *testing.T) {
	samples := make([]gpwascii.Sample, 64)
	for i := range samples {
		samples[i] = gpwascii.Sample{Value: 1.0, Valid: true}
	}
	g := &gpwascii.Grid{
		Header: testHeader(64, 1),
		Rows:   [][]gpwascii.Sample{samples},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	tess := &Tessellator{Workers: 2}
	if err := tess.Stream(ctx, g, &buf); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
