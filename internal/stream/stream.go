// Package stream encodes and decodes the fixed 12-byte binary record
// format shared by tessellation output and combined snapshots: an 8-byte
// little-endian H3 cell index followed by a 4-byte little-endian float32.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/thehardbits/gpw/internal/hexgrid"
)

// RecordSize is the encoded size of one record in bytes.
const RecordSize = 12

// ErrTruncated indicates a malformed record stream: EOF or a read failure
// that does not fall on a 12-byte record boundary.
var ErrTruncated = errors.New("stream: truncated record")

// Record pairs a hex cell with its population value.
type Record struct {
	Cell  hexgrid.Cell
	Value float32
}

// Writer serializes records to an underlying writer.
type Writer struct {
	w   io.Writer
	buf [RecordSize]byte
}

// NewWriter returns a Writer emitting to w. Callers that care about
// throughput should hand in a buffered writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes one record.
func (w *Writer) Write(rec Record) error {
	binary.LittleEndian.PutUint64(w.buf[0:8], uint64(rec.Cell))
	binary.LittleEndian.PutUint32(w.buf[8:12], math.Float32bits(rec.Value))
	if _, err := w.w.Write(w.buf[:]); err != nil {
		return fmt.Errorf("stream: write record: %w", err)
	}
	return nil
}

// Reader decodes records from an underlying reader.
type Reader struct {
	r   io.Reader
	buf [RecordSize]byte
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read decodes the next record. It returns io.EOF when the stream ends
// exactly on a record boundary and ErrTruncated for any mid-record EOF
// or read failure.
func (r *Reader) Read() (Record, error) {
	switch _, err := io.ReadFull(r.r, r.buf[:]); {
	case err == nil:
	case errors.Is(err, io.EOF):
		return Record{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return Record{}, ErrTruncated
	default:
		return Record{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return Record{
		Cell:  hexgrid.Cell(binary.LittleEndian.Uint64(r.buf[0:8])),
		Value: math.Float32frombits(binary.LittleEndian.Uint32(r.buf[8:12])),
	}, nil
}
