// Package gpwascii parses GPW ESRI ASCII population grids: a six-line
// header followed by a row-major matrix of float samples where a sentinel
// token marks cells with no data.
package gpwascii

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrIncompleteHeader indicates that fewer than the six required header
// fields were present.
var ErrIncompleteHeader = errors.New("gpwascii: incomplete header")

// ParseError reports a malformed header field or body cell. Row and Col
// are -1 for header failures.
type ParseError struct {
	Field string
	Row   int
	Col   int
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("gpwascii: field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("gpwascii: row %d, col %d: %v", e.Row, e.Col, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func fieldError(field string, err error) *ParseError {
	return &ParseError{Field: field, Row: -1, Col: -1, Err: err}
}

func cellError(row, col int, err error) *ParseError {
	return &ParseError{Row: row, Col: col, Err: err}
}

// Header holds the six required grid header fields.
//
//	ncols         10800
//	nrows         10800
//	xllcorner     -180
//	yllcorner     -4.2632564145606e-14
//	cellsize      0.0083333333333333
//	NODATA_value  -9999
type Header struct {
	NCols     int
	NRows     int
	XLLCorner float64
	YLLCorner float64
	CellSize  float64
	NoData    string
}

// Sample is one raster cell value. Valid is false for NODATA cells.
type Sample struct {
	Value float32
	Valid bool
}

// Grid is a parsed grid document: header plus NRows x NCols samples with
// row 0 northernmost.
type Grid struct {
	Header Header
	Rows   [][]Sample
}

// maxLineBytes bounds a single body line. A 10800-column GPW row of full
// precision floats is around 200 KiB.
const maxLineBytes = 4 << 20

// Parse reads one grid document. Any missing or malformed header field,
// malformed body cell, or row/column count mismatch fails the whole parse.
func Parse(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	header, err := parseHeader(sc)
	if err != nil {
		return nil, err
	}

	rows := make([][]Sample, 0, header.NRows)
	for sc.Scan() {
		tokens := strings.Fields(sc.Text())
		if len(tokens) == 0 {
			continue
		}
		rowIdx := len(rows)
		if len(tokens) != header.NCols {
			return nil, cellError(rowIdx, len(tokens),
				fmt.Errorf("row has %d columns, header says %d", len(tokens), header.NCols))
		}
		row := make([]Sample, header.NCols)
		for colIdx, token := range tokens {
			if token == header.NoData {
				continue
			}
			value, err := strconv.ParseFloat(token, 32)
			if err != nil {
				return nil, cellError(rowIdx, colIdx, err)
			}
			row[colIdx] = Sample{Value: float32(value), Valid: true}
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("gpwascii: read body: %w", err)
	}
	if len(rows) != header.NRows {
		return nil, fieldError("nrows",
			fmt.Errorf("body has %d rows, header says %d", len(rows), header.NRows))
	}

	return &Grid{Header: header, Rows: rows}, nil
}

var headerKeys = []string{"ncols", "nrows", "xllcorner", "yllcorner", "cellsize", "NODATA_value"}

func parseHeader(sc *bufio.Scanner) (Header, error) {
	var header Header
	seen := make(map[string]bool, len(headerKeys))

	for i := 0; i < 6; i++ {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return header, fmt.Errorf("gpwascii: read header: %w", err)
			}
			return header, ErrIncompleteHeader
		}
		tokens := strings.Fields(sc.Text())
		if len(tokens) == 0 {
			return header, ErrIncompleteHeader
		}
		key := tokens[0]
		if len(tokens) < 2 {
			return header, fieldError(key, errors.New("missing value"))
		}
		value := tokens[1]

		switch key {
		case "ncols", "nrows":
			n, err := strconv.Atoi(value)
			if err != nil {
				return header, fieldError(key, err)
			}
			if n <= 0 {
				return header, fieldError(key, fmt.Errorf("must be positive, got %d", n))
			}
			if key == "ncols" {
				header.NCols = n
			} else {
				header.NRows = n
			}
		case "xllcorner", "yllcorner", "cellsize":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return header, fieldError(key, err)
			}
			switch key {
			case "xllcorner":
				header.XLLCorner = f
			case "yllcorner":
				header.YLLCorner = f
			case "cellsize":
				header.CellSize = f
			}
		case "NODATA_value":
			header.NoData = value
		default:
			return header, fieldError(key, errors.New("unexpected header key"))
		}
		seen[key] = true
	}

	for _, key := range headerKeys {
		if !seen[key] {
			return header, ErrIncompleteHeader
		}
	}
	return header, nil
}
