// Package table defines the shared-table boundary the claim protocol runs
// over. A Table is an explicit session handle: every component receives it
// as an argument and none keeps an ambient "current table".
//
// Rows are 1-based; row 1 is the header row. Rows may be shorter than the
// header row. The interface promises no atomicity across cells and no
// compare-and-set; backends that can offer a conditional write implement
// Swapper in addition.
package table

import (
	"context"
	"errors"
	"fmt"
)

// ErrRowOutOfRange is returned when a row number is below 1 or past the
// last row of the table.
var ErrRowOutOfRange = errors.New("row out of range")

// Table is the storage boundary consumed by the core.
type Table interface {
	// ReadHeader returns the field names in row 1.
	ReadHeader(ctx context.Context) ([]string, error)
	// ReadAll returns every row including the header, consistent as of one
	// round-trip. Index 0 is row 1.
	ReadAll(ctx context.Context) ([][]string, error)
	// ReadRow returns the values of one row.
	ReadRow(ctx context.Context, row int) ([]string, error)
	// WriteCells writes 1-based column → value for one row as a single
	// request. Partial application on failure is possible.
	WriteCells(ctx context.Context, row int, cells map[int]string) error
}

// Appender is implemented by tables that accept new rows. It returns the
// 1-based number of the appended row.
type Appender interface {
	AppendRow(ctx context.Context, values []string) (int, error)
}

// HeaderWriter is implemented by tables whose header row can be
// (re)initialized.
type HeaderWriter interface {
	WriteHeader(ctx context.Context, headers []string) error
}

// Swapper is implemented by tables that can write cells only if other cells
// still hold expected values. It reports false, with no write, when any
// expected cell differs.
type Swapper interface {
	SwapCells(ctx context.Context, row int, expect map[int]string, cells map[int]string) (bool, error)
}

// CheckRow validates a 1-based row number against a row count.
func CheckRow(row, rows int) error {
	if row < 1 || row > rows {
		return fmt.Errorf("%w: row %d of %d", ErrRowOutOfRange, row, rows)
	}
	return nil
}

// Cell returns the 1-based column col of values, or "" past its end.
func Cell(values []string, col int) string {
	if col < 1 || col > len(values) {
		return ""
	}
	return values[col-1]
}

// Apply returns a copy of values with cells written, growing it as needed.
func Apply(values []string, cells map[int]string) []string {
	width := len(values)
	for col := range cells {
		if col > width {
			width = col
		}
	}
	out := make([]string, width)
	copy(out, values)
	for col, v := range cells {
		if col >= 1 {
			out[col-1] = v
		}
	}
	return out
}

// Matches reports whether every expected cell equals the value in values.
func Matches(values []string, expect map[int]string) bool {
	for col, want := range expect {
		if Cell(values, col) != want {
			return false
		}
	}
	return true
}
