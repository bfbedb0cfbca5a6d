// Package writer applies a batch of named field updates to one row.
//
// Field names are resolved through a schema.Mapping; names the table does
// not have are dropped. Everything left goes to the table in a single
// WriteCells request. A failed request is reported as *Error and is never
// retried or rolled back here.
package writer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rzbill/rowlease/internal/schema"
	"github.com/rzbill/rowlease/internal/table"
	logpkg "github.com/rzbill/rowlease/pkg/log"
)

// ErrNoSwap is returned by Swap when the table cannot write conditionally.
var ErrNoSwap = errors.New("table does not support conditional writes")

// Error reports a failed batch write. Fields lists the field names that
// were sent, sorted.
type Error struct {
	Row    int
	Fields []string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("write row %d [%s]: %v", e.Row, strings.Join(e.Fields, ","), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Observer is notified after every request sent to the table.
type Observer interface {
	ObserveWrite(elapsed time.Duration, cells int, err error)
}

// Writer sends field updates to a table.
type Writer struct {
	tbl      table.Table
	logger   logpkg.Logger
	observer Observer
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logpkg.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithObserver registers a write observer, typically the metrics sink.
func WithObserver(o Observer) Option {
	return func(w *Writer) { w.observer = o }
}

// New returns a Writer over tbl.
func New(tbl table.Table, opts ...Option) *Writer {
	w := &Writer{tbl: tbl, logger: logpkg.NewNopLogger()}
	for _, o := range opts {
		o(w)
	}
	w.logger = w.logger.WithComponent("writer")
	return w
}

// Cells resolves updates into column → value, dropping unknown names. The
// second result lists the names kept, sorted.
func Cells(mapping schema.Mapping, updates map[string]string) (map[int]string, []string) {
	cells := make(map[int]string, len(updates))
	names := make([]string, 0, len(updates))
	for name, v := range updates {
		col, ok := mapping.Column(name)
		if !ok {
			continue
		}
		cells[col] = v
		names = append(names, name)
	}
	sort.Strings(names)
	return cells, names
}

// Apply writes updates to row. Unknown field names are ignored; when none
// are known no request is made. It returns the names that were written.
func (w *Writer) Apply(ctx context.Context, row int, mapping schema.Mapping, updates map[string]string) ([]string, error) {
	cells, names := Cells(mapping, updates)
	if len(cells) == 0 {
		w.logger.Debug("no known fields to write", logpkg.Int("row", row), logpkg.Int("requested", len(updates)))
		return nil, nil
	}

	start := time.Now()
	err := w.tbl.WriteCells(ctx, row, cells)
	if w.observer != nil {
		w.observer.ObserveWrite(time.Since(start), len(cells), err)
	}
	if err != nil {
		w.logger.Error("batch write failed",
			logpkg.Int("row", row),
			logpkg.Str("fields", strings.Join(names, ",")),
			logpkg.Err(err))
		return names, &Error{Row: row, Fields: names, Err: err}
	}
	w.logger.Debug("batch write",
		logpkg.Int("row", row),
		logpkg.Str("fields", strings.Join(names, ",")))
	return names, nil
}

// Swap writes updates only while every expect field still holds its value,
// as one conditional request. It reports false, with nothing written, when
// another writer got there first. The table must implement table.Swapper.
func (w *Writer) Swap(ctx context.Context, row int, mapping schema.Mapping, expect, updates map[string]string) (bool, error) {
	sw, ok := w.tbl.(table.Swapper)
	if !ok {
		return false, ErrNoSwap
	}
	cells, names := Cells(mapping, updates)
	if len(cells) == 0 {
		return false, nil
	}
	want, _ := Cells(mapping, expect)

	start := time.Now()
	swapped, err := sw.SwapCells(ctx, row, want, cells)
	if w.observer != nil {
		w.observer.ObserveWrite(time.Since(start), len(cells), err)
	}
	if err != nil {
		w.logger.Error("conditional write failed",
			logpkg.Int("row", row),
			logpkg.Str("fields", strings.Join(names, ",")),
			logpkg.Err(err))
		return false, &Error{Row: row, Fields: names, Err: err}
	}
	if !swapped {
		w.logger.Debug("conditional write lost", logpkg.Int("row", row))
	}
	return swapped, nil
}
