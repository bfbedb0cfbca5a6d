// Package memtable is an in-memory table.Table used by tests, simulations
// and the "memory" backend. Several coordinators may share one Table to act
// as independent worker processes.
package memtable

import (
	"context"
	"fmt"
	"sync"

	"github.com/rzbill/rowlease/internal/table"
)

// Table holds rows in memory. Row 1 is the header.
type Table struct {
	mu   sync.Mutex
	rows [][]string

	readErr  error
	writeErr error
	// writes counts WriteCells/SwapCells requests that reached the store.
	writes int
	// beforeWrite runs (without the lock) ahead of every WriteCells.
	beforeWrite func(row int)
}

var (
	_ table.Table        = (*Table)(nil)
	_ table.Appender     = (*Table)(nil)
	_ table.HeaderWriter = (*Table)(nil)
	_ table.Swapper      = (*Table)(nil)
)

// New returns a table with the given header and data rows.
func New(header []string, rows ...[]string) *Table {
	t := &Table{rows: [][]string{copyRow(header)}}
	for _, r := range rows {
		t.rows = append(t.rows, copyRow(r))
	}
	return t
}

func copyRow(r []string) []string { return append([]string(nil), r...) }

// FailReads makes every subsequent read return err (nil clears it).
func (t *Table) FailReads(err error) {
	t.mu.Lock()
	t.readErr = err
	t.mu.Unlock()
}

// FailWrites makes every subsequent write return err (nil clears it).
func (t *Table) FailWrites(err error) {
	t.mu.Lock()
	t.writeErr = err
	t.mu.Unlock()
}

// BeforeWrite installs a hook run ahead of each WriteCells, e.g. to let a
// second worker slip in between a scan and its claim write.
func (t *Table) BeforeWrite(fn func(row int)) {
	t.mu.Lock()
	t.beforeWrite = fn
	t.mu.Unlock()
}

// Writes returns how many write requests reached the table.
func (t *Table) Writes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writes
}

// Snapshot returns a deep copy of all rows.
func (t *Table) Snapshot() [][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = copyRow(r)
	}
	return out
}

func (t *Table) ReadHeader(ctx context.Context) ([]string, error) {
	return t.ReadRow(ctx, 1)
}

func (t *Table) ReadAll(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	err := t.readErr
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return t.Snapshot(), nil
}

func (t *Table) ReadRow(ctx context.Context, row int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readErr != nil {
		return nil, t.readErr
	}
	if err := table.CheckRow(row, len(t.rows)); err != nil {
		return nil, err
	}
	return copyRow(t.rows[row-1]), nil
}

func (t *Table) WriteCells(ctx context.Context, row int, cells map[int]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	hook := t.beforeWrite
	t.mu.Unlock()
	if hook != nil {
		hook(row)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	if err := table.CheckRow(row, len(t.rows)); err != nil {
		return err
	}
	t.writes++
	t.rows[row-1] = table.Apply(t.rows[row-1], cells)
	return nil
}

// SwapCells writes cells only when expect still matches the stored row.
func (t *Table) SwapCells(ctx context.Context, row int, expect, cells map[int]string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return false, t.writeErr
	}
	if err := table.CheckRow(row, len(t.rows)); err != nil {
		return false, err
	}
	t.writes++
	if !table.Matches(t.rows[row-1], expect) {
		return false, nil
	}
	t.rows[row-1] = table.Apply(t.rows[row-1], cells)
	return true, nil
}

func (t *Table) AppendRow(ctx context.Context, values []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	t.rows = append(t.rows, copyRow(values))
	return len(t.rows), nil
}

func (t *Table) WriteHeader(ctx context.Context, headers []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.rows) == 0 {
		t.rows = [][]string{copyRow(headers)}
		return nil
	}
	t.rows[0] = copyRow(headers)
	return nil
}

// String renders the table for test failure messages.
func (t *Table) String() string {
	return fmt.Sprint(t.Snapshot())
}
