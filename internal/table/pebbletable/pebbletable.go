// Package pebbletable stores a table in a local Pebble database so several
// worker processes on one host, or one long-lived server, can share it
// across restarts.
//
// Layout per table name:
//
//	tbl/{name}/hdr            JSON []string
//	tbl/{name}/row/%010d      JSON []string, one key per data row
//	tbl/{name}/meta/rows      decimal count of rows including the header
package pebbletable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	pebblestore "github.com/rzbill/rowlease/internal/storage/pebble"
	"github.com/rzbill/rowlease/internal/table"
)

// Table is a table.Table backed by pebblestore.
type Table struct {
	db   *pebblestore.DB
	name string
	// mu serializes read-modify-write of rows within this process.
	mu sync.Mutex
}

var (
	_ table.Table        = (*Table)(nil)
	_ table.Appender     = (*Table)(nil)
	_ table.HeaderWriter = (*Table)(nil)
	_ table.Swapper      = (*Table)(nil)
)

// Open returns the table called name stored in db. The table is empty until
// WriteHeader is called.
func Open(db *pebblestore.DB, name string) (*Table, error) {
	if db == nil {
		return nil, errors.New("pebbletable: nil db")
	}
	if name == "" {
		return nil, errors.New("pebbletable: table name is required")
	}
	return &Table{db: db, name: name}, nil
}

func (t *Table) hdrKey() []byte    { return []byte("tbl/" + t.name + "/hdr") }
func (t *Table) metaKey() []byte   { return []byte("tbl/" + t.name + "/meta/rows") }
func (t *Table) rowPrefix() []byte { return []byte("tbl/" + t.name + "/row/") }

func (t *Table) rowKey(row int) []byte {
	return []byte(fmt.Sprintf("tbl/%s/row/%010d", t.name, row))
}

func rowFromKey(prefix, key []byte) (int, error) {
	return strconv.Atoi(string(key[len(prefix):]))
}

func encode(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func decode(b []byte) ([]string, error) {
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return out, nil
}

// count returns the number of rows including the header, or 0 for a table
// that has never been initialized.
func (t *Table) count(r pebblestore.Reader) (int, error) {
	b, err := t.db.GetFrom(r, t.metaKey())
	if errors.Is(err, pebblestore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, fmt.Errorf("decode row count: %w", err)
	}
	return n, nil
}

func (t *Table) readRow(r pebblestore.Reader, row int) ([]string, error) {
	n, err := t.count(r)
	if err != nil {
		return nil, err
	}
	if err := table.CheckRow(row, n); err != nil {
		return nil, err
	}
	key := t.rowKey(row)
	if row == 1 {
		key = t.hdrKey()
	}
	b, err := t.db.GetFrom(r, key)
	if errors.Is(err, pebblestore.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(b)
}

func (t *Table) ReadHeader(ctx context.Context) ([]string, error) {
	return t.ReadRow(ctx, 1)
}

func (t *Table) ReadRow(ctx context.Context, row int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := t.db.NewSnapshot()
	defer snap.Close()
	return t.readRow(snap, row)
}

// ReadAll reads every row from a single snapshot.
func (t *Table) ReadAll(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := t.db.NewSnapshot()
	defer snap.Close()

	n, err := t.count(snap)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return [][]string{}, nil
	}
	out := make([][]string, n)
	hdr, err := t.readRow(snap, 1)
	if err != nil {
		return nil, err
	}
	out[0] = hdr
	for i := 1; i < n; i++ {
		out[i] = []string{}
	}
	prefix := t.rowPrefix()
	err = pebblestore.ScanPrefix(snap, prefix, func(key, value []byte) error {
		row, err := rowFromKey(prefix, key)
		if err != nil {
			return fmt.Errorf("decode row key %q: %w", key, err)
		}
		if row < 2 || row > n {
			return nil
		}
		values, err := decode(value)
		if err != nil {
			return err
		}
		out[row-1] = values
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WriteCells applies cells to one data row in a single batch.
func (t *Table) WriteCells(ctx context.Context, row int, cells map[int]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	current, err := t.readRow(t.dbReader(), row)
	if err != nil {
		return err
	}
	return t.put(ctx, row, table.Apply(current, cells), -1)
}

// SwapCells writes cells only if expect still matches the stored row. The
// check and the write happen under the table lock, so the swap is atomic
// for every writer sharing this Table.
func (t *Table) SwapCells(ctx context.Context, row int, expect, cells map[int]string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	current, err := t.readRow(t.dbReader(), row)
	if err != nil {
		return false, err
	}
	if !table.Matches(current, expect) {
		return false, nil
	}
	if err := t.put(ctx, row, table.Apply(current, cells), -1); err != nil {
		return false, err
	}
	return true, nil
}

// AppendRow stores values as a new last row.
func (t *Table) AppendRow(ctx context.Context, values []string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := t.count(t.dbReader())
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.New("pebbletable: table has no header row")
	}
	row := n + 1
	if err := t.put(ctx, row, values, row); err != nil {
		return 0, err
	}
	return row, nil
}

// WriteHeader replaces row 1, creating the table when needed.
func (t *Table) WriteHeader(ctx context.Context, headers []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := t.count(t.dbReader())
	if err != nil {
		return err
	}
	newCount := -1
	if n == 0 {
		newCount = 1
	}
	return t.put(ctx, 1, headers, newCount)
}

// put writes one row and, when newCount is positive, the row count, in a
// single batch.
func (t *Table) put(ctx context.Context, row int, values []string, newCount int) error {
	b, err := encode(values)
	if err != nil {
		return err
	}
	key := t.rowKey(row)
	if row == 1 {
		key = t.hdrKey()
	}
	batch := t.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(key, b, nil); err != nil {
		return err
	}
	if newCount > 0 {
		if err := batch.Set(t.metaKey(), []byte(strconv.Itoa(newCount)), nil); err != nil {
			return err
		}
	}
	if err := t.db.CommitBatch(ctx, batch); err != nil {
		return fmt.Errorf("commit row %d: %w", row, err)
	}
	return nil
}

// dbReader reads the latest committed state.
func (t *Table) dbReader() pebblestore.Reader { return t.db.Latest() }
