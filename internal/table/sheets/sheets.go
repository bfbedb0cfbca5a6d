// Package sheets is a table.Table over one tab of a Google Sheets
// spreadsheet, the shared table several unrelated worker processes
// coordinate through.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rzbill/rowlease/internal/table"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// DefaultSheet is the tab used when Options.Sheet is empty.
const DefaultSheet = "RAW_DEALS"

// Options selects the spreadsheet and credentials.
type Options struct {
	SpreadsheetID string
	Sheet         string
	// CredentialsJSON holds a service account key. It wins over
	// CredentialsFile.
	CredentialsJSON []byte
	CredentialsFile string
	// ClientOptions are passed to the Sheets client as-is, for example
	// option.WithEndpoint in tests.
	ClientOptions []option.ClientOption
}

// Table reads and writes one sheet tab with values written RAW.
type Table struct {
	svc   *sheetsapi.Service
	id    string
	sheet string
}

var (
	_ table.Table        = (*Table)(nil)
	_ table.Appender     = (*Table)(nil)
	_ table.HeaderWriter = (*Table)(nil)
)

// Open builds a Sheets client and binds it to one tab.
func Open(ctx context.Context, opts Options) (*Table, error) {
	if opts.SpreadsheetID == "" {
		return nil, errors.New("sheets: spreadsheet id is required")
	}
	copts := append([]option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsScope)}, opts.ClientOptions...)
	switch {
	case len(opts.CredentialsJSON) > 0:
		copts = append(copts, option.WithCredentialsJSON(opts.CredentialsJSON))
	case opts.CredentialsFile != "":
		copts = append(copts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	svc, err := sheetsapi.NewService(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: new service: %w", err)
	}
	sheet := opts.Sheet
	if sheet == "" {
		sheet = DefaultSheet
	}
	return &Table{svc: svc, id: opts.SpreadsheetID, sheet: sheet}, nil
}

func (t *Table) get(ctx context.Context, rng string) ([][]string, error) {
	resp, err := t.svc.Spreadsheets.Values.Get(t.id, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: get %s: %w", rng, err)
	}
	return toStrings(resp.Values), nil
}

func toStrings(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = make([]string, len(row))
		for j, v := range row {
			if v != nil {
				out[i][j] = fmt.Sprint(v)
			}
		}
	}
	return out
}

func toValues(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

func (t *Table) ReadHeader(ctx context.Context) ([]string, error) {
	return t.ReadRow(ctx, 1)
}

// ReadAll fetches the whole tab in one request.
func (t *Table) ReadAll(ctx context.Context) ([][]string, error) {
	return t.get(ctx, QuoteSheet(t.sheet))
}

// ReadRow fetches one row. Rows past the data return an empty slice since
// the service does not report the sheet extent.
func (t *Table) ReadRow(ctx context.Context, row int) ([]string, error) {
	if row < 1 {
		return nil, table.CheckRow(row, 0)
	}
	rows, err := t.get(ctx, RowRange(t.sheet, row))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []string{}, nil
	}
	return rows[0], nil
}

// WriteCells writes every cell with one batchUpdate call.
func (t *Table) WriteCells(ctx context.Context, row int, cells map[int]string) error {
	if row < 1 {
		return table.CheckRow(row, 0)
	}
	cols := make([]int, 0, len(cells))
	for c := range cells {
		cols = append(cols, c)
	}
	sort.Ints(cols)
	req := &sheetsapi.BatchUpdateValuesRequest{ValueInputOption: "RAW"}
	for _, c := range cols {
		req.Data = append(req.Data, &sheetsapi.ValueRange{
			Range:  CellRange(t.sheet, row, c),
			Values: [][]interface{}{{cells[c]}},
		})
	}
	if _, err := t.svc.Spreadsheets.Values.BatchUpdate(t.id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheets: write row %d: %w", row, err)
	}
	return nil
}

// AppendRow inserts values after the last data row.
func (t *Table) AppendRow(ctx context.Context, values []string) (int, error) {
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{toValues(values)}}
	resp, err := t.svc.Spreadsheets.Values.Append(t.id, QuoteSheet(t.sheet), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("sheets: append: %w", err)
	}
	if resp.Updates == nil {
		return 0, errors.New("sheets: append returned no updated range")
	}
	return RowFromRange(resp.Updates.UpdatedRange)
}

// WriteHeader overwrites row 1 starting at column A.
func (t *Table) WriteHeader(ctx context.Context, headers []string) error {
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{toValues(headers)}}
	_, err := t.svc.Spreadsheets.Values.Update(t.id, CellRange(t.sheet, 1, 1), vr).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: write header: %w", err)
	}
	return nil
}
