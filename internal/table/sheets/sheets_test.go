package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestColumnLetters(t *testing.T) {
	cases := map[int]string{0: "", 1: "A", 2: "B", 26: "Z", 27: "AA", 52: "AZ", 53: "BA", 702: "ZZ", 703: "AAA"}
	for in, want := range cases {
		assert.Equal(t, want, ColumnLetters(in), "col %d", in)
	}
}

func TestRanges(t *testing.T) {
	assert.Equal(t, "'RAW_DEALS'!C7", CellRange("RAW_DEALS", 7, 3))
	assert.Equal(t, "'it''s'!4:4", RowRange("it's", 4))
}

func TestRowFromRange(t *testing.T) {
	n, err := RowFromRange("'RAW_DEALS'!A5:C5")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = RowFromRange("Sheet1!$B$12")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = RowFromRange("Sheet1!A:C")
	assert.Error(t, err)
}

// fakeSheets serves the handful of values endpoints the table uses.
type fakeSheets struct {
	mu      sync.Mutex
	paths   []string
	bodies  []string
	getResp string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.paths = append(f.paths, r.Method+" "+r.URL.Path)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, ":batchUpdate"):
		_, _ = io.WriteString(w, `{}`)
	case strings.HasSuffix(r.URL.Path, ":append"):
		_, _ = io.WriteString(w, `{"updates":{"updatedRange":"'RAW_DEALS'!A9:C9"}}`)
	case r.Method == http.MethodGet:
		_, _ = io.WriteString(w, f.getResp)
	default:
		_, _ = io.WriteString(w, `{}`)
	}
}

func newFakeTable(t *testing.T, f *fakeSheets) *Table {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	tb, err := Open(context.Background(), Options{
		SpreadsheetID: "sid",
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(srv.URL),
			option.WithHTTPClient(srv.Client()),
		},
	})
	require.NoError(t, err)
	return tb
}

func TestReadAllAgainstFakeService(t *testing.T) {
	f := &fakeSheets{getResp: `{"values":[["status","locked_by"],["NEW"],["READY","w1"]]}`}
	tb := newFakeTable(t, f)

	all, err := tb.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"status", "locked_by"}, {"NEW"}, {"READY", "w1"}}, all)
}

func TestWriteCellsSendsOneBatch(t *testing.T) {
	f := &fakeSheets{}
	tb := newFakeTable(t, f)

	require.NoError(t, tb.WriteCells(context.Background(), 4, map[int]string{3: "w1", 1: "PROCESSING"}))
	require.Len(t, f.paths, 1)
	assert.Contains(t, f.paths[0], ":batchUpdate")

	var req struct {
		ValueInputOption string `json:"valueInputOption"`
		Data             []struct {
			Range  string     `json:"range"`
			Values [][]string `json:"values"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(f.bodies[0]), &req))
	assert.Equal(t, "RAW", req.ValueInputOption)
	require.Len(t, req.Data, 2)
	assert.Equal(t, "'RAW_DEALS'!A4", req.Data[0].Range)
	assert.Equal(t, "'RAW_DEALS'!C4", req.Data[1].Range)
	assert.Equal(t, [][]string{{"w1"}}, req.Data[1].Values)
}

func TestAppendRowReturnsRowNumber(t *testing.T) {
	f := &fakeSheets{}
	tb := newFakeTable(t, f)

	n, err := tb.AppendRow(context.Background(), []string{"NEW", "", ""})
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}
