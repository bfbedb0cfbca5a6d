package rows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	transports "github.com/rzbill/rowlease/internal/cmd/rows/transports"
	cfgpkg "github.com/rzbill/rowlease/internal/config"
	"github.com/rzbill/rowlease/internal/item"
	"github.com/rzbill/rowlease/internal/lease"
	"github.com/rzbill/rowlease/internal/runtime"
	"github.com/rzbill/rowlease/internal/table/memtable"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var header = []string{"deal_id", "status", "processing_lock", "locked_by", "ai_notes"}

// localOpen opens a fresh runtime over the shared tbl for every command, as
// separate CLI invocations would.
func localOpen(tbl *memtable.Table) OpenFunc {
	return func(ctx context.Context) (transports.RowsTransport, error) {
		cfg := cfgpkg.Default()
		cfg.Backend = cfgpkg.BackendMemory
		cfg.Claim.WorkerID = "cli"
		clock := lease.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
		rt, err := runtime.Open(ctx, runtime.Options{Config: cfg, Table: tbl, Clock: clock})
		if err != nil {
			return nil, err
		}
		return transports.NewLocalTransport(rt), nil
	}
}

func run(t *testing.T, open OpenFunc, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "rowlease", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(NewCommands(open)...)
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func decodeItem(t *testing.T, out string) *item.WorkItem {
	t.Helper()
	var w *item.WorkItem
	require.NoError(t, json.Unmarshal([]byte(out), &w), out)
	return w
}

func TestClaimCommand(t *testing.T) {
	tbl := memtable.New(header, []string{"d-1", "NEW"})
	open := localOpen(tbl)

	out, err := run(t, open, "claim", "--wanted", "NEW", "--claimed", "PROCESSING")
	require.NoError(t, err)
	w := decodeItem(t, out)
	require.NotNil(t, w)
	assert.Equal(t, 2, w.Row)
	assert.Equal(t, "cli", w.LockedBy)

	out, err = run(t, open, "claim", "--wanted", "NEW", "--claimed", "PROCESSING")
	require.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(out))

	_, err = run(t, open, "claim", "--wanted", "NEW", "--claimed", "PROCESSING", "--fail-empty")
	assert.True(t, errors.Is(err, ErrNothingToClaim))

	_, err = run(t, open, "claim", "--wanted", "NEW")
	assert.Error(t, err, "missing --claimed")
}

func TestRowCommands(t *testing.T) {
	tbl := memtable.New(nil)
	open := localOpen(tbl)

	_, err := run(t, open, "init", "--header", "deal_id, status,processing_lock,locked_by,ai_notes")
	require.NoError(t, err)
	assert.Equal(t, header, tbl.Snapshot()[0])

	out, err := run(t, open, "append", "--set", "deal_id=d-1", "--set", "status=NEW")
	require.NoError(t, err)
	assert.JSONEq(t, `{"row":2}`, out)

	out, err = run(t, open, "show", "--find", "deal_id=d-1")
	require.NoError(t, err)
	assert.Equal(t, 2, decodeItem(t, out).Row)

	out, err = run(t, open, "update", "2", "--set", "ai_notes=a=b")
	require.NoError(t, err)
	assert.Equal(t, "a=b", decodeItem(t, out).Get("ai_notes"))

	out, err = run(t, open, "complete", "2", "--status", "SCORED")
	require.NoError(t, err)
	assert.Equal(t, item.StatusScored, decodeItem(t, out).Status)

	out, err = run(t, open, "fail", "2", "--error", "boom")
	require.NoError(t, err)
	w := decodeItem(t, out)
	assert.Equal(t, item.StatusError, w.Status)
	assert.Equal(t, "a=b\n[ERROR 2024-05-01T12:00:00.000000Z] boom", w.Get("ai_notes"))

	out, err = run(t, open, "release", "2")
	require.NoError(t, err)
	assert.Equal(t, item.StatusReady, decodeItem(t, out).Status)

	out, err = run(t, open, "show", "2")
	require.NoError(t, err)
	assert.Equal(t, "d-1", decodeItem(t, out).Get("deal_id"))

	out, err = run(t, open, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"locked_by":4`)

	out, err = run(t, open, "deadletter", "--input", "ready", "--max-fails", "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"visited":[2],"dead_lettered":[2]}`, out)
}

func TestArgumentErrors(t *testing.T) {
	open := localOpen(memtable.New(header, []string{"d-1", "NEW"}))
	tests := []struct {
		name string
		args []string
	}{
		{"header row", []string{"show", "1"}},
		{"not a number", []string{"show", "two"}},
		{"row and find", []string{"show", "2", "--find", "deal_id=d-1"}},
		{"bad find", []string{"show", "--find", "deal_id"}},
		{"bad set", []string{"update", "2", "--set", "=x"}},
		{"no set", []string{"update", "2"}},
		{"unknown status", []string{"complete", "2", "--status", "DONE"}},
		{"missing input", []string{"deadletter"}},
		{"missing header", []string{"init"}},
		{"out of range", []string{"show", "9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, open, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestParseSet(t *testing.T) {
	got, err := parseSet([]string{"a=1", " b =x=y", "c="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "c": ""}, got)

	_, err = parseSet([]string{"novalue"})
	assert.Error(t, err)
}

func TestOpenErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	open := func(context.Context) (transports.RowsTransport, error) { return nil, boom }
	_, err := run(t, open, "show", "2")
	assert.ErrorIs(t, err, boom)
}
