package deadletter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rzbill/rowlease/internal/item"
	"github.com/rzbill/rowlease/internal/lease"
	"github.com/rzbill/rowlease/internal/schema"
	"github.com/rzbill/rowlease/internal/table/memtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newGuard(tb *memtable.Table) *Guard {
	return New(tb, nil, lease.NewFakeClock(now), nil)
}

func TestRunCountsThenDeadLetters(t *testing.T) {
	hdr := []string{"status", "fail_count", "last_error", "last_attempt_ts"}
	tb := memtable.New(hdr,
		[]string{"SCORED", "", "", ""},
		[]string{"READY", "1"},
		[]string{"scored ", "2", "", ""},
		[]string{"SCORED", "7", "", ""},
	)
	g := newGuard(tb)

	res, err := g.Run(context.Background(), Options{InputStatus: "SCORED", LastError: "render 500"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 5}, res.Visited)
	assert.Equal(t, []int{4, 5}, res.DeadLettered)

	rows := tb.Snapshot()
	assert.Equal(t, []string{"SCORED", "1", "render 500", "2024-05-01T12:00:00.000000Z"}, rows[1])
	assert.Equal(t, []string{"READY", "1"}, rows[2])
	assert.Equal(t, []string{"ERROR_HARD", "3", "render 500", "2024-05-01T12:00:00.000000Z"}, rows[3])
	// Already past the limit: status moves, the count is left alone.
	assert.Equal(t, []string{"ERROR_HARD", "7", "render 500", "2024-05-01T12:00:00.000000Z"}, rows[4])
}

func TestRunHonoursMaxRows(t *testing.T) {
	tb := memtable.New([]string{"status", "fail_count"},
		[]string{"ERROR", ""}, []string{"ERROR", ""}, []string{"ERROR", ""},
	)
	res, err := newGuard(tb).Run(context.Background(), Options{InputStatus: "ERROR", MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, res.Visited)
	assert.Equal(t, 2, tb.Writes())
	assert.Equal(t, "", tb.Snapshot()[3][1])
}

func TestRunWritesOnlyExistingColumns(t *testing.T) {
	tb := memtable.New([]string{"status", "deal_id"}, []string{"SCORED", "d-1"})
	res, err := newGuard(tb).Run(context.Background(), Options{InputStatus: "SCORED", MaxFails: 1, LastError: "x"})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.DeadLettered)
	assert.Equal(t, []string{"ERROR_HARD", "d-1"}, tb.Snapshot()[1])
}

func TestRunTruncatesLastError(t *testing.T) {
	tb := memtable.New([]string{"status", "last_error"}, []string{"SCORED"})
	_, err := newGuard(tb).Run(context.Background(), Options{InputStatus: "SCORED", LastError: strings.Repeat("x", 900)})
	require.NoError(t, err)
	assert.Len(t, tb.Snapshot()[1][1], MaxLastErrorLen)
}

func TestRunValidation(t *testing.T) {
	tb := memtable.New([]string{"state"}, []string{"SCORED"})
	g := newGuard(tb)
	ctx := context.Background()

	_, err := g.Run(ctx, Options{})
	assert.Error(t, err)

	_, err = g.Run(ctx, Options{InputStatus: "SCORED", DeadStatus: "GRAVEYARD"})
	assert.ErrorIs(t, err, item.ErrUnknownStatus)

	_, err = g.Run(ctx, Options{InputStatus: "SCORED"})
	var serr *schema.Error
	assert.True(t, errors.As(err, &serr))

	res, err := g.Run(ctx, Options{InputStatus: "SCORED", StatusField: "state"})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.Visited)
}
