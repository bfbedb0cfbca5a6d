package claim

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rzbill/rowlease/internal/item"
	"github.com/rzbill/rowlease/internal/lease"
	"github.com/rzbill/rowlease/internal/schema"
	"github.com/rzbill/rowlease/internal/table"
	"github.com/rzbill/rowlease/internal/table/memtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dealHeader = []string{"deal_id", "status", "processing_lock", "locked_by", "published_timestamp", "ai_notes"}

func claimedDeals() *memtable.Table {
	return memtable.New(dealHeader,
		[]string{"d-1", "POSTING", "2024-05-01T11:59:00Z", "W1", "", ""},
		[]string{"d-2", "READY", "", "", "", "earlier note"},
	)
}

func TestRelease(t *testing.T) {
	tb := claimedDeals()
	c := newCoordinator(t, tb, lease.NewFakeClock(t0))

	w, err := c.Release(context.Background(), 2, "")
	require.NoError(t, err)
	assert.Equal(t, item.StatusReady, w.Status)
	assert.False(t, w.Claimed())
	assert.Equal(t, "", w.LockedBy)
	assert.Equal(t, 1, tb.Writes())

	_, err = c.Release(context.Background(), 2, "LATER")
	assert.ErrorIs(t, err, item.ErrUnknownStatus)
}

func TestComplete(t *testing.T) {
	tb := claimedDeals()
	c := newCoordinator(t, tb, lease.NewFakeClock(t0))

	w, err := c.Complete(context.Background(), 2, item.StatusPosted, map[string]string{
		"published_timestamp": "2024-05-01T12:00:00Z",
		"status":              "NEW",
		"unknown":             "dropped",
	})
	require.NoError(t, err)
	assert.Equal(t, item.StatusPosted, w.Status)
	assert.Equal(t, "2024-05-01T12:00:00Z", w.Get("published_timestamp"))
	assert.False(t, w.Claimed())
	assert.Equal(t, 1, tb.Writes())
}

func TestFailAppendsNote(t *testing.T) {
	tb := claimedDeals()
	c := newCoordinator(t, tb, lease.NewFakeClock(t0))
	ctx := context.Background()

	w, err := c.Fail(ctx, 2, "", "telegram 429")
	require.NoError(t, err)
	assert.Equal(t, item.StatusError, w.Status)
	assert.False(t, w.Claimed())
	assert.Equal(t, "[ERROR 2024-05-01T12:00:00.000000Z] telegram 429", w.Get("ai_notes"))

	w, err = c.Fail(ctx, 3, item.StatusFailed, "render timeout")
	require.NoError(t, err)
	assert.Equal(t, "earlier note\n[ERROR 2024-05-01T12:00:00.000000Z] render timeout", w.Get("ai_notes"))
	assert.Equal(t, 2, tb.Writes())
}

func TestFailWithoutNotesColumn(t *testing.T) {
	tb := memtable.New(header, []string{"PROCESSING", "2024-05-01T11:59:00Z", "W1"})
	c := newCoordinator(t, tb, lease.NewFakeClock(t0))

	w, err := c.Fail(context.Background(), 2, "", "boom")
	require.NoError(t, err)
	assert.Equal(t, item.StatusError, w.Status)
	assert.Equal(t, []string{"ERROR", "", ""}, tb.Snapshot()[1])
}

func TestAppendNoteTruncates(t *testing.T) {
	long := strings.Repeat("é", MaxNoteLen)
	out := AppendNote(long, "[ERROR x] y")
	assert.Equal(t, MaxNoteLen, len([]rune(out)))
	assert.Equal(t, "a\nb", AppendNote("a", "b"))
	assert.Equal(t, "b", AppendNote("", "b"))
}

func TestFind(t *testing.T) {
	tb := claimedDeals()
	c := newCoordinator(t, tb, lease.NewFakeClock(t0))
	ctx := context.Background()

	w, err := c.Find(ctx, "deal_id", "d-2")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 3, w.Row)
	assert.Equal(t, item.StatusReady, w.Status)

	w, err = c.Find(ctx, "deal_id", "d-9")
	require.NoError(t, err)
	assert.Nil(t, w)

	_, err = c.Find(ctx, "sku", "x")
	var serr *schema.Error
	assert.True(t, errors.As(err, &serr))
}

func TestRowAndUpdateBounds(t *testing.T) {
	tb := claimedDeals()
	c := newCoordinator(t, tb, lease.NewFakeClock(t0))
	ctx := context.Background()

	_, err := c.Row(ctx, 1)
	assert.ErrorIs(t, err, table.ErrRowOutOfRange)
	_, err = c.Row(ctx, 9)
	assert.ErrorIs(t, err, table.ErrRowOutOfRange)

	_, err = c.Update(ctx, 2, map[string]string{"status": "bogus"})
	assert.ErrorIs(t, err, item.ErrUnknownStatus)

	w, err := c.Update(ctx, 2, map[string]string{"published_timestamp": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", w.Get("published_timestamp"))
	assert.Equal(t, "W1", w.LockedBy)
}

func TestUpdateRejectsLeaseFields(t *testing.T) {
	tb := memtable.New(dealHeader, []string{"d-1", "NEW", "", "", "", ""})
	c := newCoordinator(t, tb, lease.NewFakeClock(t0))
	ctx := context.Background()

	for _, updates := range []map[string]string{
		{"processing_lock": "2099-01-01T00:00:00Z"},
		{"locked_by": "W9"},
		{"status": "NEW", "processing_lock": ""},
	} {
		_, err := c.Update(ctx, 2, updates)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Equal(t, 0, tb.Writes())

	w, err := c.ClaimFirstAvailable(ctx, Request{
		WantedStatus:  item.StatusNew,
		ClaimedStatus: item.StatusProcessing,
		WorkerID:      "W1",
		MaxLeaseAge:   10 * time.Minute,
	})
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "W1", w.LockedBy)
}

func TestLifecycleAfterClaim(t *testing.T) {
	tb := memtable.New(dealHeader, []string{"d-1", "READY"})
	clock := lease.NewFakeClock(t0)
	c := newCoordinator(t, tb, clock)
	ctx := context.Background()

	r := Request{
		RequiredHeaders: []string{"deal_id", "published_timestamp"},
		WantedStatus:    item.StatusReady,
		ClaimedStatus:   item.StatusPosting,
		WorkerID:        "publisher-1",
	}
	w, err := c.ClaimFirstAvailable(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, w)

	// Worker decides the row is not for it and hands it back.
	_, err = c.Release(ctx, w.Row, item.StatusReady)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	w, err = c.ClaimFirstAvailable(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, w, "released row is immediately claimable")
	assert.Equal(t, "2024-05-01T12:01:00.000000Z", w.ProcessingLock)
}
