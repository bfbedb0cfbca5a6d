package claim

import (
	"context"
	"errors"
	"sync"
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

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

var header = []string{"status", "processing_lock", "locked_by", "price"}

func newCoordinator(t *testing.T, tb *memtable.Table, clock lease.Clock, opts ...Option) *Coordinator {
	t.Helper()
	c, err := New(tb, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return c
}

func req(worker string) Request {
	return Request{
		WantedStatus:  item.StatusNew,
		ClaimedStatus: item.StatusProcessing,
		WorkerID:      worker,
		MaxLeaseAge:   10 * time.Minute,
	}
}

type recordingMetrics struct {
	mu        sync.Mutex
	outcomes  []string
	reclaims  []string
	lostRaces int
}

func (m *recordingMetrics) ObserveClaim(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) ObserveReclaim(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaims = append(m.reclaims, reason)
}

func (m *recordingMetrics) ObserveLostRace() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lostRaces++
}

func TestEndToEndLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	tb := memtable.New(header, []string{"NEW", "", "", "150"})
	clock := lease.NewFakeClock(t0)
	metrics := &recordingMetrics{}
	c := newCoordinator(t, tb, clock, WithMetrics(metrics))

	w, err := c.ClaimFirstAvailable(ctx, req("W1"))
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 2, w.Row)
	assert.Equal(t, item.StatusProcessing, w.Status)
	assert.Equal(t, "W1", w.LockedBy)
	assert.Equal(t, "2024-05-01T12:00:00.000000Z", w.ProcessingLock)
	assert.Equal(t, "150", w.Get("price"))

	// Status is now PROCESSING, so a claim for NEW finds nothing.
	w2, err := c.ClaimFirstAvailable(ctx, req("W2"))
	require.NoError(t, err)
	assert.Nil(t, w2)

	// Put the row back to NEW while keeping the lease: the fresh lease
	// still protects it.
	_, err = c.Update(ctx, 2, map[string]string{"status": "NEW"})
	require.NoError(t, err)
	w2, err = c.ClaimFirstAvailable(ctx, req("W2"))
	require.NoError(t, err)
	assert.Nil(t, w2)

	clock.Advance(11 * time.Minute)
	w2, err = c.ClaimFirstAvailable(ctx, req("W2"))
	require.NoError(t, err)
	require.NotNil(t, w2)
	assert.Equal(t, 2, w2.Row)
	assert.Equal(t, "W2", w2.LockedBy)
	assert.Equal(t, "2024-05-01T12:11:00.000000Z", w2.ProcessingLock)

	assert.Equal(t, []string{OutcomeClaimed, OutcomeEmpty, OutcomeEmpty, OutcomeClaimed}, metrics.outcomes)
	assert.Equal(t, []string{ReclaimStale}, metrics.reclaims)
}

func TestSecondWorkerSeesFreshLease(t *testing.T) {
	ctx := context.Background()
	// Claiming into the same status keeps the row matchable, so only the
	// lease protects it.
	tb := memtable.New(header, []string{"NEW", "", "", "150"})
	clock := lease.NewFakeClock(t0)
	c := newCoordinator(t, tb, clock)

	r := req("W1")
	r.ClaimedStatus = item.StatusNew
	w, err := c.ClaimFirstAvailable(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, w)

	r.WorkerID = "W2"
	w, err = c.ClaimFirstAvailable(ctx, r)
	require.NoError(t, err)
	assert.Nil(t, w)

	clock.Advance(10 * time.Minute)
	w, err = c.ClaimFirstAvailable(ctx, r)
	require.NoError(t, err)
	assert.Nil(t, w, "a lease exactly max age old still holds")

	clock.Advance(time.Second)
	w, err = c.ClaimFirstAvailable(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "W2", w.LockedBy)
}

func TestSubSecondLeaseIsNotAgedEarly(t *testing.T) {
	ctx := context.Background()
	tb := memtable.New(header, []string{"NEW", "", "", "150"})
	clock := lease.NewFakeClock(t0.Add(900 * time.Millisecond))
	c := newCoordinator(t, tb, clock)

	r := req("W1")
	r.ClaimedStatus = item.StatusNew
	w, err := c.ClaimFirstAvailable(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "2024-05-01T12:00:00.900000Z", w.ProcessingLock)

	clock.Advance(10*time.Minute - 300*time.Millisecond)
	r.WorkerID = "W2"
	w, err = c.ClaimFirstAvailable(ctx, r)
	require.NoError(t, err)
	assert.Nil(t, w, "a lease younger than max age must hold")

	clock.Advance(time.Second)
	w, err = c.ClaimFirstAvailable(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "W2", w.LockedBy)
}

func TestTopToBottomTieBreak(t *testing.T) {
	tb := memtable.New(header,
		[]string{"READY", "", "", "1"},
		[]string{"NEW", "", "", "2"},
		[]string{"NEW", "", "", "3"},
	)
	c := newCoordinator(t, tb, lease.NewFakeClock(t0))

	w, err := c.ClaimFirstAvailable(context.Background(), req("W1"))
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 3, w.Row)
	assert.Equal(t, "2", w.Get("price"))
	assert.Equal(t, "NEW", tb.Snapshot()[3][0])
}

func TestSkips(t *testing.T) {
	fresh := lease.Format(t0.Add(-time.Minute))
	tests := []struct {
		name    string
		rows    [][]string
		wantRow int
	}{
		{"no data rows", nil, 0},
		{"too short for status", [][]string{{}}, 0},
		{"case sensitive", [][]string{{"new"}}, 0},
		{"whitespace sensitive", [][]string{{" NEW"}}, 0},
		{"fresh lease", [][]string{{"NEW", fresh, "W9"}}, 0},
		{"short row is eligible", [][]string{{"NEW"}}, 2},
		{"skips fresh, takes next", [][]string{{"NEW", fresh, "W9"}, {"NEW"}}, 3},
		{"corrupt lease reclaimed", [][]string{{"NEW", "yesterday-ish", "W9"}}, 2},
		{"old lease reclaimed", [][]string{{"NEW", "2024-05-01T11:00:00Z", "W9"}}, 2},
		{"naive lease reclaimed", [][]string{{"NEW", "2024-05-01T11:00:00.123456", "W9"}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := memtable.New(header, tt.rows...)
			c := newCoordinator(t, tb, lease.NewFakeClock(t0))
			w, err := c.ClaimFirstAvailable(context.Background(), req("W1"))
			require.NoError(t, err)
			if tt.wantRow == 0 {
				assert.Nil(t, w)
				assert.Equal(t, 0, tb.Writes())
				return
			}
			require.NotNil(t, w)
			assert.Equal(t, tt.wantRow, w.Row)
			assert.Equal(t, "W1", w.LockedBy)
			assert.Equal(t, item.StatusProcessing, w.Status)
			ts, ok := w.Lease()
			require.True(t, ok)
			assert.True(t, t0.Equal(ts))
		})
	}
}

func TestCorruptLeaseIsReportedNotRaised(t *testing.T) {
	tb := memtable.New(header, []string{"NEW", "not a time", "W9"})
	metrics := &recordingMetrics{}
	c := newCoordinator(t, tb, lease.NewFakeClock(t0), WithMetrics(metrics))

	w, err := c.ClaimFirstAvailable(context.Background(), req("W1"))
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, []string{ReclaimCorrupt}, metrics.reclaims)
}

func TestSchemaErrorBeforeAnyRead(t *testing.T) {
	tb := memtable.New([]string{"status", "price"}, []string{"NEW", "1"})
	c := newCoordinator(t, tb, lease.NewFakeClock(t0))

	r := req("W1")
	r.RequiredHeaders = []string{"deal_id", "price"}
	w, err := c.ClaimFirstAvailable(context.Background(), r)
	assert.Nil(t, w)

	var serr *schema.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, []string{"deal_id", "processing_lock", "locked_by"}, serr.Missing)
	assert.Equal(t, 0, tb.Writes())
}

func TestRequestValidation(t *testing.T) {
	c := newCoordinator(t, memtable.New(header), lease.NewFakeClock(t0))
	ctx := context.Background()

	r := req("")
	_, err := c.ClaimFirstAvailable(ctx, r)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	r = req("W1")
	r.ClaimedStatus = "WORKING"
	_, err = c.ClaimFirstAvailable(ctx, r)
	assert.ErrorIs(t, err, item.ErrUnknownStatus)

	r = req("W1")
	r.MaxLeaseAge = -time.Second
	_, err = c.ClaimFirstAvailable(ctx, r)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	r = req("W1")
	r.Filter = "row.price >"
	_, err = c.ClaimFirstAvailable(ctx, r)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestIOErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("network down")

	tb := memtable.New(header, []string{"NEW"})
	tb.FailReads(boom)
	c := newCoordinator(t, tb, lease.NewFakeClock(t0))
	_, err := c.ClaimFirstAvailable(ctx, req("W1"))
	assert.ErrorIs(t, err, boom)

	tb = memtable.New(header, []string{"NEW"})
	tb.FailWrites(boom)
	c = newCoordinator(t, tb, lease.NewFakeClock(t0))
	_, err = c.ClaimFirstAvailable(ctx, req("W1"))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "write row 2")
}

func TestFilter(t *testing.T) {
	tb := memtable.New(header,
		[]string{"NEW", "", "", "250"},
		[]string{"NEW", "", "", ""},
		[]string{"NEW", "", "", "90"},
	)
	c := newCoordinator(t, tb, lease.NewFakeClock(t0))

	r := req("W1")
	r.Filter = `double(row.price) < 200.0`
	w, err := c.ClaimFirstAvailable(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 4, w.Row)

	r.Filter = `row_number == 2 && status == "NEW"`
	w, err = c.ClaimFirstAvailable(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 2, w.Row)
}

func TestOptimisticRaceIsPreserved(t *testing.T) {
	ctx := context.Background()
	tb := memtable.New(header, []string{"NEW", "", "", "150"})
	clock := lease.NewFakeClock(t0)
	w1 := newCoordinator(t, tb, clock)
	w2 := newCoordinator(t, tb, clock)

	// W2 runs its whole claim between W1's scan and W1's write.
	var second *item.WorkItem
	tb.BeforeWrite(func(row int) {
		tb.BeforeWrite(nil)
		var err error
		second, err = w2.ClaimFirstAvailable(ctx, req("W2"))
		require.NoError(t, err)
	})

	first, err := w1.ClaimFirstAvailable(ctx, req("W1"))
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, second)

	// Both workers believe they claimed row 2; the later write wins.
	assert.Equal(t, 2, first.Row)
	assert.Equal(t, 2, second.Row)
	assert.Equal(t, "W2", second.LockedBy)
	assert.Equal(t, "W1", first.LockedBy)
	assert.Equal(t, "W1", tb.Snapshot()[1][2])
}

// racingTable runs hook once ahead of the first SwapCells.
type racingTable struct {
	*memtable.Table
	once sync.Once
	hook func()
}

func (r *racingTable) SwapCells(ctx context.Context, row int, expect, cells map[int]string) (bool, error) {
	r.once.Do(r.hook)
	return r.Table.SwapCells(ctx, row, expect, cells)
}

func TestCompareAndSwapMovesOnAfterLostRace(t *testing.T) {
	ctx := context.Background()
	mem := memtable.New(header, []string{"NEW", "", "", "1"}, []string{"NEW", "", "", "2"})
	clock := lease.NewFakeClock(t0)
	rt := &racingTable{Table: mem}
	metrics := &recordingMetrics{}

	w1, err := New(rt, WithClock(clock), WithStrategy(CompareAndSwap), WithMetrics(metrics))
	require.NoError(t, err)
	w2 := newCoordinator(t, mem, clock)

	rt.hook = func() {
		got, err := w2.ClaimFirstAvailable(ctx, req("W2"))
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, 2, got.Row)
	}

	got, err := w1.ClaimFirstAvailable(ctx, req("W1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Row)
	assert.Equal(t, "W1", got.LockedBy)
	assert.Equal(t, 1, metrics.lostRaces)
	assert.Equal(t, "W2", mem.Snapshot()[1][2])
}

// tableOnly hides every method beyond table.Table.
type tableOnly struct{ table.Table }

func TestCompareAndSwapNeedsSwapper(t *testing.T) {
	_, err := New(tableOnly{memtable.New(header)}, WithStrategy(CompareAndSwap))
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, Optimistic, s)
	s, err = ParseStrategy("CAS")
	require.NoError(t, err)
	assert.Equal(t, CompareAndSwap, s)
	_, err = ParseStrategy("pessimistic")
	assert.Error(t, err)
}
