package claim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rzbill/rowlease/internal/item"
	"github.com/rzbill/rowlease/internal/lease"
	"github.com/rzbill/rowlease/internal/schema"
	"github.com/rzbill/rowlease/internal/table"
	"github.com/rzbill/rowlease/internal/writer"
	logpkg "github.com/rzbill/rowlease/pkg/log"
)

// DefaultMaxLeaseAge applies when Request.MaxLeaseAge is zero.
const DefaultMaxLeaseAge = 30 * time.Minute

// ErrInvalidRequest wraps malformed claim requests and filter expressions.
var ErrInvalidRequest = errors.New("invalid claim request")

// Strategy selects how the claim write is made.
type Strategy int

const (
	// Optimistic writes the claim unconditionally after the scan.
	Optimistic Strategy = iota
	// CompareAndSwap writes the claim only if the row still holds what the
	// scan saw, and moves on to the next row otherwise.
	CompareAndSwap
)

func (s Strategy) String() string {
	switch s {
	case Optimistic:
		return "optimistic"
	case CompareAndSwap:
		return "cas"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps optimistic|cas to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "optimistic":
		return Optimistic, nil
	case "cas", "compare-and-swap":
		return CompareAndSwap, nil
	default:
		return Optimistic, fmt.Errorf("invalid claim strategy %q; use optimistic|cas", s)
	}
}

// Claim outcomes reported to Metrics.
const (
	OutcomeClaimed = "claimed"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

// Reclaim reasons reported to Metrics.
const (
	ReclaimStale   = "stale"
	ReclaimCorrupt = "corrupt"
)

// Metrics receives claim observations.
type Metrics interface {
	ObserveClaim(outcome string, elapsed time.Duration)
	ObserveReclaim(reason string)
	ObserveLostRace()
}

type noopMetrics struct{}

func (noopMetrics) ObserveClaim(string, time.Duration) {}
func (noopMetrics) ObserveReclaim(string)              {}
func (noopMetrics) ObserveLostRace()                   {}

// Request describes one claim attempt.
type Request struct {
	// RequiredHeaders must all be present in the header row, in addition to
	// the status and lease fields.
	RequiredHeaders []string
	// StatusField names the status column. Defaults to the coordinator's.
	StatusField string
	// WantedStatus is matched exactly against the status cell.
	WantedStatus item.Status
	// ClaimedStatus is written on claim.
	ClaimedStatus item.Status
	WorkerID      string
	// MaxLeaseAge is how long a lease protects a row. Zero means
	// DefaultMaxLeaseAge; callers that take the age from user input reject
	// an explicit zero instead of passing it on.
	MaxLeaseAge time.Duration
	// Filter is an optional CEL expression; see Filter.
	Filter string
}

// Coordinator runs claims and lifecycle writes against one table.
type Coordinator struct {
	tbl         table.Table
	writer      *writer.Writer
	clock       lease.Clock
	logger      logpkg.Logger
	metrics     Metrics
	strategy    Strategy
	statusField string
	filters     filterCache
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the time source. The default is lease.SystemClock.
func WithClock(c lease.Clock) Option { return func(co *Coordinator) { co.clock = c } }

// WithLogger sets the logger.
func WithLogger(l logpkg.Logger) Option {
	return func(co *Coordinator) {
		if l != nil {
			co.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(co *Coordinator) {
		if m != nil {
			co.metrics = m
		}
	}
}

// WithStrategy selects the claim write strategy.
func WithStrategy(s Strategy) Option { return func(co *Coordinator) { co.strategy = s } }

// WithWriter shares a writer instead of building one over the table.
func WithWriter(w *writer.Writer) Option { return func(co *Coordinator) { co.writer = w } }

// WithStatusField sets the default status column name.
func WithStatusField(name string) Option {
	return func(co *Coordinator) {
		if name != "" {
			co.statusField = name
		}
	}
}

// New returns a Coordinator over tbl. CompareAndSwap requires tbl to
// implement table.Swapper.
func New(tbl table.Table, opts ...Option) (*Coordinator, error) {
	if tbl == nil {
		return nil, errors.New("claim: nil table")
	}
	c := &Coordinator{
		tbl:         tbl,
		clock:       lease.SystemClock{},
		logger:      logpkg.NewNopLogger(),
		metrics:     noopMetrics{},
		statusField: schema.FieldStatus,
	}
	for _, o := range opts {
		o(c)
	}
	if c.strategy == CompareAndSwap {
		if _, ok := tbl.(table.Swapper); !ok {
			return nil, fmt.Errorf("claim: %s strategy: %w", c.strategy, writer.ErrNoSwap)
		}
	}
	if c.writer == nil {
		c.writer = writer.New(tbl, writer.WithLogger(c.logger))
	}
	c.logger = c.logger.WithComponent("claim")
	return c, nil
}

// Table returns the table the coordinator works on.
func (c *Coordinator) Table() table.Table { return c.tbl }

// Writer returns the writer used for every row mutation.
func (c *Coordinator) Writer() *writer.Writer { return c.writer }

// StatusField returns the default status column name.
func (c *Coordinator) StatusField() string { return c.statusField }

func (c *Coordinator) normalize(req Request) (Request, error) {
	if req.StatusField == "" {
		req.StatusField = c.statusField
	}
	if req.MaxLeaseAge == 0 {
		req.MaxLeaseAge = DefaultMaxLeaseAge
	}
	if req.MaxLeaseAge < 0 {
		return req, fmt.Errorf("%w: max lease age must not be negative, got %s", ErrInvalidRequest, req.MaxLeaseAge)
	}
	if strings.TrimSpace(req.WorkerID) == "" {
		return req, fmt.Errorf("%w: worker id is required", ErrInvalidRequest)
	}
	if req.WantedStatus == "" {
		return req, fmt.Errorf("%w: wanted status is required", ErrInvalidRequest)
	}
	if err := item.Validate(req.ClaimedStatus); err != nil {
		return req, fmt.Errorf("claimed status: %w", err)
	}
	return req, nil
}

// ClaimFirstAvailable claims the first eligible row and returns a fresh
// snapshot of it. It returns a nil item and nil error when no row is
// eligible. A missing required header fails with *schema.Error before any
// row is read.
func (c *Coordinator) ClaimFirstAvailable(ctx context.Context, req Request) (w *item.WorkItem, err error) {
	start := time.Now()
	defer func() {
		outcome := OutcomeClaimed
		switch {
		case err != nil:
			outcome = OutcomeError
		case w == nil:
			outcome = OutcomeEmpty
		}
		c.metrics.ObserveClaim(outcome, time.Since(start))
	}()

	req, err = c.normalize(req)
	if err != nil {
		return nil, err
	}
	filter, err := c.filters.get(req.Filter)
	if err != nil {
		return nil, err
	}

	header, err := c.tbl.ReadHeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	mapping, err := schema.Resolve(header, schema.ClaimFields(req.RequiredHeaders, req.StatusField))
	if err != nil {
		return nil, err
	}

	rows, err := c.tbl.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	statusCol, _ := mapping.Column(req.StatusField)
	lockCol, _ := mapping.Column(schema.FieldProcessingLock)
	lockedByCol, _ := mapping.Column(schema.FieldLockedBy)
	now := c.clock.Now()

	for i := 1; i < len(rows); i++ {
		raw := rows[i]
		rowNum := i + 1
		if len(raw) < statusCol {
			continue
		}
		if raw[statusCol-1] != string(req.WantedStatus) {
			continue
		}
		ts := table.Cell(raw, lockCol)
		held := strings.TrimSpace(ts) != ""
		if held && !lease.IsStale(ts, req.MaxLeaseAge, now) {
			continue
		}
		snap := item.FromRow(header, raw, rowNum, req.StatusField)
		if !filter.Match(snap, now) {
			continue
		}

		if held {
			c.noteReclaim(rowNum, ts, table.Cell(raw, lockedByCol))
		}

		updates := map[string]string{
			schema.FieldProcessingLock: lease.Format(now),
			schema.FieldLockedBy:       req.WorkerID,
			req.StatusField:            string(req.ClaimedStatus),
		}
		won, err := c.mark(ctx, rowNum, mapping, updates, map[string]string{
			req.StatusField:            raw[statusCol-1],
			schema.FieldProcessingLock: ts,
			schema.FieldLockedBy:       table.Cell(raw, lockedByCol),
		})
		if err != nil {
			return nil, err
		}
		if !won {
			c.metrics.ObserveLostRace()
			c.logger.Info("row taken by another worker, moving on",
				logpkg.Int("row", rowNum), logpkg.Str("worker", req.WorkerID))
			continue
		}

		fresh, err := c.tbl.ReadRow(ctx, rowNum)
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", rowNum, err)
		}
		got := item.FromRow(header, fresh, rowNum, req.StatusField)
		if got.LockedBy != req.WorkerID {
			c.logger.Warn("claim overwritten by a concurrent worker",
				logpkg.Int("row", rowNum),
				logpkg.Str("worker", req.WorkerID),
				logpkg.Str("locked_by", got.LockedBy))
		}
		c.logger.Debug("claimed row",
			logpkg.Int("row", rowNum),
			logpkg.Str("worker", req.WorkerID),
			logpkg.Str("status", string(req.ClaimedStatus)))
		return &got, nil
	}
	return nil, nil
}

func (c *Coordinator) mark(ctx context.Context, row int, mapping schema.Mapping, updates, expect map[string]string) (bool, error) {
	if c.strategy == CompareAndSwap {
		return c.writer.Swap(ctx, row, mapping, expect, updates)
	}
	if _, err := c.writer.Apply(ctx, row, mapping, updates); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Coordinator) noteReclaim(row int, ts, holder string) {
	if lease.Corrupt(ts) {
		c.metrics.ObserveReclaim(ReclaimCorrupt)
		c.logger.Warn("reclaiming row with unreadable lease",
			logpkg.Int("row", row),
			logpkg.Str("processing_lock", ts),
			logpkg.Str("locked_by", holder))
		return
	}
	c.metrics.ObserveReclaim(ReclaimStale)
	c.logger.Info("reclaiming row with stale lease",
		logpkg.Int("row", row),
		logpkg.Str("processing_lock", ts),
		logpkg.Str("locked_by", holder))
}
