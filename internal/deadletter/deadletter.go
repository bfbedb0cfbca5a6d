// Package deadletter keeps repeatedly failing rows from jamming a status.
//
// A run visits rows in an input status top to bottom. Each visit bumps the
// row's fail_count and stamps last_error and last_attempt_ts; once the count
// reaches the limit the row moves to the dead-letter status, where no claim
// looks for it. Only columns the table has are written.
package deadletter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rzbill/rowlease/internal/item"
	"github.com/rzbill/rowlease/internal/lease"
	"github.com/rzbill/rowlease/internal/schema"
	"github.com/rzbill/rowlease/internal/table"
	"github.com/rzbill/rowlease/internal/writer"
	logpkg "github.com/rzbill/rowlease/pkg/log"
)

// Bookkeeping fields, written only when present.
const (
	FieldFailCount     = "fail_count"
	FieldLastError     = "last_error"
	FieldLastAttemptTS = "last_attempt_ts"
)

// Defaults applied by Run.
const (
	DefaultMaxFails   = 3
	DefaultMaxRows    = 5
	DefaultDeadStatus = item.StatusErrorHard
	MaxLastErrorLen   = 500
)

// Options controls one run.
type Options struct {
	// InputStatus selects rows to visit. Compared case-insensitively after
	// trimming.
	InputStatus item.Status
	DeadStatus  item.Status
	StatusField string
	MaxFails    int
	// MaxRows bounds the rows touched per run.
	MaxRows int
	// LastError is recorded on each visited row, truncated to
	// MaxLastErrorLen characters.
	LastError string
}

// Result summarizes a run.
type Result struct {
	Visited      []int `json:"visited"`
	DeadLettered []int `json:"dead_lettered"`
}

// Guard runs dead-letter passes over one table.
type Guard struct {
	tbl    table.Table
	writer *writer.Writer
	clock  lease.Clock
	logger logpkg.Logger
}

// New returns a Guard writing through w.
func New(tbl table.Table, w *writer.Writer, clock lease.Clock, logger logpkg.Logger) *Guard {
	if clock == nil {
		clock = lease.SystemClock{}
	}
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	if w == nil {
		w = writer.New(tbl, writer.WithLogger(logger))
	}
	return &Guard{tbl: tbl, writer: w, clock: clock, logger: logger.WithComponent("deadletter")}
}

func (o Options) withDefaults() Options {
	if o.DeadStatus == "" {
		o.DeadStatus = DefaultDeadStatus
	}
	if o.StatusField == "" {
		o.StatusField = schema.FieldStatus
	}
	if o.MaxFails <= 0 {
		o.MaxFails = DefaultMaxFails
	}
	if o.MaxRows <= 0 {
		o.MaxRows = DefaultMaxRows
	}
	return o
}

// Run performs one pass.
func (g *Guard) Run(ctx context.Context, opts Options) (Result, error) {
	opts = opts.withDefaults()
	var res Result
	input := strings.ToUpper(strings.TrimSpace(string(opts.InputStatus)))
	if input == "" {
		return res, errors.New("deadletter: input status is required")
	}
	if err := item.Validate(opts.DeadStatus); err != nil {
		return res, fmt.Errorf("deadletter: %w", err)
	}

	header, err := g.tbl.ReadHeader(ctx)
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	mapping, err := schema.Resolve(header, []string{opts.StatusField})
	if err != nil {
		return res, err
	}
	rows, err := g.tbl.ReadAll(ctx)
	if err != nil {
		return res, fmt.Errorf("read table: %w", err)
	}

	statusCol, _ := mapping.Column(opts.StatusField)
	failCol, _ := mapping.Column(FieldFailCount)
	now := lease.Format(g.clock.Now())
	lastErr := truncate(opts.LastError, MaxLastErrorLen)

	for i := 1; i < len(rows) && len(res.Visited) < opts.MaxRows; i++ {
		raw := rows[i]
		row := i + 1
		if strings.ToUpper(strings.TrimSpace(table.Cell(raw, statusCol))) != input {
			continue
		}

		fails, _ := strconv.Atoi(strings.TrimSpace(table.Cell(raw, failCol)))
		updates := map[string]string{FieldLastAttemptTS: now}
		if lastErr != "" {
			updates[FieldLastError] = lastErr
		}
		if fails < opts.MaxFails {
			fails++
			updates[FieldFailCount] = strconv.Itoa(fails)
		}
		dead := fails >= opts.MaxFails
		if dead {
			updates[opts.StatusField] = string(opts.DeadStatus)
		}

		if _, err := g.writer.Apply(ctx, row, mapping, updates); err != nil {
			return res, err
		}
		res.Visited = append(res.Visited, row)
		if dead {
			res.DeadLettered = append(res.DeadLettered, row)
			g.logger.Warn("row dead-lettered",
				logpkg.Int("row", row),
				logpkg.Int("fail_count", fails),
				logpkg.Str("status", string(opts.DeadStatus)))
		}
	}

	g.logger.Info("dead-letter pass finished",
		logpkg.Str("input_status", input),
		logpkg.Int("visited", len(res.Visited)),
		logpkg.Int("dead_lettered", len(res.DeadLettered)))
	return res, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
