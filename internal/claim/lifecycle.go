package claim

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rzbill/rowlease/internal/item"
	"github.com/rzbill/rowlease/internal/lease"
	"github.com/rzbill/rowlease/internal/schema"
	"github.com/rzbill/rowlease/internal/table"
	logpkg "github.com/rzbill/rowlease/pkg/log"
)

// MaxNoteLen caps the notes cell written by Fail, in characters.
const MaxNoteLen = 45000

// Note fields Fail appends to, in order of preference.
var noteFields = []string{"ai_notes", "notes"}

// session is one header read resolved for lifecycle writes.
type session struct {
	header  []string
	mapping schema.Mapping
}

func (c *Coordinator) open(ctx context.Context, required ...string) (session, error) {
	header, err := c.tbl.ReadHeader(ctx)
	if err != nil {
		return session{}, fmt.Errorf("read header: %w", err)
	}
	m, err := schema.Resolve(header, schema.ClaimFields(required, c.statusField))
	if err != nil {
		return session{}, err
	}
	return session{header: header, mapping: m}, nil
}

func checkDataRow(row int) error {
	if row < 2 {
		return fmt.Errorf("%w: row %d is not a data row", table.ErrRowOutOfRange, row)
	}
	return nil
}

func (c *Coordinator) snapshot(ctx context.Context, s session, row int) (*item.WorkItem, error) {
	raw, err := c.tbl.ReadRow(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("read row %d: %w", row, err)
	}
	w := item.FromRow(s.header, raw, row, c.statusField)
	return &w, nil
}

// Schema resolves the header row against the status and lease fields.
func (c *Coordinator) Schema(ctx context.Context) (schema.Mapping, error) {
	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	return s.mapping, nil
}

// Row returns a snapshot of one data row.
func (c *Coordinator) Row(ctx context.Context, row int) (*item.WorkItem, error) {
	if err := checkDataRow(row); err != nil {
		return nil, err
	}
	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	return c.snapshot(ctx, s, row)
}

// Update writes field updates to row through the writer and returns the
// fresh row. A status update must be a known status. The lease fields are
// owned by claims and cannot be updated directly.
func (c *Coordinator) Update(ctx context.Context, row int, updates map[string]string) (*item.WorkItem, error) {
	for _, f := range []string{schema.FieldProcessingLock, schema.FieldLockedBy} {
		if _, ok := updates[f]; ok {
			return nil, fmt.Errorf("%w: %s is set only by a claim", ErrInvalidRequest, f)
		}
	}
	return c.apply(ctx, row, updates)
}

func (c *Coordinator) apply(ctx context.Context, row int, updates map[string]string) (*item.WorkItem, error) {
	if err := checkDataRow(row); err != nil {
		return nil, err
	}
	if st, ok := updates[c.statusField]; ok {
		if err := item.Validate(item.Status(st)); err != nil {
			return nil, err
		}
	}
	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := c.writer.Apply(ctx, row, s.mapping, updates); err != nil {
		return nil, err
	}
	return c.snapshot(ctx, s, row)
}

// Release hands a claimed row back: status goes to status (READY when
// empty) and the lease is cleared.
func (c *Coordinator) Release(ctx context.Context, row int, status item.Status) (*item.WorkItem, error) {
	if status == "" {
		status = item.StatusReady
	}
	if err := item.Validate(status); err != nil {
		return nil, err
	}
	w, err := c.apply(ctx, row, clearLease(c.statusField, status, nil))
	if err != nil {
		return nil, err
	}
	c.logger.Debug("released row", logpkg.Int("row", row), logpkg.Str("status", string(status)))
	return w, nil
}

// Complete writes fields and the terminal status in one request and clears
// the lease. The status and lease fields in fields are overridden.
func (c *Coordinator) Complete(ctx context.Context, row int, status item.Status, fields map[string]string) (*item.WorkItem, error) {
	if err := item.Validate(status); err != nil {
		return nil, err
	}
	w, err := c.apply(ctx, row, clearLease(c.statusField, status, fields))
	if err != nil {
		return nil, err
	}
	c.logger.Debug("completed row", logpkg.Int("row", row), logpkg.Str("status", string(status)))
	return w, nil
}

// Fail sets status (ERROR when empty), clears the lease and appends
// "[ERROR <ts>] msg" to the ai_notes or notes field when the table has
// one. The notes cell is truncated to MaxNoteLen characters.
func (c *Coordinator) Fail(ctx context.Context, row int, status item.Status, msg string) (*item.WorkItem, error) {
	if status == "" {
		status = item.StatusError
	}
	if err := item.Validate(status); err != nil {
		return nil, err
	}
	if err := checkDataRow(row); err != nil {
		return nil, err
	}
	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	updates := clearLease(c.statusField, status, nil)
	if field, ok := noteField(s.mapping); ok && msg != "" {
		cur, err := c.snapshot(ctx, s, row)
		if err != nil {
			return nil, err
		}
		updates[field] = AppendNote(cur.Get(field), fmt.Sprintf("[ERROR %s] %s", lease.Format(c.clock.Now()), msg))
	}
	if _, err := c.writer.Apply(ctx, row, s.mapping, updates); err != nil {
		return nil, err
	}
	c.logger.Info("failed row",
		logpkg.Int("row", row),
		logpkg.Str("status", string(status)),
		logpkg.Str("reason", msg))
	return c.snapshot(ctx, s, row)
}

// Find returns the first data row whose field equals value, or nil when no
// row matches.
func (c *Coordinator) Find(ctx context.Context, field, value string) (*item.WorkItem, error) {
	if field == "" {
		return nil, errors.New("find: field is required")
	}
	s, err := c.open(ctx, field)
	if err != nil {
		return nil, err
	}
	col, _ := s.mapping.Column(field)
	rows, err := c.tbl.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	for i := 1; i < len(rows); i++ {
		if table.Cell(rows[i], col) == value {
			w := item.FromRow(s.header, rows[i], i+1, c.statusField)
			return &w, nil
		}
	}
	return nil, nil
}

func clearLease(statusField string, status item.Status, fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields)+3)
	for k, v := range fields {
		out[k] = v
	}
	out[statusField] = string(status)
	out[schema.FieldProcessingLock] = ""
	out[schema.FieldLockedBy] = ""
	return out
}

func noteField(m schema.Mapping) (string, bool) {
	for _, f := range noteFields {
		if m.Has(f) {
			return f, true
		}
	}
	return "", false
}

// AppendNote appends line to existing on a new line and truncates the
// result to MaxNoteLen characters.
func AppendNote(existing, line string) string {
	out := line
	if existing != "" {
		out = existing + "\n" + line
	}
	if utf8.RuneCountInString(out) <= MaxNoteLen {
		return out
	}
	return string([]rune(out)[:MaxNoteLen])
}
