package observability

import (
	"context"
	"errors"

	"github.com/rzbill/rowlease/internal/table"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnsupported is returned by TracedTable for optional operations the
// wrapped table does not implement.
var ErrUnsupported = errors.New("operation not supported by table backend")

// TracedTable wraps a table.Table with one span per round-trip.
type TracedTable struct {
	inner   table.Table
	backend string
}

var (
	_ table.Table        = (*TracedTable)(nil)
	_ table.Appender     = (*TracedTable)(nil)
	_ table.HeaderWriter = (*TracedTable)(nil)
	_ table.Swapper      = (*TracedTable)(nil)
)

// TraceTable wraps inner. backend labels the spans (memory, pebble, sheets).
// Callers that care whether the backend can swap must check inner, since
// the wrapper always advertises every optional interface.
func TraceTable(inner table.Table, backend string) *TracedTable {
	return &TracedTable{inner: inner, backend: backend}
}

// Unwrap returns the wrapped table.
func (t *TracedTable) Unwrap() table.Table { return t.inner }

func (t *TracedTable) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("rowlease.backend", t.backend))
	return StartSpan(ctx, "table."+op, attrs...)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *TracedTable) ReadHeader(ctx context.Context) ([]string, error) {
	ctx, span := t.start(ctx, "ReadHeader")
	out, err := t.inner.ReadHeader(ctx)
	end(span, err)
	return out, err
}

func (t *TracedTable) ReadAll(ctx context.Context) ([][]string, error) {
	ctx, span := t.start(ctx, "ReadAll")
	out, err := t.inner.ReadAll(ctx)
	span.SetAttributes(attribute.Int("rowlease.rows", len(out)))
	end(span, err)
	return out, err
}

func (t *TracedTable) ReadRow(ctx context.Context, row int) ([]string, error) {
	ctx, span := t.start(ctx, "ReadRow", attribute.Int("rowlease.row", row))
	out, err := t.inner.ReadRow(ctx, row)
	end(span, err)
	return out, err
}

func (t *TracedTable) WriteCells(ctx context.Context, row int, cells map[int]string) error {
	ctx, span := t.start(ctx, "WriteCells",
		attribute.Int("rowlease.row", row),
		attribute.Int("rowlease.cells", len(cells)))
	err := t.inner.WriteCells(ctx, row, cells)
	end(span, err)
	return err
}

func (t *TracedTable) SwapCells(ctx context.Context, row int, expect, cells map[int]string) (bool, error) {
	ctx, span := t.start(ctx, "SwapCells",
		attribute.Int("rowlease.row", row),
		attribute.Int("rowlease.cells", len(cells)))
	sw, ok := t.inner.(table.Swapper)
	if !ok {
		end(span, ErrUnsupported)
		return false, ErrUnsupported
	}
	swapped, err := sw.SwapCells(ctx, row, expect, cells)
	span.SetAttributes(attribute.Bool("rowlease.swapped", swapped))
	end(span, err)
	return swapped, err
}

func (t *TracedTable) AppendRow(ctx context.Context, values []string) (int, error) {
	ctx, span := t.start(ctx, "AppendRow")
	ap, ok := t.inner.(table.Appender)
	if !ok {
		end(span, ErrUnsupported)
		return 0, ErrUnsupported
	}
	row, err := ap.AppendRow(ctx, values)
	span.SetAttributes(attribute.Int("rowlease.row", row))
	end(span, err)
	return row, err
}

func (t *TracedTable) WriteHeader(ctx context.Context, headers []string) error {
	ctx, span := t.start(ctx, "WriteHeader")
	hw, ok := t.inner.(table.HeaderWriter)
	if !ok {
		end(span, ErrUnsupported)
		return ErrUnsupported
	}
	err := hw.WriteHeader(ctx, headers)
	end(span, err)
	return err
}
