package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/rowlease/internal/claim"
	cfgpkg "github.com/rzbill/rowlease/internal/config"
	"github.com/rzbill/rowlease/internal/deadletter"
	"github.com/rzbill/rowlease/internal/item"
	"github.com/rzbill/rowlease/internal/lease"
	"github.com/rzbill/rowlease/internal/observability"
	"github.com/rzbill/rowlease/internal/schema"
	pebblestore "github.com/rzbill/rowlease/internal/storage/pebble"
	"github.com/rzbill/rowlease/internal/table"
	"github.com/rzbill/rowlease/internal/table/memtable"
	"github.com/rzbill/rowlease/internal/table/pebbletable"
	"github.com/rzbill/rowlease/internal/table/sheets"
	"github.com/rzbill/rowlease/internal/writer"
	logpkg "github.com/rzbill/rowlease/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Logger defaults to a no-op logger.
	Logger logpkg.Logger
	// Metrics defaults to a fresh registry.
	Metrics *observability.Metrics
	// Clock defaults to the system clock.
	Clock lease.Clock
	// Table, when set, is used instead of the configured backend.
	Table table.Table
}

// Runtime is one open table session with its claim components.
type Runtime struct {
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *observability.Metrics
	db      *pebblestore.DB
	tbl     *observability.TracedTable
	writer  *writer.Writer
	coord   *claim.Coordinator
	guard   *deadletter.Guard
}

// Open builds the backend named by the config and the components on top
// of it.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, s := range cfg.Claim.Statuses {
		item.Register(item.Status(s))
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	clock := opts.Clock
	if clock == nil {
		clock = lease.SystemClock{}
	}
	strategy, err := claim.ParseStrategy(cfg.Claim.Strategy)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{config: cfg, logger: logger, metrics: metrics}
	backend := opts.Table
	if backend == nil {
		backend, err = rt.openBackend(ctx)
		if err != nil {
			return nil, err
		}
	}
	if strategy == claim.CompareAndSwap {
		if _, ok := backend.(table.Swapper); !ok {
			_ = rt.Close()
			return nil, fmt.Errorf("%s backend cannot run the cas claim strategy: %w", cfg.Backend, writer.ErrNoSwap)
		}
	}

	rt.tbl = observability.TraceTable(backend, cfg.Backend)
	rt.writer = writer.New(rt.tbl, writer.WithLogger(logger), writer.WithObserver(metrics))
	rt.coord, err = claim.New(rt.tbl,
		claim.WithClock(clock),
		claim.WithLogger(logger),
		claim.WithMetrics(metrics),
		claim.WithStrategy(strategy),
		claim.WithWriter(rt.writer),
		claim.WithStatusField(cfg.Claim.StatusField),
	)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.guard = deadletter.New(rt.tbl, rt.writer, clock, logger)

	logger.Debug("runtime open",
		logpkg.Str("backend", cfg.Backend),
		logpkg.Str("worker", cfg.Claim.WorkerID),
		logpkg.Str("strategy", strategy.String()))
	return rt, nil
}

func (r *Runtime) openBackend(ctx context.Context) (table.Table, error) {
	cfg := r.config
	switch cfg.Backend {
	case cfgpkg.BackendMemory:
		return memtable.New(nil), nil
	case cfgpkg.BackendPebble:
		fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
		if err != nil {
			return nil, err
		}
		db, err := pebblestore.Open(pebblestore.Options{DataDir: cfg.DataDir, Fsync: fsync, Metrics: r.metrics})
		if err != nil {
			return nil, err
		}
		r.db = db
		if err := r.metrics.Registry().Register(observability.NewPebbleCollector(db)); err != nil {
			r.logger.Warn("pebble collector not registered", logpkg.Err(err))
		}
		return pebbletable.Open(db, cfg.Table)
	case cfgpkg.BackendSheets:
		return sheets.Open(ctx, sheets.Options{
			SpreadsheetID:   cfg.Sheets.SpreadsheetID,
			Sheet:           cfg.Sheets.Sheet,
			CredentialsJSON: []byte(cfg.Sheets.CredentialsJSON),
			CredentialsFile: cfg.Sheets.CredentialsFile,
		})
	default:
		return nil, fmt.Errorf("%w %q", cfgpkg.ErrUnknownBackend, cfg.Backend)
	}
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// CheckHealth reads the header row.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.tbl == nil {
		return errors.New("table not open")
	}
	_, err := r.tbl.ReadHeader(ctx)
	return err
}

// ClaimRequest builds a request carrying the configured worker id, status
// field and lease age.
func (r *Runtime) ClaimRequest(wanted, claimed item.Status) claim.Request {
	return claim.Request{
		StatusField:   r.config.Claim.StatusField,
		WantedStatus:  wanted,
		ClaimedStatus: claimed,
		WorkerID:      r.config.Claim.WorkerID,
		MaxLeaseAge:   r.config.Claim.MaxLeaseAge.Duration,
	}
}

// DeadLetterOptions builds guard options from the config for input.
func (r *Runtime) DeadLetterOptions(input item.Status, lastError string) deadletter.Options {
	return deadletter.Options{
		InputStatus: input,
		DeadStatus:  item.Status(r.config.DeadLetter.Status),
		StatusField: r.config.Claim.StatusField,
		MaxFails:    r.config.DeadLetter.MaxFails,
		MaxRows:     r.config.DeadLetter.MaxRows,
		LastError:   lastError,
	}
}

// InitHeader writes the header row. It refuses to drop the status or lease
// fields.
func (r *Runtime) InitHeader(ctx context.Context, headers []string) error {
	if _, err := schema.Resolve(headers, schema.ClaimFields(nil, r.config.Claim.StatusField)); err != nil {
		return err
	}
	if err := r.tbl.WriteHeader(ctx, headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// Append adds a row built from fields in header order and returns its row
// number. Unknown fields are ignored. A status, when given, must be known.
func (r *Runtime) Append(ctx context.Context, fields map[string]string) (int, error) {
	if st, ok := fields[r.config.Claim.StatusField]; ok {
		if err := item.Validate(item.Status(st)); err != nil {
			return 0, err
		}
	}
	header, err := r.tbl.ReadHeader(ctx)
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	m, err := schema.Resolve(header, schema.ClaimFields(nil, r.config.Claim.StatusField))
	if err != nil {
		return 0, err
	}
	cells, _ := writer.Cells(m, fields)
	values := table.Apply(nil, cells)
	row, err := r.tbl.AppendRow(ctx, values)
	if err != nil {
		return 0, fmt.Errorf("append row: %w", err)
	}
	r.logger.Debug("appended row", logpkg.Int("row", row))
	return row, nil
}

// Coordinator returns the claim coordinator.
func (r *Runtime) Coordinator() *claim.Coordinator { return r.coord }

// Writer returns the batch writer.
func (r *Runtime) Writer() *writer.Writer { return r.writer }

// DeadLetter returns the dead-letter guard.
func (r *Runtime) DeadLetter() *deadletter.Guard { return r.guard }

// Table returns the traced table handle.
func (r *Runtime) Table() table.Table { return r.tbl }

// Metrics returns the metrics sink.
func (r *Runtime) Metrics() *observability.Metrics { return r.metrics }

// DB exposes the pebble database when the pebble backend is in use.
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
