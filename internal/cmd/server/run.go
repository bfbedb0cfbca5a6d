package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/rzbill/rowlease/internal/config"
	"github.com/rzbill/rowlease/internal/observability"
	"github.com/rzbill/rowlease/internal/runtime"
	httpserver "github.com/rzbill/rowlease/internal/server/http"
	logpkg "github.com/rzbill/rowlease/pkg/log"
)

// ServiceName identifies the process in traces.
const ServiceName = "rowlease"

type Options struct {
	Config cfgpkg.Config
	// HTTPAddr overrides Config.HTTP.Addr when set.
	HTTPAddr string
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
}

// Run opens the configured table, serves the HTTP API and blocks until ctx
// is cancelled or the process receives SIGINT/SIGTERM.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	addr := opts.HTTPAddr
	if addr == "" {
		addr = cfg.HTTP.Addr
	}

	procLogger, err := processLogger(opts.Logger, cfg.Log)
	if err != nil {
		return err
	}
	// Route stdlib logs (Pebble, net/http) through the same logger.
	logpkg.RedirectStdLog(procLogger)

	shutdownTracing, err := observability.InitTracing(sctx, ServiceName, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			procLogger.Warn("tracing shutdown", logpkg.Err(err))
		}
	}()

	rt, err := runtime.Open(sctx, runtime.Options{Config: cfg, Logger: procLogger})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting rowlease server",
		logpkg.Str("http", addr),
		logpkg.Str("backend", cfg.Backend),
		logpkg.Str("table", cfg.Table),
		logpkg.Str("worker", cfg.Claim.WorkerID),
		logpkg.Str("strategy", cfg.Claim.Strategy),
		logpkg.Dur("max_lease_age", cfg.Claim.MaxLeaseAge.Duration),
		logpkg.Str("tracing", cfg.Tracing.Exporter),
	)

	hsrv := httpserver.New(rt, procLogger)

	var (
		wg      sync.WaitGroup
		serveMu sync.Mutex
		serveErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, addr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server stopped", logpkg.Err(err))
			serveMu.Lock()
			serveErr = err
			serveMu.Unlock()
			stop()
		}
	}()

	<-sctx.Done()
	// Stop serving before the runtime closes the store.
	hsrv.Close()
	wg.Wait()
	serveMu.Lock()
	defer serveMu.Unlock()
	return serveErr
}

// processLogger returns override, or a logger built from cfg. An invalid
// level falls back to info with the text formatter.
func processLogger(override logpkg.Logger, cfg logpkg.Config) (logpkg.Logger, error) {
	if override != nil {
		return override, nil
	}
	l, err := logpkg.ApplyConfig(&cfg)
	if err == nil {
		return l, nil
	}
	if _, perr := logpkg.ParseLevel(cfg.Level); perr == nil {
		return nil, err
	}
	return logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel), logpkg.WithFormatter(&logpkg.TextFormatter{})), nil
}
