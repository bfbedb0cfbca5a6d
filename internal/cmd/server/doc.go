// Package serverrun exposes the Run entrypoint behind `rowlease serve`: it
// builds the process logger and tracer, opens the configured table and
// serves the HTTP API until shutdown.
//
// Example:
//
//	cfg := config.Default()
//	cfg.Backend = config.BackendMemory
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg, HTTPAddr: ":8080"})
package serverrun
