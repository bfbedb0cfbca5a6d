package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	rowscmd "github.com/rzbill/rowlease/internal/cmd/rows"
	transports "github.com/rzbill/rowlease/internal/cmd/rows/transports"
	serverrun "github.com/rzbill/rowlease/internal/cmd/server"
	cfgpkg "github.com/rzbill/rowlease/internal/config"
	"github.com/rzbill/rowlease/internal/runtime"
	logpkg "github.com/rzbill/rowlease/pkg/log"
)

// newRootCommand wires the global flags, the row commands and serve.
func newRootCommand(logger logpkg.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rowlease",
		Short:         "Lease-based row claiming over a shared table",
		Long:          "rowlease lets independent workers claim rows of a shared table (Pebble, Google Sheets or memory) by status, with time-bounded leases that expire when a worker dies.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.String("config", os.Getenv("ROWLEASE_CONFIG"), "Config file (.yaml, .yml or .json)")
	pf.String("server", os.Getenv("ROWLEASE_SERVER"), "Use a running rowlease server at this URL instead of opening the table")
	pf.String("backend", "", "Table backend: memory|pebble|sheets")
	pf.String("data-dir", "", "Pebble data directory")
	pf.String("table", "", "Table name inside the Pebble store")
	pf.String("sheet", "", "Sheet tab for the sheets backend")
	pf.String("worker", "", "Worker id written to locked_by")
	pf.String("strategy", "", "Claim strategy: optimistic|cas")

	open := func(ctx context.Context) (transports.RowsTransport, error) {
		if server, _ := rootCmd.PersistentFlags().GetString("server"); server != "" {
			return transports.NewHTTPTransport(server, nil), nil
		}
		cfg, err := resolveConfig(rootCmd)
		if err != nil {
			return nil, err
		}
		rt, err := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
		if err != nil {
			return nil, err
		}
		return transports.NewLocalTransport(rt), nil
	}
	rootCmd.AddCommand(rowscmd.NewCommands(open)...)
	rootCmd.AddCommand(newServeCommand(rootCmd))
	return rootCmd
}

// newServeCommand constructs the `serve` subcommand.
func newServeCommand(rootCmd *cobra.Command) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Serve the HTTP API and Prometheus metrics",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(rootCmd)
			if err != nil {
				return err
			}
			httpAddr, _ := cmd.Flags().GetString("http")
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
				cfg.Log.Level = lvl
			}
			if f, _ := cmd.Flags().GetString("log-format"); f != "" {
				cfg.Log.Format = f
			}
			if err := serverrun.Run(cmd.Context(), serverrun.Options{Config: cfg, HTTPAddr: httpAddr}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serveCmd.Flags().String("http", "", "HTTP listen address (default from config, :8080)")
	serveCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	serveCmd.Flags().String("log-format", "", "Log format: text|json")
	return serveCmd
}

// resolveConfig layers defaults, the config file, ROWLEASE_* variables and
// finally explicit flags.
func resolveConfig(rootCmd *cobra.Command) (cfgpkg.Config, error) {
	pf := rootCmd.PersistentFlags()
	path, _ := pf.GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	if err := cfgpkg.FromEnv(&cfg); err != nil {
		return cfgpkg.Config{}, err
	}

	overrides := []struct {
		flag string
		dst  *string
	}{
		{"backend", &cfg.Backend},
		{"data-dir", &cfg.DataDir},
		{"table", &cfg.Table},
		{"sheet", &cfg.Sheets.Sheet},
		{"worker", &cfg.Claim.WorkerID},
		{"strategy", &cfg.Claim.Strategy},
	}
	for _, o := range overrides {
		if v, _ := pf.GetString(o.flag); v != "" {
			*o.dst = v
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfgpkg.Config{}, err
	}
	return cfg, nil
}
