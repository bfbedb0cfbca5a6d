// Package config provides loading and environment overlay for rowlease
// configuration. It exposes a Default() baseline that a JSON or YAML file
// and ROWLEASE_* variables refine.
//
// Example:
//
//	cfg, err := config.Load("/etc/rowlease.yaml")
//	if err != nil { /* handle */ }
//	if err := config.FromEnv(&cfg); err != nil { /* handle */ }
//	if err := cfg.Validate(); err != nil { /* handle */ }
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close()
package config
