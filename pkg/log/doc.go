// Package log provides rowlease's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Records flow through a slog handler that
// feeds our formatter/outputs pipeline, so slog-aware libraries and our own
// code produce identical lines.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("claim"), log.Str("table", "RAW_DEALS"))
//	l.Info("row claimed", log.Int("row", 7))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config (level, text or json
// format, optional file output, redacted keys and sampling).
//
// # Interop
//
// Libraries that log through the standard library (Pebble does) can be routed
// into a Logger with RedirectStdLog or ToStdLogger.
package log
