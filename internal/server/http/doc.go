// Package httpserver provides the JSON REST facade over a rowlease Runtime
// so that workers written in any language can claim and update rows.
//
// Routes:
//
//	GET  /v1/healthz                 header row readable
//	GET  /v1/schema                  field name to column
//	PUT  /v1/header                  write the header row
//	POST /v1/claim                   claim the first eligible row
//	GET  /v1/rows?field=&value=      find a row by key
//	POST /v1/rows                    append a row
//	GET  /v1/rows/{row}              read one row
//	POST /v1/rows/{row}              write fields through the batch writer
//	POST /v1/rows/{row}/release      hand a row back
//	POST /v1/rows/{row}/complete     terminal status and result fields
//	POST /v1/rows/{row}/fail         error status and a note
//	POST /v1/deadletter              one dead-letter pass
//	GET  /metrics                    Prometheus exposition
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
