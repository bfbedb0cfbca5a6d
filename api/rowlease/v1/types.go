// Package rowleasev1 holds the JSON request and response bodies of the
// rowlease HTTP API. The server and the CLI's HTTP transport share them.
package rowleasev1

import "github.com/rzbill/rowlease/internal/item"

// ClaimRequest is the body of POST /v1/claim.
type ClaimRequest struct {
	Wanted  string `json:"wanted"`
	Claimed string `json:"claimed"`
	// Worker overrides the server's worker id.
	Worker string `json:"worker,omitempty"`
	// MaxLeaseAge is a positive Go duration string such as "30m". Omitted
	// means the server's configured lease age.
	MaxLeaseAge string   `json:"max_lease_age,omitempty"`
	Filter      string   `json:"filter,omitempty"`
	Required    []string `json:"required,omitempty"`
}

// ItemResponse wraps a row snapshot. Item is null when nothing matched.
type ItemResponse struct {
	Item *item.WorkItem `json:"item"`
}

// UpdateRequest is the body of POST /v1/rows/{row}.
type UpdateRequest struct {
	Fields map[string]string `json:"fields"`
}

// StatusRequest is the body of the release and complete endpoints.
type StatusRequest struct {
	Status string            `json:"status,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// FailRequest is the body of POST /v1/rows/{row}/fail.
type FailRequest struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error"`
}

// AppendRequest is the body of POST /v1/rows.
type AppendRequest struct {
	Fields map[string]string `json:"fields"`
}

// AppendResponse reports the appended row number.
type AppendResponse struct {
	Row int `json:"row"`
}

// HeaderRequest is the body of PUT /v1/header.
type HeaderRequest struct {
	Headers []string `json:"headers"`
}

// SchemaResponse maps field names to 1-based columns.
type SchemaResponse struct {
	Fields map[string]int `json:"fields"`
}

// DeadLetterRequest is the body of POST /v1/deadletter. Zero values fall
// back to the server's configuration.
type DeadLetterRequest struct {
	Input     string `json:"input"`
	Dead      string `json:"dead,omitempty"`
	MaxFails  int    `json:"max_fails,omitempty"`
	MaxRows   int    `json:"max_rows,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// DeadLetterResponse lists the rows a run touched.
type DeadLetterResponse struct {
	Visited      []int `json:"visited"`
	DeadLettered []int `json:"dead_lettered"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	// Code is a stable machine-readable kind: schema, status, range,
	// invalid or internal.
	Code string `json:"code"`
}
