// Package transports provides pluggable transport implementations for the
// row CLI: in-process over a Runtime, or HTTP against `rowlease serve`.
package transports

import (
	"context"
	"fmt"
	"time"

	rowleasev1 "github.com/rzbill/rowlease/api/rowlease/v1"
	"github.com/rzbill/rowlease/internal/item"
)

// RowsTransport abstracts how the CLI reaches the table.
type RowsTransport interface {
	Claim(ctx context.Context, req rowleasev1.ClaimRequest) (*item.WorkItem, error)
	Row(ctx context.Context, row int) (*item.WorkItem, error)
	Find(ctx context.Context, field, value string) (*item.WorkItem, error)
	Update(ctx context.Context, row int, fields map[string]string) (*item.WorkItem, error)
	Release(ctx context.Context, row int, status string) (*item.WorkItem, error)
	Complete(ctx context.Context, row int, status string, fields map[string]string) (*item.WorkItem, error)
	Fail(ctx context.Context, row int, status, msg string) (*item.WorkItem, error)
	Append(ctx context.Context, fields map[string]string) (int, error)
	InitHeader(ctx context.Context, headers []string) error
	Schema(ctx context.Context) (map[string]int, error)
	DeadLetter(ctx context.Context, req rowleasev1.DeadLetterRequest) (rowleasev1.DeadLetterResponse, error)
	Close() error
}

// APIError is a non-2xx answer from the HTTP API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d (%s): %s", e.Status, e.Code, e.Message)
}

func parseLeaseAge(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("max lease age: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("max lease age must be positive, got %s", d)
	}
	return d, nil
}
