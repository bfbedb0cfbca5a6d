// Package item models one data row of the shared table as a typed record.
package item

import (
	"time"

	"github.com/rzbill/rowlease/internal/lease"
	"github.com/rzbill/rowlease/internal/schema"
)

// WorkItem is a point-in-time snapshot of one data row. The core never
// mutates a snapshot in place or writes it back; updates go through the
// batch writer.
type WorkItem struct {
	// Row is the 1-based row number; row 1 is the header row.
	Row int `json:"row"`

	Status         Status `json:"status"`
	ProcessingLock string `json:"processing_lock"`
	LockedBy       string `json:"locked_by"`

	// Fields holds every header name → cell value, including the system
	// fields above. Missing trailing cells read as "".
	Fields map[string]string `json:"fields"`
}

// FromRow builds a snapshot of raw (which may be shorter than headers) at
// position row, reading the status from statusField.
func FromRow(headers []string, raw []string, row int, statusField string) WorkItem {
	fields := make(map[string]string, len(headers))
	for i, h := range headers {
		if h == "" {
			continue
		}
		if _, dup := fields[h]; dup {
			continue
		}
		v := ""
		if i < len(raw) {
			v = raw[i]
		}
		fields[h] = v
	}
	if statusField == "" {
		statusField = schema.FieldStatus
	}
	return WorkItem{
		Row:            row,
		Status:         Status(fields[statusField]),
		ProcessingLock: fields[schema.FieldProcessingLock],
		LockedBy:       fields[schema.FieldLockedBy],
		Fields:         fields,
	}
}

// Get returns the value of field name, or "" when the header lacks it.
func (w WorkItem) Get(name string) string {
	return w.Fields[name]
}

// Lookup returns the value of field name and whether the header has it.
func (w WorkItem) Lookup(name string) (string, bool) {
	v, ok := w.Fields[name]
	return v, ok
}

// Claimed reports whether the row currently carries a lease timestamp.
func (w WorkItem) Claimed() bool {
	return w.ProcessingLock != ""
}

// Lease parses the lease timestamp. ok is false when the row has no lease
// or the value does not parse.
func (w WorkItem) Lease() (t time.Time, ok bool) {
	return lease.Parse(w.ProcessingLock)
}

// Clone returns an independent copy of w.
func (w WorkItem) Clone() WorkItem {
	c := w
	c.Fields = make(map[string]string, len(w.Fields))
	for k, v := range w.Fields {
		c.Fields[k] = v
	}
	return c
}
