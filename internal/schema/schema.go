// Package schema validates a table's header row and indexes it into a
// field name → 1-based column mapping.
//
// Resolve is pure and holds no cache: callers re-run it every time a table is
// opened, so header drift between runs is always caught.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// System field names every claim-based flow relies on.
const (
	FieldStatus         = "status"
	FieldProcessingLock = "processing_lock"
	FieldLockedBy       = "locked_by"
)

// Error reports every required field missing from a header row.
type Error struct {
	Missing []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("schema: missing required fields: %s", strings.Join(e.Missing, ", "))
}

// Mapping maps a field name to its 1-based column index.
type Mapping map[string]int

// Column returns the 1-based column for name.
func (m Mapping) Column(name string) (int, bool) {
	col, ok := m[name]
	return col, ok
}

// Has reports whether name is present in the header row.
func (m Mapping) Has(name string) bool {
	_, ok := m[name]
	return ok
}

// Names returns the mapped field names in column order.
func (m Mapping) Names() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return m[names[i]] < m[names[j]] })
	return names
}

// Resolve indexes headers and checks that every name in required is present.
// Columns are assigned in header order; blank header cells are skipped and a
// duplicated name keeps its first column. When fields are missing the
// returned *Error lists all of them in the order they were required.
func Resolve(headers []string, required []string) (Mapping, error) {
	m := make(Mapping, len(headers))
	for i, h := range headers {
		if h == "" {
			continue
		}
		if _, dup := m[h]; dup {
			continue
		}
		m[h] = i + 1
	}

	var missing []string
	seen := make(map[string]struct{}, len(required))
	for _, r := range required {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		if !m.Has(r) {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return nil, &Error{Missing: missing}
	}
	return m, nil
}

// ClaimFields returns required extended with the status field and the two
// lease fields, without duplicates, preserving the caller's order first.
func ClaimFields(required []string, statusField string) []string {
	out := make([]string, 0, len(required)+3)
	seen := map[string]struct{}{}
	for _, f := range append(append([]string{}, required...), statusField, FieldProcessingLock, FieldLockedBy) {
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
