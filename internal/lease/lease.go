// Package lease holds the staleness arithmetic for in-row leases.
//
// A lease is the processing_lock timestamp a claim writes into a row. This
// package only answers "is this lease older than maxAge?"; whether a row has
// a lease at all is the caller's concern.
package lease

import (
	"strings"
	"sync"
	"time"
)

// Layout is the ISO-8601 UTC format written into processing_lock. It keeps
// microseconds so a lease is never aged by truncation.
const Layout = "2006-01-02T15:04:05.000000Z"

// naive layouts carry no zone and are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FakeClock is a settable clock for tests and simulations.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a FakeClock reading t.
func NewFakeClock(t time.Time) *FakeClock { return &FakeClock{now: t.UTC()} }

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// Format renders t as a processing_lock value.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse reads a processing_lock value. RFC3339 values (Z or numeric offset,
// optional fractional seconds) are converted to UTC; values without a zone
// are taken as UTC.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsStale reports whether the lease ts has outlived maxAge at now.
//
// An empty ts is not stale: "no lease" is not "expired lease". A ts that
// does not parse is stale, so a corrupt or hand-edited lock never blocks a
// row forever. A valid ts is stale only when now-ts is strictly greater than
// maxAge.
func IsStale(ts string, maxAge time.Duration, now time.Time) bool {
	if strings.TrimSpace(ts) == "" {
		return false
	}
	t, ok := Parse(ts)
	if !ok {
		return true
	}
	return now.UTC().Sub(t) > maxAge
}

// Corrupt reports whether ts is non-empty but unparsable.
func Corrupt(ts string) bool {
	if strings.TrimSpace(ts) == "" {
		return false
	}
	_, ok := Parse(ts)
	return !ok
}
