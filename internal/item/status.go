package item

import (
	"errors"
	"fmt"
	"sync"
)

// Status is the lifecycle state stored in a row's status field.
type Status string

// Recognized statuses. Producers create rows in NEW or READY(_TO_POST); a
// claim moves them to an in-flight marker; the worker's completion write
// moves them to a terminal state.
const (
	StatusNew         Status = "NEW"
	StatusReady       Status = "READY"
	StatusReadyToPost Status = "READY_TO_POST"

	StatusProcessing Status = "PROCESSING"
	StatusPosting    Status = "POSTING"

	StatusScored    Status = "SCORED"
	StatusPublished Status = "PUBLISHED"
	StatusPosted    Status = "POSTED"
	StatusFailed    Status = "FAILED"
	StatusError     Status = "ERROR"
	StatusErrorHard Status = "ERROR_HARD"
)

// ErrUnknownStatus is returned when a write would store an empty or
// unrecognized status.
var ErrUnknownStatus = errors.New("unknown status")

var (
	knownMu sync.RWMutex
	known   = map[Status]struct{}{
		StatusNew: {}, StatusReady: {}, StatusReadyToPost: {},
		StatusProcessing: {}, StatusPosting: {},
		StatusScored: {}, StatusPublished: {}, StatusPosted: {},
		StatusFailed: {}, StatusError: {}, StatusErrorHard: {},
	}
)

// Known reports whether s is one of the recognized statuses.
func Known(s Status) bool {
	knownMu.RLock()
	defer knownMu.RUnlock()
	_, ok := known[s]
	return ok
}

// Validate returns ErrUnknownStatus (wrapped with the value) unless s is known.
func Validate(s Status) error {
	if Known(s) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
}

// Register adds deployment-specific statuses to the recognized set. It is
// meant to be called during process start-up, before any claim runs.
func Register(statuses ...Status) {
	knownMu.Lock()
	defer knownMu.Unlock()
	for _, s := range statuses {
		if s != "" {
			known[s] = struct{}{}
		}
	}
}
