package queue

import "errors"

// ErrNotFound indicates no work item matched the requested id.
var ErrNotFound = errors.New("work item not found")

// ErrStale indicates a compare-and-set update matched zero rows because the
// item's stage or status changed underneath the caller. The caller should
// reload the item and re-decide; it must not assume its transition applied.
var ErrStale = errors.New("work item changed concurrently")

// ErrNotCancellable indicates a stop request arrived for an item that is
// already terminal or mid-stage in a state that cannot be stopped.
var ErrNotCancellable = errors.New("work item cannot be cancelled in its current state")
