package harvest

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded is returned by a Searcher when the API reports an exhausted
	// budget. The engine recovers by re-acquiring the quota gate.
	ErrQuotaExceeded = errors.New("search quota exceeded")
	// ErrTransportFailure marks a request that failed at the network level after
	// the transport exhausted its retries.
	ErrTransportFailure = errors.New("transport failure")
	// ErrMalformedResponse marks a body that is neither a count/items payload nor
	// a recognized API error. It aborts the run.
	ErrMalformedResponse = errors.New("malformed search response")
)

// PartitionCapacityExceededError reports a window that still exceeds the result
// cap at the finest split level. The run aborts and an operator has to choose a
// different partition dimension.
type PartitionCapacityExceededError struct {
	Window     Window
	TotalCount int
	Cap        int
}

func (e *PartitionCapacityExceededError) Error() string {
	return fmt.Sprintf("window %q has %d results, above the cap of %d at level %s",
		e.Window.Query(), e.TotalCount, e.Cap, e.Window.Created.Level)
}
