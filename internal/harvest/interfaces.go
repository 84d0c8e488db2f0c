package harvest

import (
	"context"
	"time"

	"github.com/JakeFAU/search-harvester/internal/ledger"
)

// Searcher issues one search request. Implementations return ErrQuotaExceeded,
// ErrTransportFailure, or ErrMalformedResponse (wrapped) on failure.
type Searcher interface {
	Search(ctx context.Context, query string, page, perPage int) (SearchResult, error)
}

// QuotaGate blocks until the named resource class has budget left.
type QuotaGate interface {
	Acquire(ctx context.Context, resource string) error
}

// FragmentSink persists one page of results and returns where it went.
type FragmentSink interface {
	WriteFragment(ctx context.Context, fragment Fragment) (string, error)
}

// ProgressLog appends entries to the progress ledger.
type ProgressLog interface {
	Append(ctx context.Context, entry ledger.Entry) error
}

// BlockedLog records windows abandoned after transport failures.
type BlockedLog interface {
	Record(ctx context.Context, query string, page int, cause error) error
}

// ResumeState answers what a previous run already finished.
type ResumeState interface {
	Done(key ledger.Key) bool
	NextPage(key ledger.Key) int
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}
