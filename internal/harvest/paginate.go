package harvest

import (
	"context"
	"iter"

	"go.uber.org/zap"
)

// Paginator walks the pages of one accepted leaf.
type Paginator struct {
	search    gatedSearch
	pageSize  int
	maxPages  int
	windowCap int
	clock     Clock
	logger    *zap.Logger
}

// NewPaginator builds a Paginator.
func NewPaginator(
	searcher Searcher,
	gate QuotaGate,
	pageSize int,
	maxPages int,
	windowCap int,
	maxQuotaRetries int,
	clock Clock,
	logger *zap.Logger,
) *Paginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginator{
		search: gatedSearch{
			searcher:   searcher,
			gate:       gate,
			maxRetries: maxQuotaRetries,
			logger:     logger,
		},
		pageSize:  pageSize,
		maxPages:  maxPages,
		windowCap: windowCap,
		clock:     clock,
		logger:    logger,
	}
}

// LastPage is the highest page worth fetching for a window of total results.
func (p *Paginator) LastPage(total int) int {
	pages := (total + p.pageSize - 1) / p.pageSize
	if pages > p.maxPages {
		pages = p.maxPages
	}
	return pages
}

// Pages lazily fetches pages start..LastPage of the leaf. The sequence ends at
// the first empty page, since the API's count can be stale. A fetch error is
// yielded once and ends the sequence; so does a page whose count no longer
// fits the cap. Items are stamped with the observation time.
func (p *Paginator) Pages(ctx context.Context, leaf Leaf, start int) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		if start < 1 {
			start = 1
		}
		total := leaf.TotalCount
		for page := start; page <= p.LastPage(total); page++ {
			res, err := p.search.search(ctx, "page", leaf.Window.Query(), page, p.pageSize)
			if err != nil {
				yield(Fragment{}, &WindowError{Window: leaf.Window, Page: page, Err: err})
				return
			}
			if res.TotalCount > p.windowCap {
				yield(Fragment{}, &PartitionCapacityExceededError{
					Window:     leaf.Window,
					TotalCount: res.TotalCount,
					Cap:        p.windowCap,
				})
				return
			}
			if len(res.Items) == 0 {
				p.logger.Info("empty page ends window",
					zap.String("window", leaf.Window.Query()),
					zap.Int("page", page),
				)
				return
			}
			if res.TotalCount > total {
				total = res.TotalCount
			}
			observed := p.clock.Now()
			for i := range res.Items {
				res.Items[i].ObservedAt = observed
			}
			frag := Fragment{
				Window:            leaf.Window,
				Page:              page,
				TotalCount:        res.TotalCount,
				IncompleteResults: res.IncompleteResults,
				URL:               res.URL,
				Items:             res.Items,
			}
			if !yield(frag, nil) {
				return
			}
		}
	}
}
