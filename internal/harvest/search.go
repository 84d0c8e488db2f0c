package harvest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/metrics"
)

// gatedSearch acquires search quota before every attempt. A quota-exceeded
// answer loops back into the gate, which sleeps until the budget resets.
type gatedSearch struct {
	searcher   Searcher
	gate       QuotaGate
	maxRetries int
	logger     *zap.Logger
}

func (g gatedSearch) search(ctx context.Context, kind, query string, page, perPage int) (SearchResult, error) {
	for attempt := 0; ; attempt++ {
		if err := g.gate.Acquire(ctx, ResourceSearch); err != nil {
			return SearchResult{}, fmt.Errorf("acquire %s quota: %w", ResourceSearch, err)
		}
		metrics.ObserveSearch(kind)
		res, err := g.searcher.Search(ctx, query, page, perPage)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrQuotaExceeded) || attempt >= g.maxRetries {
			return SearchResult{}, err
		}
		g.logger.Warn("search quota exhausted mid-request; waiting on gate",
			zap.String("query", query),
			zap.Int("page", page),
			zap.Int("attempt", attempt+1),
		)
	}
}
