package harvest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/metrics"
)

// Partitioner turns a window into leaves whose counts fit the result cap.
type Partitioner struct {
	search   gatedSearch
	splitter Splitter
	cap      int
	resume   ResumeState
	stats    *Stats
	// abandon absorbs a failed child window so its siblings are still
	// planned. It returns the error back when the failure is not recoverable.
	abandon func(context.Context, error) error
	logger  *zap.Logger
}

// NewPartitioner builds a Partitioner. resume may be nil.
func NewPartitioner(
	searcher Searcher,
	gate QuotaGate,
	splitter Splitter,
	windowCap int,
	maxQuotaRetries int,
	resume ResumeState,
	logger *zap.Logger,
) *Partitioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Partitioner{
		search: gatedSearch{
			searcher:   searcher,
			gate:       gate,
			maxRetries: maxQuotaRetries,
			logger:     logger,
		},
		splitter: splitter,
		cap:      windowCap,
		resume:   resume,
		logger:   logger,
	}
}

// Plan probes w and recurses into split children until every leaf fits the
// cap. Leaves come back in ascending creation order. Windows already finished
// in the ledger are skipped without a probe. A month group above the cap
// yields *PartitionCapacityExceededError. A child that fails is handed to the
// abandon hook when one is set, and the remaining children are still planned.
func (p *Partitioner) Plan(ctx context.Context, w Window) ([]Leaf, error) {
	if p.resume != nil && p.resume.Done(w.LedgerKey()) {
		p.logger.Debug("window already complete", zap.String("window", w.Query()))
		return nil, nil
	}

	res, err := p.search.search(ctx, "probe", w.Query(), 1, 1)
	if err != nil {
		return nil, &WindowError{Window: w, Err: fmt.Errorf("probe: %w", err)}
	}
	p.stats.addProbe()
	p.logger.Info("probed window",
		zap.String("window", w.Query()),
		zap.Int("total_count", res.TotalCount),
		zap.Bool("incomplete_results", res.IncompleteResults),
	)
	if res.TotalCount <= p.cap {
		return []Leaf{{
			Window:            w,
			TotalCount:        res.TotalCount,
			IncompleteResults: res.IncompleteResults,
			URL:               res.URL,
		}}, nil
	}

	children := p.splitter.Split(w.Created, w.Pushed)
	if len(children) == 0 {
		p.logger.Error("window exceeds cap at the finest split level",
			zap.String("window", w.Query()),
			zap.Int("total_count", res.TotalCount),
			zap.Int("cap", p.cap),
		)
		return nil, &PartitionCapacityExceededError{Window: w, TotalCount: res.TotalCount, Cap: p.cap}
	}
	if err := CheckPartition(w.Created, children, w.Pushed); err != nil {
		return nil, fmt.Errorf("split %s: %w", w.Created, err)
	}
	metrics.ObserveSplit(w.Created.Level.String())
	p.stats.addSplit()
	p.logger.Info("splitting window",
		zap.String("window", w.Query()),
		zap.Int("total_count", res.TotalCount),
		zap.Int("children", len(children)),
	)

	var leaves []Leaf
	for _, child := range children {
		sub, err := p.Plan(ctx, w.Narrow(child))
		if err != nil {
			if p.abandon == nil {
				return nil, err
			}
			if err := p.abandon(ctx, err); err != nil {
				return nil, err
			}
			continue
		}
		leaves = append(leaves, sub...)
	}
	return leaves, nil
}

// WindowError ties a failure to the window being processed.
type WindowError struct {
	Window Window
	Page   int
	Err    error
}

func (e *WindowError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("window %q page %d: %v", e.Window.Query(), e.Page, e.Err)
	}
	return fmt.Sprintf("window %q: %v", e.Window.Query(), e.Err)
}

func (e *WindowError) Unwrap() error {
	return e.Err
}
