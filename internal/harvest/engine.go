package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/ledger"
	"github.com/JakeFAU/search-harvester/internal/metrics"
)

// Deps are the collaborators an Engine drives.
type Deps struct {
	Searcher Searcher
	Gate     QuotaGate
	Sink     FragmentSink
	Progress ProgressLog
	Blocked  BlockedLog
	// Resume and ResumeDay come from ledger.Resume; both are optional.
	Resume    ResumeState
	ResumeDay string
	Clock     Clock
	Stats     *Stats
	Logger    *zap.Logger
}

// Engine walks push days one at a time, partitions each day's window into
// leaves, and pages every leaf into fragments and ledger entries.
type Engine struct {
	cfg         Config
	partitioner *Partitioner
	paginator   *Paginator
	sink        FragmentSink
	progress    ProgressLog
	blocked     BlockedLog
	resume      ResumeState
	resumeDay   string
	clock       Clock
	stats       *Stats
	logger      *zap.Logger
}

// NewEngine validates cfg and wires the partitioner and paginator.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("harvest config: %w", err)
	}
	switch {
	case deps.Searcher == nil:
		return nil, errors.New("searcher is required")
	case deps.Gate == nil:
		return nil, errors.New("quota gate is required")
	case deps.Sink == nil:
		return nil, errors.New("fragment sink is required")
	case deps.Progress == nil:
		return nil, errors.New("progress log is required")
	case deps.Blocked == nil:
		return nil, errors.New("blocked log is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	stats := deps.Stats
	if stats == nil {
		stats = NewStats()
	}

	partitioner := NewPartitioner(
		deps.Searcher,
		deps.Gate,
		NewSplitter(cfg.monthGroups()),
		cfg.WindowCap,
		cfg.MaxQuotaRetries,
		deps.Resume,
		logger.Named("partition"),
	)
	partitioner.stats = stats
	paginator := NewPaginator(
		deps.Searcher,
		deps.Gate,
		cfg.PageSize,
		cfg.MaxPages,
		cfg.WindowCap,
		cfg.MaxQuotaRetries,
		deps.Clock,
		logger.Named("paginate"),
	)

	e := &Engine{
		cfg:         cfg,
		partitioner: partitioner,
		paginator:   paginator,
		sink:        deps.Sink,
		progress:    deps.Progress,
		blocked:     deps.Blocked,
		resume:      deps.Resume,
		resumeDay:   deps.ResumeDay,
		clock:       deps.Clock,
		stats:       stats,
		logger:      logger,
	}
	partitioner.abandon = e.abandon
	return e, nil
}

// Stats exposes the live counters.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// Run crawls every push day from StartDay through EndDay. Days before the
// resume day are skipped. Transport failures abandon the failing window into
// the blocked log; any other failure stops the run.
func (e *Engine) Run(ctx context.Context) (StatsSnapshot, error) {
	e.logger.Info("crawl starting",
		zap.String("language", e.cfg.Language),
		zap.String("start_day", e.cfg.StartDay.Format(DayLayout)),
		zap.String("end_day", e.cfg.EndDay.Format(DayLayout)),
		zap.String("created", e.cfg.baseRange().Qualifier()),
		zap.String("resume_day", e.resumeDay),
	)
	for d := day(e.cfg.StartDay); !d.After(e.cfg.EndDay); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return e.stats.Snapshot(), err
		}
		pushed := d.Format(DayLayout)
		if e.resumeDay != "" && pushed < e.resumeDay {
			e.logger.Debug("day finished by a previous run", zap.String("pushed", pushed))
			continue
		}
		if err := e.crawlDay(ctx, d); err != nil {
			return e.stats.Snapshot(), fmt.Errorf("crawl %s: %w", pushed, err)
		}
		e.stats.addDay()
	}
	snap := e.stats.Snapshot()
	e.logger.Info("crawl finished",
		zap.Int64("days", snap.Days),
		zap.Int64("leaves", snap.Leaves),
		zap.Int64("fragments", snap.Fragments),
		zap.Int64("records", snap.Records),
		zap.Int64("blocked", snap.Blocked),
	)
	return snap, nil
}

func (e *Engine) crawlDay(ctx context.Context, pushed time.Time) error {
	root := Window{
		Base:    BaseFilter(e.cfg.Language, e.cfg.MinStars),
		Created: e.cfg.baseRange(),
		Pushed:  pushed,
	}
	leaves, err := e.partitioner.Plan(ctx, root)
	if err != nil {
		return e.abandon(ctx, err)
	}
	e.stats.addLeaves(len(leaves))
	for _, leaf := range leaves {
		if err := e.crawlLeaf(ctx, leaf); err != nil {
			if err := e.abandon(ctx, err); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) crawlLeaf(ctx context.Context, leaf Leaf) error {
	if leaf.TotalCount == 0 {
		return e.log(ctx, leaf.Window, 0, leaf.TotalCount, leaf.IncompleteResults, leaf.URL)
	}
	start := 1
	if e.resume != nil {
		start = e.resume.NextPage(leaf.Window.LedgerKey())
	}
	if start > 1 {
		e.logger.Info("continuing partially logged window",
			zap.String("window", leaf.Window.Query()),
			zap.Int("page", start),
		)
	}
	for frag, err := range e.paginator.Pages(ctx, leaf, start) {
		if err != nil {
			return err
		}
		path, err := e.sink.WriteFragment(ctx, frag)
		if err != nil {
			return fmt.Errorf("write fragment: %w", err)
		}
		metrics.ObserveFragment(len(frag.Items))
		e.stats.addFragment(len(frag.Items))
		e.logger.Debug("fragment written",
			zap.String("path", path),
			zap.Int("page", frag.Page),
			zap.Int("items", len(frag.Items)),
		)
		if err := e.log(ctx, frag.Window, frag.Page, frag.TotalCount, frag.IncompleteResults, frag.URL); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) log(ctx context.Context, w Window, page, total int, incomplete bool, url string) error {
	entry := ledger.Entry{
		LogDate:           e.clock.Now(),
		Language:          e.cfg.Language,
		Key:               w.LedgerKey(),
		Page:              page,
		TotalCount:        total,
		IncompleteResults: incomplete,
		CompleteQuery:     url,
	}
	if err := e.progress.Append(ctx, entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	metrics.ObserveLedgerEntry()
	return nil
}

// abandon swallows transport failures by recording the window as blocked and
// returns every other error unchanged.
func (e *Engine) abandon(ctx context.Context, err error) error {
	var werr *WindowError
	if !errors.Is(err, ErrTransportFailure) || !errors.As(err, &werr) {
		return err
	}
	e.logger.Warn("abandoning window after transport failure",
		zap.String("window", werr.Window.Query()),
		zap.Int("page", werr.Page),
		zap.Error(err),
	)
	if rerr := e.blocked.Record(ctx, werr.Window.Query(), werr.Page, err); rerr != nil {
		return fmt.Errorf("record blocked window: %w", rerr)
	}
	e.stats.addBlocked()
	return nil
}
