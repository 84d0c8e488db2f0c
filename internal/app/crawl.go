package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/api"
	"github.com/JakeFAU/search-harvester/internal/dataset"
	"github.com/JakeFAU/search-harvester/internal/githubapi"
	"github.com/JakeFAU/search-harvester/internal/harvest"
	"github.com/JakeFAU/search-harvester/internal/ledger"
	"github.com/JakeFAU/search-harvester/internal/metrics"
	"github.com/JakeFAU/search-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/search-harvester/internal/quota"
	"github.com/JakeFAU/search-harvester/internal/storage/postgres"
	"github.com/JakeFAU/search-harvester/internal/transport"
)

// Run is one wired crawl: the engine, the files it owns, and the status
// server that reports on it.
type Run struct {
	Engine *harvest.Engine
	Status *api.Server
	Layout dataset.Layout

	ledger *ledger.Ledger
	mirror *postgres.LedgerMirror
	logger *zap.Logger
}

// NewRun wires a crawl of hc. With resume set, the language's existing
// ledger is trimmed and reused; otherwise it is replaced.
func (a *App) NewRun(ctx context.Context, hc harvest.Config, resume bool) (*Run, error) {
	metrics.Init()
	logger := a.logger.With(zap.String("language", hc.Language))

	token, err := a.cfg.ResolveToken()
	if err != nil {
		return nil, err
	}
	client := a.githubClient(token, logger)

	stats := harvest.NewStats()
	gate := quota.New(client, a.clock,
		quota.WithSafetyMargin(a.cfg.SafetyMargin()),
		quota.WithWaitObserver(func(string, time.Duration) {
			stats.RecordQuotaWait()
		}),
		quota.WithLogger(logger.Named("quota")),
	)

	r := &Run{Layout: a.Layout(hc.Language), logger: logger}
	lcfg := ledger.Config{
		PageSize: hc.PageSize,
		MaxPages: hc.MaxPages,
		Logger:   logger.Named("ledger"),
	}
	if a.cfg.Ledger.PostgresDSN != "" {
		mirror, err := postgres.NewLedgerMirror(ctx, postgres.LedgerMirrorConfig{
			DSN:      a.cfg.Ledger.PostgresDSN,
			Table:    a.cfg.Ledger.Table,
			RunID:    a.runID,
			MaxConns: a.cfg.Ledger.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init ledger mirror: %w", err)
		}
		r.mirror = mirror
		if err := mirror.EnsureSchema(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("ensure ledger schema: %w", err)
		}
		lcfg.Mirror = mirror
	}

	deps := harvest.Deps{
		Searcher: client,
		Gate:     gate,
		Clock:    a.clock,
		Stats:    stats,
		Logger:   logger.Named("harvest"),
	}
	if resume {
		l, state, err := ledger.Resume(r.Layout.LedgerPath(), lcfg)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("resume ledger: %w", err)
		}
		r.ledger = l
		deps.Resume = state
		deps.ResumeDay = state.ResumeDay()
	} else {
		l, err := ledger.Create(r.Layout.LedgerPath(), lcfg)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("create ledger: %w", err)
		}
		r.ledger = l
	}
	deps.Progress = r.ledger

	blocked, err := ledger.OpenBlocked(r.Layout.BlockedPath(), a.clock.Now)
	if err != nil {
		r.Close()
		return nil, err
	}
	deps.Blocked = blocked

	sink, err := dataset.NewFragmentStore(r.Layout, logger.Named("fragments"))
	if err != nil {
		r.Close()
		return nil, err
	}
	deps.Sink = sink

	engine, err := harvest.NewEngine(hc, deps)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.Engine = engine

	progress := api.NewProgressHandler(
		api.RunInfo{RunID: a.runID, Language: hc.Language, StartedAt: a.startedAt},
		stats,
		api.LedgerFile(r.Layout.LedgerPath()),
		logger.Named("api"),
	)
	r.Status = api.NewServer(progress, logger.Named("http"))
	return r, nil
}

func (a *App) githubClient(token string, logger *zap.Logger) *githubapi.Client {
	getter := transport.New(transport.Config{
		Timeout:    a.cfg.HTTPTimeout(),
		MaxRetries: a.cfg.HTTP.MaxRetries,
		BaseDelay:  time.Duration(a.cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		MaxDelay:   time.Duration(a.cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		UserAgent:  a.cfg.HTTP.UserAgent,
	}, a.httpClient, logger.Named("transport"))
	pacer := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.HTTP.RequestsPerSecond,
		DefaultBurst: 1,
	})
	return githubapi.New(getter, pacer, a.cfg.GitHub.BaseURL, token, logger.Named("github"))
}

// Close releases the ledger and the optional mirror.
func (r *Run) Close() {
	if r.ledger != nil {
		if err := r.ledger.Close(); err != nil {
			r.logger.Warn("error closing ledger", zap.Error(err))
		}
		r.ledger = nil
	}
	if r.mirror != nil {
		r.mirror.Close()
		r.mirror = nil
	}
}

// Dedupe merges the fragments of a language into its canonical dataset.
func (a *App) Dedupe(ctx context.Context, language string, since time.Time) (dataset.DedupeResult, error) {
	return dataset.Dedupe(ctx, a.Layout(language), since, a.logger.Named("dedupe").With(zap.String("language", language)))
}

// Shard splits the canonical dataset of a language and exports the shards.
func (a *App) Shard(ctx context.Context, language string, size int, excludePath string) ([]dataset.Manifest, error) {
	return a.Sharder().Shard(ctx, a.Layout(language), dataset.ShardOptions{
		Language:    language,
		Size:        size,
		ExcludePath: excludePath,
		RunID:       a.runID,
	})
}
