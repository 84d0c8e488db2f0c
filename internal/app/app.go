// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/clock/system"
	"github.com/JakeFAU/search-harvester/internal/config"
	"github.com/JakeFAU/search-harvester/internal/dataset"
	"github.com/JakeFAU/search-harvester/internal/hash/sha256"
	"github.com/JakeFAU/search-harvester/internal/id/uuid"
	"github.com/JakeFAU/search-harvester/internal/logging"
	memorypublisher "github.com/JakeFAU/search-harvester/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/search-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/search-harvester/internal/storage/gcs"
	"github.com/JakeFAU/search-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/search-harvester/internal/storage/memory"
)

// App holds the shared, long-lived services for one CLI invocation: the
// logger, clock, run id, and the optional shard export and notification sinks.
// Commands build their run-scoped pieces from it.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	clock      *system.Clock
	runID      string
	startedAt  time.Time
	httpClient *http.Client
	blobs      dataset.BlobStore
	publisher  dataset.Publisher
	closers    []func() error
}

// Option customizes App construction.
type Option func(*App)

// WithLogger replaces the configured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(a *App) {
		a.httpClient = client
	}
}

// New creates and initializes an App from configuration. It fails fast if a
// configured sink cannot be initialized.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, clock: system.New()}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		a.logger = logger
	}

	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	a.runID = runID
	if a.startedAt, err = uuid.StartedAt(runID); err != nil {
		a.startedAt = a.clock.Now()
	}
	a.logger = a.logger.With(zap.String("run_id", runID))

	if err := a.initBlobStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.logger.Info("application services initialized",
		zap.String("blob_provider", cfg.Blob.Provider),
		zap.String("pubsub_provider", cfg.PubSub.Provider),
	)
	return a, nil
}

func (a *App) initBlobStore(ctx context.Context) error {
	switch a.cfg.Blob.Provider {
	case "", "none":
	case "memory":
		a.blobs = memorystorage.NewBlobStore()
	case "local":
		store, err := local.New(local.Config{BaseDir: a.cfg.Blob.BaseDir})
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		a.blobs = store
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{
			Bucket:   a.cfg.Blob.GCSBucket,
			Metadata: map[string]string{"run_id": a.runID},
		})
		if err != nil {
			client.Close() //nolint:errcheck,gosec // already failing
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		a.blobs = store
		a.closers = append(a.closers, store.Close)
	default:
		return fmt.Errorf("unknown blob provider: %s", a.cfg.Blob.Provider)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	switch a.cfg.PubSub.Provider {
	case "", "none":
	case "memory":
		a.publisher = memorypublisher.New(map[string]string{"run_id": a.runID})
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(client, map[string]string{"run_id": a.runID})
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
	default:
		return fmt.Errorf("unknown pubsub provider: %s", a.cfg.PubSub.Provider)
	}
	return nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunID identifies this invocation in logs, the ledger mirror, and shard
// notifications.
func (a *App) RunID() string {
	return a.runID
}

// StartedAt is when this invocation began, read from the run id.
func (a *App) StartedAt() time.Time {
	return a.startedAt
}

// BlobStore returns the shard export store, or nil when disabled.
func (a *App) BlobStore() dataset.BlobStore {
	return a.blobs
}

// Publisher returns the shard notification publisher, or nil when disabled.
func (a *App) Publisher() dataset.Publisher {
	return a.publisher
}

// Layout returns the output tree of a language.
func (a *App) Layout(language string) dataset.Layout {
	return dataset.NewLayout(a.cfg.Storage.Root, language)
}

// Sharder builds a sharder wired to the configured export sinks.
func (a *App) Sharder() *dataset.Sharder {
	var opts []dataset.SharderOption
	if a.blobs != nil {
		opts = append(opts, dataset.WithBlobStore(a.blobs, a.cfg.Blob.Prefix))
	}
	if a.publisher != nil {
		opts = append(opts, dataset.WithPublisher(a.publisher, a.cfg.PubSub.TopicName))
	}
	return dataset.NewSharder(sha256.New(), a.logger.Named("shard"), opts...)
}

// Close shuts down every service in the container. It is safe to call more
// than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
	}
}
