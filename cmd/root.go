// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/app"
	"github.com/JakeFAU/search-harvester/internal/config"
	"github.com/JakeFAU/search-harvester/internal/dataset"
	"github.com/JakeFAU/search-harvester/internal/harvest"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	RunID() string
	NewRun(ctx context.Context, hc harvest.Config, resume bool) (*app.Run, error)
	Dedupe(ctx context.Context, language string, since time.Time) (dataset.DedupeResult, error)
	Shard(ctx context.Context, language string, size int, excludePath string) ([]dataset.Manifest, error)
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.New(ctx, cfg)
}

// flagKeys maps command flags onto configuration keys. Only flags the
// running command defines are bound.
var flagKeys = map[string]string{
	"token-key":  "github.token_key",
	"language":   "search.language",
	"min-stars":  "search.min_stars",
	"year":       "partition.year",
	"start-date": "partition.start_date",
	"end-date":   "partition.end_date",
	"resume":     "partition.resume",
	"status":     "status.enabled",
	"since":      "dataset.since",
	"shard-size": "dataset.shard_size",
	"exclude":    "dataset.exclude_path",
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Exhaustively harvests repository metadata from the GitHub search API.",
		Long: `harvester walks the GitHub repository search one push day at a time,
splitting every query window until it fits under the API's result cap, and
writes each page of results to disk with a resumable progress ledger.
The collected fragments can then be deduplicated and split into shards.`,
		SilenceUsage: true,

		// Builds the application after flags are parsed and injects it into the
		// context for the subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(cmd, v); err != nil {
				return err
			}
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config: %w", err)
				}
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newDedupeCmd())
	cmd.AddCommand(newShardCmd())

	return cmd
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func requireLanguage(cfg config.Config) (string, error) {
	if cfg.Search.Language == "" {
		return "", errors.New("search.language is required (--language)")
	}
	return cfg.Search.Language, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
