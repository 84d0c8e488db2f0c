package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/search-harvester/internal/harvest"
)

const shutdownTimeout = 10 * time.Second

// newCrawlCmd creates the 'crawl' subcommand, which walks every push day of
// the configured range for one language.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Harvests search results for one language",
		Long: `Walks every push day from --start-date to --end-date (default today),
partitions each day's query by creation date until every window fits under the
search result cap, and pages every window into fragment files. Progress is
recorded in the language's ledger; --resume continues an interrupted run.`,
		RunE: runCrawlCommand,
	}
	cmd.Flags().String("token-key", "", "key of the API token in the tokens file")
	cmd.Flags().String("language", "", "repository language to harvest")
	cmd.Flags().Int("min-stars", 0, "minimum star count")
	cmd.Flags().Int("year", 0, "restrict repository creation to one calendar year")
	cmd.Flags().String("start-date", "", "first push day (YYYY-MM-DD)")
	cmd.Flags().String("end-date", "", "last push day (YYYY-MM-DD); defaults to today")
	cmd.Flags().Bool("resume", false, "continue from the existing progress ledger")
	cmd.Flags().Bool("status", false, "serve run status over HTTP while crawling")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	hc, err := cfg.Harvest(time.Now())
	if err != nil {
		return fmt.Errorf("crawl config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := appInstance.NewRun(ctx, hc, cfg.Partition.Resume)
	if err != nil {
		return fmt.Errorf("init crawl: %w", err)
	}
	defer run.Close()

	runCtx, finish := context.WithCancel(ctx)
	defer finish()
	g, gctx := errgroup.WithContext(runCtx)

	var snap harvest.StatsSnapshot
	g.Go(func() error {
		defer finish()
		var err error
		snap, err = run.Engine.Run(gctx)
		return err
	})

	if cfg.Status.Enabled {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Status.Port),
			Handler:           run.Status.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("status server started", zap.Int("port", cfg.Status.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	fields := []zap.Field{
		zap.String("language", hc.Language),
		zap.Int64("days", snap.Days),
		zap.Int64("windows_probed", snap.WindowsProbed),
		zap.Int64("leaves", snap.Leaves),
		zap.Int64("splits", snap.Splits),
		zap.Int64("fragments", snap.Fragments),
		zap.Int64("records", snap.Records),
		zap.Int64("blocked", snap.Blocked),
		zap.Int64("quota_waits", snap.QuotaWaits),
	}
	switch {
	case err == nil:
		logger.Info("crawl command finished", fields...)
		return nil
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		logger.Warn("crawl interrupted; rerun with --resume to continue", fields...)
		return nil
	default:
		return fmt.Errorf("run crawl: %w", err)
	}
}
