package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newShardCmd creates the 'shard' subcommand.
func newShardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shard",
		Short: "Splits a language's deduplicated dataset into numbered shards",
		Long: `Drops repositories listed in the --exclude file, then writes the canonical
dataset as fixed-size part files. Shards are uploaded to the configured blob
store and announced on the configured topic when those are enabled.`,
		RunE: runShardCommand,
	}
	cmd.Flags().String("language", "", "repository language to shard")
	cmd.Flags().Int("shard-size", 0, "records per shard")
	cmd.Flags().String("exclude", "", "CSV file whose id column lists repositories to drop")
	return cmd
}

func runShardCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	language, err := requireLanguage(cfg)
	if err != nil {
		return err
	}

	manifests, err := appInstance.Shard(cmd.Context(), language, cfg.Dataset.ShardSize, cfg.Dataset.ExcludePath)
	if err != nil {
		return fmt.Errorf("shard %s: %w", language, err)
	}
	logger := appInstance.Logger()
	records := 0
	for _, m := range manifests {
		records += m.Records
		logger.Debug("shard written",
			zap.Int("part", m.Part),
			zap.String("path", m.Path),
			zap.Int("records", m.Records),
			zap.String("sha256", m.SHA256),
			zap.String("uri", m.URI),
		)
	}
	logger.Info("shard command finished",
		zap.String("language", language),
		zap.Int("shards", len(manifests)),
		zap.Int("records", records),
	)
	return nil
}
