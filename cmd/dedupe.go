package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newDedupeCmd creates the 'dedupe' subcommand.
func newDedupeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Merges a language's fragments into one deduplicated dataset",
		Long: `Concatenates every fragment of the language in crawl order and keeps the
last observation of each repository. With --since, the canonical dataset only
holds repositories updated on or after that day; the full merge is kept beside it.`,
		RunE: runDedupeCommand,
	}
	cmd.Flags().String("language", "", "repository language to merge")
	cmd.Flags().String("since", "", "keep repositories updated on or after this day (YYYY-MM-DD)")
	return cmd
}

func runDedupeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	language, err := requireLanguage(cfg)
	if err != nil {
		return err
	}
	since, err := cfg.Since()
	if err != nil {
		return err
	}

	res, err := appInstance.Dedupe(cmd.Context(), language, since)
	if err != nil {
		return fmt.Errorf("dedupe %s: %w", language, err)
	}
	appInstance.Logger().Info("dedupe command finished",
		zap.String("language", language),
		zap.Int("fragments", res.Fragments),
		zap.Int("input", res.Input),
		zap.Int("unique", res.Unique),
		zap.Int("written", res.Written),
		zap.String("path", res.Path),
	)
	return nil
}
