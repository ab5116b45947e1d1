package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch-crawler/internal/server"
)

// newSearchCmd creates the 'search' subcommand, which runs every configured
// topic against every configured site.
func newSearchCmd() *cobra.Command {
	var (
		topics []string
		output string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Runs the topic search across all configured sites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			cfg := e.cfg
			if len(topics) > 0 {
				cfg.Crawler.Topics = topics
			}
			if output != "" {
				cfg.Output.Path = output
			}

			app, err := server.Build(cmd.Context(), cfg, e.logger)
			if err != nil {
				return fmt.Errorf("build run: %w", err)
			}
			defer app.Close()

			summary, err := app.Run(cmd.Context())
			e.logger.Info("search command finished",
				zap.String("run_id", summary.RunID),
				zap.Int("pairs", summary.Pairs),
				zap.Int("failed_pairs", summary.FailedPairs),
				zap.Int("records", summary.Records),
				zap.String("output", cfg.Output.Path),
			)
			if err != nil {
				return fmt.Errorf("write records: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&topics, "topic", nil, "topic to search for (repeatable); replaces crawler.topics")
	cmd.Flags().StringVar(&output, "output", "", "CSV file to append to; replaces output.path")
	return cmd
}
