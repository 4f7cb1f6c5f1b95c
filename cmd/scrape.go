package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scrapeLeadIDs []string

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape queued leads and extract business signals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.scrapeOrchestrator().Run(ctx, scrapeLeadIDs)
		if err != nil {
			return err
		}

		zap.L().Info("scrape run finished",
			zap.String("run_id", run.RunID),
			zap.String("status", string(run.Status)),
			zap.Int("total", run.Total),
			zap.Int("succeeded", run.Succeeded),
			zap.Int("failed", run.Failed),
		)
		return nil
	},
}

func init() {
	scrapeCmd.Flags().StringSliceVar(&scrapeLeadIDs, "lead-ids", nil, "restrict the batch to these lead IDs")
	rootCmd.AddCommand(scrapeCmd)
}
