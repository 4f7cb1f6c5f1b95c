package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scoreLeadIDs []string

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score scraped leads with the classifier",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		o, err := env.scoreOrchestrator()
		if err != nil {
			return err
		}

		run, err := o.Run(ctx, scoreLeadIDs)
		if err != nil {
			return err
		}

		zap.L().Info("score run finished",
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
	scoreCmd.Flags().StringSliceVar(&scoreLeadIDs, "lead-ids", nil, "restrict the batch to these lead IDs")
	rootCmd.AddCommand(scoreCmd)
}
