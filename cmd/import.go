package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/leadfile"
)

var (
	importFilePath string
	importSheet    string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads from an XLSX spreadsheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		leads, err := leadfile.ReadLeads(importFilePath, leadfile.Options{SheetName: importSheet})
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.store.ImportLeads(ctx, leads)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.Int("parsed", len(leads)),
			zap.Int64("upserted", n),
			zap.String("file", importFilePath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to XLSX file (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "sheet name (default: first sheet)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
