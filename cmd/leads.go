package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/store"
)

var (
	leadsStatus  string
	leadsSegment string
	leadsLimit   int
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List leads in the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		leads, err := env.store.ListLeads(ctx, store.LeadFilter{
			Status:  model.LeadStatus(leadsStatus),
			Segment: leadsSegment,
			Limit:   leadsLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LEAD ID\tNAME\tSEGMENT\tREVIEWS\tRATING\tSTATUS")
		for _, lead := range leads {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f\t%s\n",
				lead.LeadID, lead.Name, lead.Segment, lead.ReviewCount, lead.Rating, lead.Status)
		}
		return w.Flush()
	},
}

func init() {
	leadsCmd.Flags().StringVar(&leadsStatus, "status", "", "filter by status")
	leadsCmd.Flags().StringVar(&leadsSegment, "segment", "", "filter by segment")
	leadsCmd.Flags().IntVar(&leadsLimit, "limit", 100, "maximum rows")
	rootCmd.AddCommand(leadsCmd)
}
