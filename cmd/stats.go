package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sledworks/catalog-cli/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show processing statistics for reconciled products",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open product store")
		}
		defer st.Close()

		stats, err := st.GetProcessingStatistics(ctx)
		if err != nil {
			return eris.Wrap(err, "get statistics")
		}
		printStats(cmd, stats)
		return nil
	},
}

func printStats(cmd *cobra.Command, stats *store.Statistics) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "total products:     %d\n", stats.TotalProducts)
	fmt.Fprintf(w, "high confidence:    %d\n", stats.HighConfidence)
	fmt.Fprintf(w, "medium confidence:  %d\n", stats.MediumConfidence)
	fmt.Fprintf(w, "low confidence:     %d\n", stats.LowConfidence)
	fmt.Fprintf(w, "average confidence: %.3f\n", stats.AverageConfidence)
	fmt.Fprintf(w, "audit entries:      %d\n", stats.AuditEntries)
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
