package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sledworks/catalog-cli/internal/model"
)

var (
	reconcileCSVPath string
	reconcileLimit   int
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile catalog line items against the base model catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		entries, err := readEntriesCSV(reconcileCSVPath)
		if err != nil {
			return err
		}
		if reconcileLimit > 0 && len(entries) > reconcileLimit {
			entries = entries[:reconcileLimit]
		}
		if len(entries) == 0 {
			zap.L().Info("no entries to reconcile")
			return nil
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		result := e.Pipeline.ProcessBatch(ctx, entries)
		printBatchSummary(cmd.OutOrStdout(), result)
		return nil
	},
}

// readEntriesCSV decodes catalog entries from a CSV with a header row.
func readEntriesCSV(path string) ([]model.CatalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open entries csv")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, eris.Wrap(err, "read csv header")
	}

	var entries []model.CatalogEntry
	for {
		var entry model.CatalogEntry
		if err := dec.Decode(&entry); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrap(err, "decode csv row")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func printBatchSummary(w io.Writer, result *model.BatchResult) {
	fmt.Fprintf(w, "processed:    %d\n", result.Processed)
	fmt.Fprintf(w, "successful:   %d\n", result.Successful)
	fmt.Fprintf(w, "needs review: %d\n", result.NeedsReview)
	fmt.Fprintf(w, "failed:       %d\n", result.Failed)
	fmt.Fprintf(w, "elapsed:      %s\n", result.Elapsed.Round(1e6))
	if result.Usage.Total() > 0 {
		fmt.Fprintf(w, "tokens:       %d (est. $%.4f)\n", result.Usage.Total(), result.Usage.CostUSD)
	}
	for _, item := range result.Items {
		if item.Product == nil {
			continue
		}
		fmt.Fprintf(w, "  %-30s %-12s %.2f %s\n",
			item.Entry.ModelCode, item.Status, item.Product.OverallConfidence, item.Product.BaseModelID)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  error: %s: %s\n", e.ModelCode, e.Error)
	}
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileCSVPath, "csv", "", "path to line-item CSV (required)")
	reconcileCmd.Flags().IntVar(&reconcileLimit, "limit", 0, "max entries to process (0 = all)")
	_ = reconcileCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(reconcileCmd)
}
