package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sledworks/catalog-cli/internal/catalog"
)

var (
	importXLSXPath  string
	importSheetName string
	importSkipRows  int
	importBrand     string
	importYear      int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import base model specifications from an XLSX price catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		models, err := catalog.ImportXLSX(importXLSXPath, catalog.XLSXImportOptions{
			SheetName: importSheetName,
			SkipRows:  importSkipRows,
			Brand:     importBrand,
			ModelYear: importYear,
			Source:    importXLSXPath,
		})
		if err != nil {
			return eris.Wrap(err, "import xlsx")
		}

		cs, err := openCatalog(ctx)
		if err != nil {
			return eris.Wrap(err, "open catalog store")
		}
		defer cs.Close()
		if err := cs.Upsert(ctx, models...); err != nil {
			return eris.Wrap(err, "upsert base models")
		}

		zap.L().Info("import complete",
			zap.Int("base_models", len(models)),
			zap.String("xlsx", importXLSXPath),
			zap.String("brand", importBrand),
			zap.Int("model_year", importYear),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "path to XLSX catalog (required)")
	importCmd.Flags().StringVar(&importSheetName, "sheet", "", "sheet name (default first sheet)")
	importCmd.Flags().IntVar(&importSkipRows, "skip-rows", 1, "header rows to skip")
	importCmd.Flags().StringVar(&importBrand, "brand", "", "brand for imported rows (required)")
	importCmd.Flags().IntVar(&importYear, "year", 0, "model year for imported rows (required)")
	_ = importCmd.MarkFlagRequired("xlsx")
	_ = importCmd.MarkFlagRequired("brand")
	_ = importCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(importCmd)
}
