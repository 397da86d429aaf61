package main

import (
	"bufio"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sledworks/catalog-cli/internal/ingest"
	"github.com/sledworks/catalog-cli/internal/registry"
)

var (
	extractPagesPath    string
	extractRegistryPath string
	extractDelimiter    string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract catalog entries from document pages into the registry",
	Long:  "Reads pages from a JSONL file (one {document_id, page, text} object per line), parses the line items on each page, and records progress in the resumable registry. Re-running skips pages that are already done.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pages, err := readPagesJSONL(extractPagesPath)
		if err != nil {
			return err
		}

		regPath := extractRegistryPath
		if regPath == "" {
			regPath = cfg.Registry.Path
		}
		reg, err := registry.Load(regPath)
		if err != nil {
			return eris.Wrap(err, "load registry")
		}

		parser := &ingest.CSVParser{}
		if extractDelimiter != "" {
			parser.Comma = rune(extractDelimiter[0])
		}

		runner := ingest.NewRunner(reg, parser)
		stats, _, err := runner.Run(ctx, ingest.NewSliceSource(pages))
		if err != nil {
			return eris.Wrap(err, "extract")
		}

		zap.L().Info("extract complete",
			zap.Int("pages_seen", stats.PagesSeen),
			zap.Int("pages_skipped", stats.PagesSkipped),
			zap.Int("pages_failed", stats.PagesFailed),
			zap.Int("entries", stats.Entries),
			zap.Int("registry_articles", len(reg.Articles())),
		)
		return nil
	},
}

// pageLine is one record of the pages JSONL file.
type pageLine struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
	Text       string `json:"text"`
}

func readPagesJSONL(path string) ([]ingest.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open pages file")
	}
	defer f.Close()

	var pages []ingest.Page
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var pl pageLine
		if err := json.Unmarshal(raw, &pl); err != nil {
			return nil, eris.Wrapf(err, "pages file line %d", line)
		}
		pages = append(pages, ingest.Page{
			DocumentID: pl.DocumentID,
			Number:     pl.Page,
			Text:       pl.Text,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "read pages file")
	}
	return pages, nil
}

func init() {
	extractCmd.Flags().StringVar(&extractPagesPath, "pages", "", "path to pages JSONL (required)")
	extractCmd.Flags().StringVar(&extractRegistryPath, "registry", "", "registry path (default from config)")
	extractCmd.Flags().StringVar(&extractDelimiter, "delimiter", "", "page CSV delimiter (default ',')")
	_ = extractCmd.MarkFlagRequired("pages")
	rootCmd.AddCommand(extractCmd)
}
