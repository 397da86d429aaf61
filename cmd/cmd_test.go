//go:build !integration

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sledworks/catalog-cli/internal/model"
)

func TestCommandMetadata(t *testing.T) {
	assert.Equal(t, "catalog-cli", rootCmd.Use)

	for _, c := range []struct {
		use  string
		flag string
	}{
		{"reconcile", "csv"},
		{"extract", "pages"},
		{"import", "xlsx"},
		{"serve", "port"},
	} {
		cmd, _, err := rootCmd.Find([]string{c.use})
		require.NoError(t, err, c.use)
		assert.NotEmpty(t, cmd.Short)
		assert.NotNil(t, cmd.Flags().Lookup(c.flag), c.use)
	}

	statsCmdFound, _, err := rootCmd.Find([]string{"stats"})
	require.NoError(t, err)
	assert.Equal(t, "stats", statsCmdFound.Use)
}

func TestReadEntriesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.csv")
	csv := "model_code,brand,price,model_year\nSummit X 850 154,Ski-Doo,16499,2026\nMXZ X 600 137,Ski-Doo,13199,2026\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	entries, err := readEntriesCSV(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Summit X 850 154", entries[0].ModelCode)
	assert.Equal(t, 16499.0, entries[0].Price)
	assert.Equal(t, 2026, entries[1].ModelYear)
}

func TestReadEntriesCSV_MissingFile(t *testing.T) {
	_, err := readEntriesCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestReadPagesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.jsonl")
	jsonl := `{"document_id":"pricelist-2026","page":1,"text":"model_code,brand\nA,Ski-Doo\n"}
{"document_id":"pricelist-2026","page":2,"text":""}
`
	require.NoError(t, os.WriteFile(path, []byte(jsonl), 0644))

	pages, err := readPagesJSONL(path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "pricelist-2026", pages[0].DocumentID)
	assert.Equal(t, 1, pages[0].Number)
	assert.Contains(t, pages[0].Text, "model_code")
}

func TestReadPagesJSONL_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0644))

	_, err := readPagesJSONL(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestPrintBatchSummary(t *testing.T) {
	result := &model.BatchResult{
		Processed:   2,
		Successful:  1,
		NeedsReview: 0,
		Failed:      1,
		Elapsed:     1500 * time.Millisecond,
		Items: []model.ItemResult{
			{
				Entry:  model.CatalogEntry{ModelCode: "Summit X 850 154"},
				Status: model.StatusSuccess,
				Product: &model.ProductSpecification{
					BaseModelID:       "summit-x-850",
					OverallConfidence: 0.95,
				},
			},
			{
				Entry:  model.CatalogEntry{ModelCode: "BOOM"},
				Status: model.StatusFailed,
				Error:  "panic: matcher blew up",
			},
		},
		Errors: []model.ItemError{{ModelCode: "BOOM", Error: "panic: matcher blew up"}},
	}

	var buf bytes.Buffer
	printBatchSummary(&buf, result)

	out := buf.String()
	assert.Contains(t, out, "processed:    2")
	assert.Contains(t, out, "successful:   1")
	assert.Contains(t, out, "failed:       1")
	assert.Contains(t, out, "summit-x-850")
	assert.Contains(t, out, "error: BOOM")
}
