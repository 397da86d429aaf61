package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(nil, nil, UpsertConfig{
		Table:        "base_models",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(nil, nil, UpsertConfig{
		Table:        "base_models",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(nil, nil, UpsertConfig{
		Table:   "base_models",
		Columns: []string{"id", "name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestMergeSQL_DefaultsUpdateColsToNonConflict(t *testing.T) {
	sql := mergeSQL(UpsertConfig{
		Table:        "base_models",
		Columns:      []string{"base_model_id", "model_name", "brand"},
		ConflictKeys: []string{"base_model_id"},
	}, "_tmp_upsert_base_models")

	assert.Contains(t, sql, `INSERT INTO "base_models"`)
	assert.Contains(t, sql, `ON CONFLICT ("base_model_id")`)
	assert.Contains(t, sql, `"model_name" = EXCLUDED."model_name"`)
	assert.Contains(t, sql, `"brand" = EXCLUDED."brand"`)
	assert.NotContains(t, sql, `"base_model_id" = EXCLUDED`)
}

func TestMergeSQL_ExplicitUpdateCols(t *testing.T) {
	sql := mergeSQL(UpsertConfig{
		Table:        "base_models",
		Columns:      []string{"base_model_id", "model_name", "extraction_quality"},
		ConflictKeys: []string{"base_model_id"},
		UpdateCols:   []string{"extraction_quality"},
	}, "_tmp_upsert_base_models")

	assert.Contains(t, sql, `"extraction_quality" = EXCLUDED."extraction_quality"`)
	assert.NotContains(t, sql, `"model_name" = EXCLUDED`)
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"catalog.audit_log", `"catalog"."audit_log"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "name", "value"})
	assert.Equal(t, `"id", "name", "value"`, result)
}
