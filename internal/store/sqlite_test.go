package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sledworks/catalog-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleProduct() *model.ProductSpecification {
	return &model.ProductSpecification{
		ModelCode:   "MXZ-X-600R",
		BaseModelID: "mxz-x-600r",
		Brand:       "Ski-Doo",
		ModelName:   "MXZ X 600R E-TEC",
		ModelYear:   2025,
		Price:       13499,
		Specifications: map[string]string{
			"displacement": "600",
			"starter":      "electric",
		},
		SpringOptions: []model.SpringOption{
			{Code: "TRK137", Type: "track", Value: "137 Ice Ripper XT"},
		},
		OverallConfidence: 0.92,
		ConfidenceLevel:   model.ConfidenceHigh,
		PipelineResults: []model.PipelineStageResult{
			{Stage: "base_model_matching", Success: true, Confidence: 0.92},
		},
	}
}

func TestSQLiteStore_CreateAndGetProduct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateProduct(ctx, sampleProduct(), "pipeline")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := s.GetByModelCode(ctx, "MXZ-X-600R", 2025)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ProductID)
	assert.Equal(t, "mxz-x-600r", got.BaseModelID)
	assert.Equal(t, "600", got.Specifications["displacement"])
	require.Len(t, got.SpringOptions, 1)
	assert.Equal(t, "TRK137", got.SpringOptions[0].Code)
	require.Len(t, got.PipelineResults, 1)
	assert.Equal(t, model.ConfidenceHigh, got.ConfidenceLevel)
	assert.Equal(t, "pipeline", got.ProcessedBy)
}

func TestSQLiteStore_GetByModelCode_NotFound(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetByModelCode(context.Background(), "UNKNOWN", 2025)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_ListProducts_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1 := sampleProduct()
	_, err := s.CreateProduct(ctx, p1, "pipeline")
	require.NoError(t, err)

	p2 := sampleProduct()
	p2.ModelCode = "RAVE-RE-850"
	p2.Brand = "Lynx"
	p2.OverallConfidence = 0.6
	p2.ConfidenceLevel = model.ConfidenceLow
	_, err = s.CreateProduct(ctx, p2, "pipeline")
	require.NoError(t, err)

	byBrand, err := s.ListProducts(ctx, ProductFilter{Brand: "Lynx"})
	require.NoError(t, err)
	require.Len(t, byBrand, 1)
	assert.Equal(t, "RAVE-RE-850", byBrand[0].ModelCode)

	byLevel, err := s.ListProducts(ctx, ProductFilter{ConfidenceLevel: model.ConfidenceHigh})
	require.NoError(t, err)
	require.Len(t, byLevel, 1)
	assert.Equal(t, "MXZ-X-600R", byLevel[0].ModelCode)

	all, err := s.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteStore_AuditRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	entries := []model.AuditEntry{
		{
			ProductID:        "p1",
			Stage:            "base_model_matching",
			Action:           "matched",
			AfterData:        map[string]any{"base_model_id": "mxz-x-600r"},
			ConfidenceChange: 0.92,
			UserID:           "pipeline",
			Timestamp:        base,
		},
		{
			ProductID:        "p1",
			Stage:            "final_validation",
			Action:           "validated",
			BeforeData:       map[string]any{"overall_confidence": 0.92},
			AfterData:        map[string]any{"overall_confidence": 0.9},
			ConfidenceChange: -0.02,
			UserID:           "pipeline",
			Timestamp:        base.Add(time.Second),
		},
	}
	require.NoError(t, s.AppendAuditEntries(ctx, entries))

	got, err := s.GetAuditTrail(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "base_model_matching", got[0].Stage)
	assert.Equal(t, "final_validation", got[1].Stage)
	assert.Equal(t, "mxz-x-600r", got[0].AfterData["base_model_id"])
	assert.InDelta(t, -0.02, got[1].ConfidenceChange, 1e-9)
}

func TestSQLiteStore_Statistics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	high := sampleProduct()
	_, err := s.CreateProduct(ctx, high, "pipeline")
	require.NoError(t, err)

	low := sampleProduct()
	low.ModelCode = "UNKNOWN-1"
	low.OverallConfidence = 0.4
	low.ConfidenceLevel = model.ConfidenceLow
	_, err = s.CreateProduct(ctx, low, "pipeline")
	require.NoError(t, err)

	require.NoError(t, s.AppendAuditEntries(ctx, []model.AuditEntry{
		{ProductID: "p1", Stage: "s", Action: "a"},
	}))

	stats, err := s.GetProcessingStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalProducts)
	assert.Equal(t, 1, stats.HighConfidence)
	assert.Equal(t, 1, stats.LowConfidence)
	assert.Equal(t, 0, stats.MediumConfidence)
	assert.InDelta(t, 0.66, stats.AverageConfidence, 0.01)
	assert.Equal(t, 1, stats.AuditEntries)
}
