package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sledworks/catalog-cli/internal/model"
)

func newTestCatalog(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore_UpsertAndFind(t *testing.T) {
	s := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx,
		model.BaseModelSpecification{
			BaseModelID: "summit-x-850",
			ModelName:   "Summit X 850 E-TEC",
			Brand:       "Ski-Doo",
			ModelYear:   2026,
			Category:    "deep-snow",
			EngineSpecs: map[string]string{"engine": "850 E-TEC", "cylinders": "2"},
		},
		model.BaseModelSpecification{
			BaseModelID: "rave-re-850",
			ModelName:   "Rave RE 850",
			Brand:       "Lynx",
			ModelYear:   2026,
			Category:    "trail",
		},
	))

	got, err := s.FindMatchingBaseModels(ctx, Filter{Brand: "Ski-Doo", ModelYear: 2026})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "summit-x-850", got[0].BaseModelID)
	assert.Equal(t, map[string]string{"engine": "850 E-TEC", "cylinders": "2"}, got[0].EngineSpecs)
}

func TestSQLiteStore_UpsertReplacesExisting(t *testing.T) {
	s := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, model.BaseModelSpecification{
		BaseModelID: "summit-x-850", ModelName: "Summit X 850", Brand: "Ski-Doo", ModelYear: 2025,
	}))
	require.NoError(t, s.Upsert(ctx, model.BaseModelSpecification{
		BaseModelID: "summit-x-850", ModelName: "Summit X 850 E-TEC", Brand: "Ski-Doo", ModelYear: 2026,
		ExtractionQuality: 0.8,
	}))

	got, err := s.FindMatchingBaseModels(ctx, Filter{BaseModelID: "summit-x-850"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Summit X 850 E-TEC", got[0].ModelName)
	assert.Equal(t, 2026, got[0].ModelYear)
	assert.InDelta(t, 0.8, got[0].ExtractionQuality, 1e-9)
}

func TestSQLiteStore_FindByPattern(t *testing.T) {
	s := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx,
		model.BaseModelSpecification{BaseModelID: "summit-x-850", ModelName: "Summit X 850", Brand: "Ski-Doo", ModelYear: 2026},
		model.BaseModelSpecification{BaseModelID: "mxz-x-600", ModelName: "MXZ X 600R", Brand: "Ski-Doo", ModelYear: 2026},
	))

	got, err := s.FindMatchingBaseModels(ctx, Filter{Pattern: "summit"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "summit-x-850", got[0].BaseModelID)
}

func TestSQLiteStore_BrandFilterIsCaseInsensitive(t *testing.T) {
	s := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, model.BaseModelSpecification{
		BaseModelID: "rave-re-850", ModelName: "Rave RE 850", Brand: "Lynx", ModelYear: 2026,
	}))

	got, err := s.FindMatchingBaseModels(ctx, Filter{Brand: "lynx"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteStore_NoMatches(t *testing.T) {
	s := newTestCatalog(t)

	got, err := s.FindMatchingBaseModels(context.Background(), Filter{Brand: "Polaris"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
