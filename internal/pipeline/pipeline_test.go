package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sledworks/catalog-cli/internal/catalog"
	"github.com/sledworks/catalog-cli/internal/matcher"
	"github.com/sledworks/catalog-cli/internal/model"
	"github.com/sledworks/catalog-cli/internal/store"
	"github.com/sledworks/catalog-cli/internal/validate"
)

func testCatalog() *catalog.MemoryStore {
	cs := catalog.NewMemoryStore()
	cs.Add(model.BaseModelSpecification{
		BaseModelID: "summit-x-850",
		ModelName:   "Summit X",
		Brand:       "Ski-Doo",
		ModelYear:   2026,
		Category:    "deep-snow",
		EngineSpecs: map[string]string{
			"engine":       "850 E-TEC",
			"displacement": "850",
			"cylinders":    "2",
		},
		ExtractionQuality: 1.0,
	})
	cs.Add(model.BaseModelSpecification{
		BaseModelID: "mxz-x-600",
		ModelName:   "MXZ X",
		Brand:       "Ski-Doo",
		ModelYear:   2026,
		Category:    "trail",
		EngineSpecs: map[string]string{
			"engine":       "600R E-TEC",
			"displacement": "600",
		},
		ExtractionQuality: 1.0,
	})
	return cs
}

func summitEntry() model.CatalogEntry {
	return model.CatalogEntry{
		ModelCode: "Summit X 850 154",
		Brand:     "Ski-Doo",
		Price:     16499,
		ModelYear: 2026,
	}
}

// stubMatcher returns canned results keyed by model code and can panic on
// demand to exercise batch isolation.
type stubMatcher struct {
	results map[string]model.MatchResult
	panicOn string
}

func (s *stubMatcher) Match(_ context.Context, entry model.CatalogEntry) (model.MatchResult, error) {
	if entry.ModelCode == s.panicOn {
		panic("matcher blew up on " + entry.ModelCode)
	}
	if r, ok := s.results[entry.ModelCode]; ok {
		return r, nil
	}
	return model.FailedMatch("no stub result"), nil
}

type stubFallback struct {
	result model.MatchResult
	calls  int
}

func (s *stubFallback) Match(context.Context, model.CatalogEntry, string) model.MatchResult {
	s.calls++
	return s.result
}

type stubUsage struct{ usage model.TokenUsage }

func (s *stubUsage) Usage() model.TokenUsage { return s.usage }

// failingStore fails every write; reads are unused by the pipeline.
type failingStore struct {
	mu      sync.Mutex
	creates int
}

func (f *failingStore) CreateProduct(context.Context, *model.ProductSpecification, string) (string, error) {
	f.mu.Lock()
	f.creates++
	f.mu.Unlock()
	return "", errors.New("disk full")
}

func (f *failingStore) GetByModelCode(context.Context, string, int) (*model.ProductSpecification, error) {
	return nil, nil
}

func (f *failingStore) ListProducts(context.Context, store.ProductFilter) ([]model.ProductSpecification, error) {
	return nil, nil
}

func (f *failingStore) AppendAuditEntries(context.Context, []model.AuditEntry) error { return nil }

func (f *failingStore) GetAuditTrail(context.Context, string) ([]model.AuditEntry, error) {
	return nil, nil
}

func (f *failingStore) GetProcessingStatistics(context.Context) (*store.Statistics, error) {
	return nil, nil
}

func (f *failingStore) Migrate(context.Context) error { return nil }
func (f *failingStore) Close() error                  { return nil }

func structuredOnly(cs *catalog.MemoryStore) *Pipeline {
	return New(DefaultConfig(), cs, matcher.New(cs, nil), nil, validate.New(cs, validate.Vocabulary{}), nil, nil, nil)
}

func TestReconcile_StructuredMatchFlowsThroughAllStages(t *testing.T) {
	cs := testCatalog()
	p := structuredOnly(cs)

	product, err := p.Reconcile(context.Background(), model.CatalogEntry{
		ModelCode: "Summit X 850",
		Brand:     "Ski-Doo",
		Price:     16499,
		ModelYear: 2026,
	})
	require.NoError(t, err)
	require.NotNil(t, product)

	assert.Equal(t, "summit-x-850", product.BaseModelID)
	assert.Equal(t, "Summit X", product.ModelName)

	// Inherited from the base model, then overlaid with code-derived values.
	assert.Equal(t, "850 E-TEC", product.Specifications["engine"])
	assert.Equal(t, "850", product.Specifications["displacement"])
	assert.Equal(t, "deep-snow", product.Specifications["category"])
	assert.Empty(t, product.SpringOptions)

	require.Len(t, product.PipelineResults, 5)
	wantOrder := []string{
		StageBaseModelMatching,
		StageSpecificationInheritance,
		StageCustomizationProcessing,
		StageSpringOptionsEnhancement,
		StageFinalValidation,
	}
	for i, sr := range product.PipelineResults {
		assert.Equal(t, wantOrder[i], sr.Stage)
		assert.True(t, sr.Success, sr.Stage)
	}

	// The exact-id match scores 0.9 and every later stage is clean, so the
	// match confidence carries through as the aggregate.
	assert.InDelta(t, 0.9, product.OverallConfidence, 1e-9)
	assert.Equal(t, model.StatusSuccess, p.Status(product))
	assert.Equal(t, model.ConfidenceHigh, product.ConfidenceLevel)
}

func TestReconcile_MatchedIDEqualsStructuredTopCandidate(t *testing.T) {
	cs := testCatalog()
	m := matcher.New(cs, nil)
	p := structuredOnly(cs)

	for _, entry := range []model.CatalogEntry{
		{ModelCode: "Summit X 850", Brand: "Ski-Doo", Price: 16499, ModelYear: 2026},
		{ModelCode: "MXZ X 600", Brand: "Ski-Doo", Price: 13200, ModelYear: 2026},
	} {
		structured, err := m.Match(context.Background(), entry)
		require.NoError(t, err)
		require.True(t, structured.Success)
		require.GreaterOrEqual(t, structured.Confidence, 0.7)

		product, err := p.Reconcile(context.Background(), entry)
		require.NoError(t, err)
		assert.Equal(t, structured.BaseModelID, product.BaseModelID, entry.ModelCode)
	}
}

func TestReconcile_SemanticFallbackFillsFailedMatch(t *testing.T) {
	cs := testCatalog()
	fb := &stubFallback{result: model.MatchResult{
		Success:     true,
		Method:      model.MatchMethodSemantic,
		BaseModelID: "summit-x-850",
		Confidence:  0.85,
		Reasoning:   "abbreviated trim resolves to Summit X",
	}}
	m := &stubMatcher{results: map[string]model.MatchResult{}}
	p := New(DefaultConfig(), cs, m, fb, validate.New(cs, validate.Vocabulary{}), nil, nil, nil)

	entry := summitEntry()
	entry.ModelCode = "SUM X 850 154"
	product, err := p.Reconcile(context.Background(), entry)
	require.NoError(t, err)

	assert.Equal(t, 1, fb.calls)
	assert.Equal(t, "summit-x-850", product.BaseModelID)
	assert.InDelta(t, 0.85, product.PipelineResults[0].Confidence, 1e-9)
	assert.Equal(t, model.StatusNeedsReview, p.Status(product))

	// Later stages still ran over the fallback's base model.
	assert.Equal(t, "154", product.Specifications["track_length"])
	require.Len(t, product.SpringOptions, 1)
	assert.Equal(t, `154"`, product.SpringOptions[0].Value)
}

func TestReconcile_SemanticNeverOverridesStructuredSuccess(t *testing.T) {
	cs := testCatalog()
	fb := &stubFallback{result: model.MatchResult{
		Success:     true,
		Method:      model.MatchMethodSemantic,
		BaseModelID: "mxz-x-600",
		Confidence:  0.99,
	}}
	m := &stubMatcher{results: map[string]model.MatchResult{
		"Summit X 850 154": {
			Success:     true,
			Method:      model.MatchMethodStructured,
			BaseModelID: "summit-x-850",
			Confidence:  0.75,
		},
	}}
	p := New(DefaultConfig(), cs, m, fb, validate.New(cs, validate.Vocabulary{}), nil, nil, nil)

	product, err := p.Reconcile(context.Background(), summitEntry())
	require.NoError(t, err)

	// Fallback was consulted (0.75 < acceptance) but its disagreeing
	// suggestion is discarded.
	assert.Equal(t, 1, fb.calls)
	assert.Equal(t, "summit-x-850", product.BaseModelID)
	assert.InDelta(t, 0.75, product.PipelineResults[0].Confidence, 1e-9)
}

func TestReconcile_UnmatchedContinuesDegraded(t *testing.T) {
	cs := testCatalog()
	p := structuredOnly(cs)

	product, err := p.Reconcile(context.Background(), model.CatalogEntry{
		ModelCode: "ZRX 999 QQ",
		Brand:     "Ski-Doo",
		Price:     12000,
		ModelYear: 2026,
	})
	require.NoError(t, err)
	require.NotNil(t, product)

	require.Len(t, product.PipelineResults, 5)
	assert.False(t, product.PipelineResults[0].Success)
	assert.False(t, product.PipelineResults[1].Success)
	assert.True(t, product.PipelineResults[2].Success)
	assert.True(t, product.PipelineResults[3].Success)

	assert.Empty(t, product.BaseModelID)
	assert.Equal(t, 0.0, product.OverallConfidence)
	assert.Equal(t, model.StatusFailed, p.Status(product))
	assert.Equal(t, model.ConfidenceLow, product.ConfidenceLevel)
}

func TestReconcile_ConfidenceIsMonotonic(t *testing.T) {
	cs := testCatalog()
	p := structuredOnly(cs)

	product, err := p.Reconcile(context.Background(), summitEntry())
	require.NoError(t, err)

	running := 1.0
	for _, sr := range product.PipelineResults {
		if sr.Confidence < running {
			running = sr.Confidence
		}
	}
	assert.InDelta(t, running, product.OverallConfidence, 1e-9)
	for _, sr := range product.PipelineResults {
		assert.LessOrEqual(t, product.OverallConfidence, sr.Confidence, sr.Stage)
	}
}

func TestReconcile_RecordsAuditEntryPerStage(t *testing.T) {
	cs := testCatalog()
	p := structuredOnly(cs)

	product, err := p.Reconcile(context.Background(), summitEntry())
	require.NoError(t, err)

	entries := p.Trail().Entries(product.ProductID)
	require.Len(t, entries, 5)
	assert.Equal(t, StageBaseModelMatching, entries[0].Stage)
	assert.Equal(t, StageFinalValidation, entries[4].Stage)
	assert.NotEmpty(t, entries[0].AfterData)
}

func TestStatus_ThresholdClassification(t *testing.T) {
	cs := testCatalog()
	m := &stubMatcher{results: map[string]model.MatchResult{
		"A": {Success: true, Method: model.MatchMethodStructured, BaseModelID: "summit-x-850", Confidence: 0.95},
		"B": {Success: true, Method: model.MatchMethodStructured, BaseModelID: "summit-x-850", Confidence: 0.8},
		"C": {Success: true, Method: model.MatchMethodStructured, BaseModelID: "summit-x-850", Confidence: 0.5},
	}}
	p := New(DefaultConfig(), cs, m, nil, nil, nil, nil, nil)

	want := map[string]model.ItemStatus{
		"A": model.StatusSuccess,
		"B": model.StatusNeedsReview,
		"C": model.StatusFailed,
	}
	for code, status := range want {
		product, err := p.Reconcile(context.Background(), model.CatalogEntry{
			ModelCode: code, Brand: "Ski-Doo", Price: 16000, ModelYear: 2026,
		})
		require.NoError(t, err)
		assert.Equal(t, status, p.Status(product), code)
	}
}

func TestProcessBatch_OnePanicDoesNotAbortBatch(t *testing.T) {
	cs := testCatalog()
	m := &stubMatcher{
		results: map[string]model.MatchResult{},
		panicOn: "Summit X 850 154 #3",
	}
	entries := make([]model.CatalogEntry, 5)
	for i := range entries {
		e := summitEntry()
		e.ModelCode = "Summit X 850 154 #" + string(rune('1'+i))
		m.results[e.ModelCode] = model.MatchResult{
			Success:     true,
			Method:      model.MatchMethodStructured,
			BaseModelID: "summit-x-850",
			Confidence:  0.97,
		}
		entries[i] = e
	}

	usage := &stubUsage{usage: model.TokenUsage{InputTokens: 1200, OutputTokens: 300}}
	p := New(DefaultConfig(), cs, m, nil, validate.New(cs, validate.Vocabulary{}), nil, nil, usage)

	result := p.ProcessBatch(context.Background(), entries)

	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, 4, result.Successful)
	assert.Equal(t, 0, result.NeedsReview)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, result.Products(), 4)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Summit X 850 154 #3", result.Errors[0].ModelCode)
	assert.Contains(t, result.Errors[0].Error, "panic")

	assert.Equal(t, 1500, result.Usage.Total())
	assert.Positive(t, result.Elapsed)
}

func TestProcessBatch_PersistFailureRecordedNotEscalated(t *testing.T) {
	cs := testCatalog()
	m := &stubMatcher{results: map[string]model.MatchResult{
		"Summit X 850 154": {
			Success:     true,
			Method:      model.MatchMethodStructured,
			BaseModelID: "summit-x-850",
			Confidence:  0.97,
		},
	}}
	st := &failingStore{}
	p := New(DefaultConfig(), cs, m, nil, validate.New(cs, validate.Vocabulary{}), st, nil, nil)

	result := p.ProcessBatch(context.Background(), []model.CatalogEntry{summitEntry()})

	assert.Equal(t, 1, st.creates)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Successful)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, "persist")
}

func TestProcessBatch_CancelledContextAbandonsUnstartedItems(t *testing.T) {
	cs := testCatalog()
	p := structuredOnly(cs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entries := []model.CatalogEntry{summitEntry(), summitEntry(), summitEntry()}
	result := p.ProcessBatch(ctx, entries)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.Failed)
	assert.Len(t, result.Errors, 3)
}

func TestDetectOptions_TableDriven(t *testing.T) {
	rules := DefaultOptionRules()

	opts := DetectOptions("Summit X 850 165 ES", rules)
	require.Len(t, opts, 2)
	assert.Equal(t, OptionTrack, opts[0].Type)
	assert.Equal(t, `165"`, opts[0].Value)
	assert.Equal(t, OptionFeature, opts[1].Type)
	assert.Equal(t, "electric start", opts[1].Value)
	assert.Equal(t, 300.0, opts[1].PriceDelta)

	assert.Empty(t, DetectOptions("Summit X 850", rules))
}
