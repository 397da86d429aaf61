package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sledworks/catalog-cli/internal/model"
)

// Filter narrows a base-model lookup. Zero-valued fields are ignored.
type Filter struct {
	Brand       string
	ModelYear   int
	BaseModelID string
	Pattern     string // case-insensitive substring over id and model name
}

// Store is the read-only catalog collaborator queried during matching and
// validation.
type Store interface {
	FindMatchingBaseModels(ctx context.Context, f Filter) ([]model.BaseModelSpecification, error)
}

// ReadWriter is the import-side contract: lookup plus schema and row
// mutation. Both database-backed stores satisfy it.
type ReadWriter interface {
	Store
	Upsert(ctx context.Context, models ...model.BaseModelSpecification) error
	Migrate(ctx context.Context) error
	Close() error
}

// MemoryStore holds base models in memory. Used in tests and as the staging
// target for XLSX imports before they are flushed to a database.
type MemoryStore struct {
	mu     sync.RWMutex
	models []model.BaseModelSpecification
}

// NewMemoryStore creates a MemoryStore seeded with the given models.
func NewMemoryStore(models ...model.BaseModelSpecification) *MemoryStore {
	s := &MemoryStore{}
	s.Add(models...)
	return s
}

// Add appends base models to the store.
func (s *MemoryStore) Add(models ...model.BaseModelSpecification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = append(s.models, models...)
}

// Len reports how many base models the store holds.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.models)
}

// FindMatchingBaseModels returns all base models matching the filter,
// ordered by base model id for deterministic results.
func (s *MemoryStore) FindMatchingBaseModels(_ context.Context, f Filter) ([]model.BaseModelSpecification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.BaseModelSpecification
	for _, m := range s.models {
		if matchesFilter(m, f) {
			out = append(out, cloneModel(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BaseModelID < out[j].BaseModelID })
	return out, nil
}

func cloneModel(m model.BaseModelSpecification) model.BaseModelSpecification {
	if m.EngineSpecs != nil {
		specs := make(map[string]string, len(m.EngineSpecs))
		for k, v := range m.EngineSpecs {
			specs[k] = v
		}
		m.EngineSpecs = specs
	}
	return m
}

func matchesFilter(m model.BaseModelSpecification, f Filter) bool {
	if f.Brand != "" && !strings.EqualFold(m.Brand, f.Brand) {
		return false
	}
	if f.ModelYear != 0 && m.ModelYear != f.ModelYear {
		return false
	}
	if f.BaseModelID != "" && !strings.EqualFold(m.BaseModelID, f.BaseModelID) {
		return false
	}
	if f.Pattern != "" {
		p := strings.ToLower(f.Pattern)
		if !strings.Contains(strings.ToLower(m.BaseModelID), p) &&
			!strings.Contains(strings.ToLower(m.ModelName), p) {
			return false
		}
	}
	return true
}
