package matcher

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sledworks/catalog-cli/internal/catalog"
	"github.com/sledworks/catalog-cli/internal/model"
)

// MatchThreshold is the minimum confidence for a structured match to count
// as successful.
const MatchThreshold = 0.7

// weakPenalty is subtracted when a candidate came from the prefix fallback
// rather than a brand rule.
const weakPenalty = 0.15

// Candidate is a catalog lookup pattern derived from a model code.
type Candidate struct {
	Pattern  string
	Category string
	Weak     bool
}

// StructuredMatcher resolves catalog entries to base models using brand
// pattern rules and deterministic scoring. It never calls a language model.
type StructuredMatcher struct {
	catalog   catalog.Store
	patterns  PatternTable
	threshold float64
}

// New creates a StructuredMatcher over the given catalog. A nil table falls
// back to DefaultPatterns.
func New(store catalog.Store, patterns PatternTable) *StructuredMatcher {
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	return &StructuredMatcher{
		catalog:   store,
		patterns:  patterns,
		threshold: MatchThreshold,
	}
}

// Normalize lowercases a model code and collapses whitespace and underscores
// to hyphens so codes compare against catalog ids.
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "_", "-")
	return strings.Join(strings.Fields(code), "-")
}

// ExtractCandidates derives catalog lookup patterns from a model code. Brand
// rules are tried in table order; when none match, the leading characters of
// the code become weak fallback candidates.
func (m *StructuredMatcher) ExtractCandidates(modelCode, brand string) []Candidate {
	code := Normalize(modelCode)
	if code == "" {
		return nil
	}

	var out []Candidate
	for _, r := range m.patterns.RulesFor(brand) {
		if strings.HasPrefix(code, r.Pattern) {
			out = append(out, Candidate{Pattern: r.Pattern, Category: r.Category})
		}
	}
	if len(out) > 0 {
		return out
	}

	// No rule matched. Fall back to the leading characters, which is enough
	// to narrow the catalog query but earns a scoring penalty.
	for _, n := range []int{4, 3} {
		if len(code) >= n {
			out = append(out, Candidate{Pattern: code[:n], Weak: true})
		}
	}
	return out
}

// Match attempts a structured catalog match for one entry. A nil error with
// Success=false means the entry needs the semantic fallback, not that
// matching broke.
func (m *StructuredMatcher) Match(ctx context.Context, entry model.CatalogEntry) (model.MatchResult, error) {
	candidates := m.ExtractCandidates(entry.ModelCode, entry.Brand)
	if len(candidates) == 0 {
		return model.FailedMatch("model code produced no candidates"), nil
	}

	code := Normalize(entry.ModelCode)

	var (
		best      model.BaseModelSpecification
		bestScore float64
		bestCand  Candidate
		found     bool
		queried   int
	)
	for _, c := range candidates {
		models, err := m.catalog.FindMatchingBaseModels(ctx, catalog.Filter{
			Brand:     entry.Brand,
			ModelYear: entry.ModelYear,
			Pattern:   c.Pattern,
		})
		if err != nil {
			return model.MatchResult{}, eris.Wrap(err, "matcher: catalog lookup")
		}
		queried += len(models)
		for _, bm := range models {
			if s := m.score(code, c, bm); s > bestScore {
				best, bestScore, bestCand, found = bm, s, c, true
			}
		}
	}

	if !found {
		return model.FailedMatch("no catalog models for any candidate pattern"), nil
	}

	result := model.MatchResult{
		Success:     bestScore >= m.threshold,
		Method:      model.MatchMethodStructured,
		BaseModelID: best.BaseModelID,
		ModelName:   best.ModelName,
		Confidence:  bestScore,
		Details: map[string]any{
			"pattern":           bestCand.Pattern,
			"category":          bestCand.Category,
			"weak_fallback":     bestCand.Weak,
			"candidates_tried":  len(candidates),
			"models_considered": queried,
		},
	}
	if !result.Success {
		zap.L().Debug("matcher: below structured threshold",
			zap.String("model_code", entry.ModelCode),
			zap.Float64("confidence", bestScore),
		)
	}
	return result, nil
}

// score rates how well a base model explains a model code. Components are
// additive: exact id match 0.5, candidate pattern found in the model name
// 0.3, a brand token in the code 0.1, character overlap up to 0.1. The
// total is clamped to [0, 1].
func (m *StructuredMatcher) score(code string, c Candidate, bm model.BaseModelSpecification) float64 {
	var s float64

	id := Normalize(bm.BaseModelID)
	if id == code {
		s += 0.5
	}

	if c.Pattern != "" && strings.Contains(Normalize(bm.ModelName), c.Pattern) {
		s += 0.3
	}

	// Entries are already filtered by brand before scoring, so only the
	// code itself can earn the brand component.
	if brandTokenInCode(code, bm.Brand) {
		s += 0.1
	}

	s += 0.1 * charJaccard(code, id)

	if c.Weak {
		s -= weakPenalty
	}

	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// brandTokenInCode reports whether any token of the normalized brand name
// appears in the code.
func brandTokenInCode(code, brand string) bool {
	for _, tok := range strings.Split(Normalize(brand), "-") {
		if tok != "" && strings.Contains(code, tok) {
			return true
		}
	}
	return false
}

// charJaccard measures character-set overlap between a code and an id. It is
// a weak signal used only to break ties between near-identical models.
func charJaccard(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	as := map[rune]struct{}{}
	for _, r := range a {
		as[r] = struct{}{}
	}
	bs := map[rune]struct{}{}
	for _, r := range b {
		bs[r] = struct{}{}
	}
	inter := 0
	for r := range as {
		if _, ok := bs[r]; ok {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
