package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sledworks/catalog-cli/internal/catalog"
	"github.com/sledworks/catalog-cli/internal/model"
)

// maxPromptCandidates bounds how many base models go into one prompt.
const maxPromptCandidates = 10

const semanticSystemPrompt = `You match powersports catalog line-items to canonical base models.
Given a raw entry and a list of candidate base models, pick the candidate the
entry most likely refers to. Respond with ONLY a JSON object:
{"base_model_id": "<id from the candidate list>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}
If no candidate fits, use "base_model_id": "none" with confidence 0.`

// SemanticMatcher resolves entries the structured matcher could not, by
// asking the enrichment provider to choose among catalog candidates. The
// provider's suggestion is never trusted directly; it must survive the same
// catalog lookup used for structured matching.
type SemanticMatcher struct {
	client  *Client
	catalog catalog.Store
}

// NewSemanticMatcher creates a SemanticMatcher over the given catalog.
func NewSemanticMatcher(client *Client, store catalog.Store) *SemanticMatcher {
	return &SemanticMatcher{client: client, catalog: store}
}

// suggestion is the provider response schema. All keys are required; a
// response missing any of them is rejected outright.
type suggestion struct {
	BaseModelID *string  `json:"base_model_id"`
	Confidence  *float64 `json:"confidence"`
	Reasoning   *string  `json:"reasoning"`
}

// Match asks the provider to resolve an entry. All failure modes (no
// candidates, call error, unparseable or unvalidated suggestion) produce a
// failed MatchResult rather than an error; semantic matching is best-effort.
func (m *SemanticMatcher) Match(ctx context.Context, entry model.CatalogEntry, failureReason string) model.MatchResult {
	candidates, err := m.catalog.FindMatchingBaseModels(ctx, catalog.Filter{
		Brand:     entry.Brand,
		ModelYear: entry.ModelYear,
	})
	if err != nil {
		zap.L().Warn("enrich: candidate lookup failed", zap.Error(err))
		return model.FailedMatch("candidate lookup failed")
	}
	if len(candidates) == 0 {
		return model.FailedMatch("no catalog candidates for brand and year")
	}
	if len(candidates) > maxPromptCandidates {
		candidates = candidates[:maxPromptCandidates]
	}

	prompt := buildMatchPrompt(entry, candidates, failureReason)
	resp, err := m.client.Complete(ctx, semanticSystemPrompt, prompt)
	if err != nil {
		zap.L().Warn("enrich: semantic match call failed",
			zap.String("model_code", entry.ModelCode),
			zap.Error(err),
		)
		return model.FailedMatch("provider call failed")
	}

	sug, err := parseSuggestion(resp.Text())
	if err != nil {
		zap.L().Warn("enrich: unparseable semantic match response",
			zap.String("model_code", entry.ModelCode),
			zap.Error(err),
		)
		return model.FailedMatch("unparseable provider response")
	}
	if *sug.BaseModelID == "none" {
		return model.FailedMatch("provider found no fitting candidate")
	}

	// Re-validate against the catalog before believing the suggestion.
	validated, err := m.catalog.FindMatchingBaseModels(ctx, catalog.Filter{
		Brand:       entry.Brand,
		ModelYear:   entry.ModelYear,
		BaseModelID: *sug.BaseModelID,
	})
	if err != nil || len(validated) == 0 {
		zap.L().Warn("enrich: provider suggested unknown base model",
			zap.String("model_code", entry.ModelCode),
			zap.String("suggested", *sug.BaseModelID),
		)
		return model.FailedMatch("suggestion not found in catalog")
	}

	conf := *sug.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return model.MatchResult{
		Success:     true,
		Method:      model.MatchMethodSemantic,
		BaseModelID: validated[0].BaseModelID,
		ModelName:   validated[0].ModelName,
		Confidence:  conf,
		Reasoning:   *sug.Reasoning,
		TokensUsed:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		Details: map[string]any{
			"candidates_offered": len(candidates),
		},
	}
}

func buildMatchPrompt(entry model.CatalogEntry, candidates []model.BaseModelSpecification, failureReason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entry:\n  model_code: %s\n  brand: %s\n  model_year: %d\n  price: %.2f\n",
		entry.ModelCode, entry.Brand, entry.ModelYear, entry.Price)
	if failureReason != "" {
		fmt.Fprintf(&b, "\nStructured matching failed because: %s\n", failureReason)
	}
	b.WriteString("\nCandidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "  - id: %s, name: %s, category: %s\n", c.BaseModelID, c.ModelName, c.Category)
	}
	return b.String()
}

// parseSuggestion decodes the provider response strictly. The response must
// be a JSON object with all three keys present and correctly typed; nothing
// is coerced or defaulted.
func parseSuggestion(text string) (*suggestion, error) {
	text = strings.TrimSpace(text)
	// Models sometimes wrap JSON in a code fence despite instructions.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var s suggestion
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, eris.Wrap(err, "enrich: decode suggestion")
	}
	if s.BaseModelID == nil {
		return nil, eris.New("enrich: suggestion missing base_model_id")
	}
	if s.Confidence == nil {
		return nil, eris.New("enrich: suggestion missing confidence")
	}
	if s.Reasoning == nil {
		return nil, eris.New("enrich: suggestion missing reasoning")
	}
	return &s, nil
}
