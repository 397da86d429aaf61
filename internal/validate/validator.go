package validate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sledworks/catalog-cli/internal/catalog"
	"github.com/sledworks/catalog-cli/internal/model"
)

// Layer identifiers, in evaluation order.
const (
	LayerField         = "field_validation"
	LayerCatalog       = "catalog_validation"
	LayerSpecification = "specification_validation"
	LayerCrossField    = "cross_field_validation"
)

// LayerResult is one layer's independent verdict. Success is false only when
// the layer found a hard error; warnings reduce confidence without failing.
type LayerResult struct {
	Layer      string   `json:"layer"`
	Success    bool     `json:"success"`
	Confidence float64  `json:"confidence"`
	Errors     []string `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Result aggregates all four layers. Success requires no hard error in any
// layer; Confidence is the minimum across layers, so a hard-failing layer
// can never be masked by an unrelated high-confidence one.
type Result struct {
	Success    bool          `json:"success"`
	Confidence float64       `json:"confidence"`
	Layers     []LayerResult `json:"layers"`
}

// Errors flattens the hard errors of all layers.
func (r Result) Errors() []string {
	var out []string
	for _, l := range r.Layers {
		out = append(out, l.Errors...)
	}
	return out
}

// Validator runs the four validation layers over a reconciled product.
// Layers are always all evaluated; an early hard failure never short-circuits
// the later layers, so every product accumulates the full finding set.
type Validator struct {
	catalog catalog.Store
	vocab   Vocabulary
}

// New creates a Validator. A zero Vocabulary falls back to the defaults.
func New(store catalog.Store, vocab Vocabulary) *Validator {
	if len(vocab.Brands) == 0 {
		vocab = DefaultVocabulary()
	}
	return &Validator{catalog: store, vocab: vocab}
}

// Validate evaluates all layers and aggregates. Catalog lookups that error
// degrade the affected layer instead of aborting validation.
func (v *Validator) Validate(ctx context.Context, p *model.ProductSpecification) Result {
	layers := []LayerResult{
		v.validateFields(p),
		v.validateCatalog(ctx, p),
		v.validateSpecifications(p),
		v.validateCrossField(ctx, p),
	}

	res := Result{Success: true, Confidence: 1.0, Layers: layers}
	for _, l := range layers {
		if !l.Success {
			res.Success = false
		}
		if l.Confidence < res.Confidence {
			res.Confidence = l.Confidence
		}
	}
	if res.Confidence < 0 {
		res.Confidence = 0
	}

	if !res.Success {
		zap.L().Debug("validate: product failed validation",
			zap.String("model_code", p.ModelCode),
			zap.Float64("confidence", res.Confidence),
			zap.Strings("errors", res.Errors()),
		)
	}
	return res
}

// layerState accumulates findings for one layer with the shared confidence
// arithmetic: each hard error costs 0.6, each warning 0.1, floored at zero.
// A single hard error therefore always leaves the layer below 0.5.
type layerState struct {
	layer    string
	errors   []string
	warnings []string
}

func (s *layerState) errorf(format string, args ...any) {
	s.errors = append(s.errors, fmt.Sprintf(format, args...))
}

func (s *layerState) warnf(format string, args ...any) {
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}

func (s *layerState) result() LayerResult {
	conf := 1.0 - 0.6*float64(len(s.errors)) - 0.1*float64(len(s.warnings))
	if conf < 0 {
		conf = 0
	}
	return LayerResult{
		Layer:      s.layer,
		Success:    len(s.errors) == 0,
		Confidence: conf,
		Errors:     s.errors,
		Warnings:   s.warnings,
	}
}

func (v *Validator) validateFields(p *model.ProductSpecification) LayerResult {
	s := layerState{layer: LayerField}

	if strings.TrimSpace(p.ModelCode) == "" {
		s.errorf("model_code is empty")
	}
	if strings.TrimSpace(p.Brand) == "" {
		s.errorf("brand is empty")
	} else if !v.vocab.knownBrand(p.Brand) {
		s.warnf("brand %q not in known brand list", p.Brand)
	}
	if p.Price <= 0 {
		s.errorf("price %.2f is not positive", p.Price)
	}
	switch {
	case p.ModelYear == 0:
		s.errorf("model_year is missing")
	case p.ModelYear < v.vocab.YearWindow[0] || p.ModelYear > v.vocab.YearWindow[1]:
		s.warnf("model_year %d outside window %d-%d", p.ModelYear, v.vocab.YearWindow[0], v.vocab.YearWindow[1])
	}

	return s.result()
}

// validateCatalog checks the product against canonical base models. A brand
// mismatch between the product and every candidate is a hard failure; a year
// mismatch on an otherwise-matching model only reduces confidence.
func (v *Validator) validateCatalog(ctx context.Context, p *model.ProductSpecification) LayerResult {
	s := layerState{layer: LayerCatalog}

	if p.BaseModelID != "" {
		models, err := v.catalog.FindMatchingBaseModels(ctx, catalog.Filter{BaseModelID: p.BaseModelID})
		switch {
		case err != nil:
			s.errorf("catalog lookup failed: %v", err)
		case len(models) == 0:
			s.errorf("base model %q not found in catalog", p.BaseModelID)
		case !strings.EqualFold(models[0].Brand, p.Brand):
			s.errorf("base model %q belongs to brand %q, product says %q",
				p.BaseModelID, models[0].Brand, p.Brand)
		default:
			if models[0].ModelYear != 0 && p.ModelYear != 0 && models[0].ModelYear != p.ModelYear {
				s.warnf("model year %d differs from catalog year %d", p.ModelYear, models[0].ModelYear)
			}
		}
		return s.result()
	}

	// Unmatched product: find any candidates for the code and check brands.
	candidates, err := v.catalog.FindMatchingBaseModels(ctx, catalog.Filter{Pattern: firstToken(p.ModelCode)})
	if err != nil {
		s.errorf("catalog lookup failed: %v", err)
		return s.result()
	}
	if len(candidates) == 0 {
		s.warnf("no catalog candidates for model code %q", p.ModelCode)
		return s.result()
	}
	brandMatch := false
	for _, c := range candidates {
		if strings.EqualFold(c.Brand, p.Brand) {
			brandMatch = true
			break
		}
	}
	if !brandMatch {
		s.errorf("all %d catalog candidates for %q belong to a different brand than %q",
			len(candidates), p.ModelCode, p.Brand)
		return s.result()
	}
	s.warnf("model code %q has catalog candidates but no confirmed base model", p.ModelCode)
	return s.result()
}

func (v *Validator) validateSpecifications(p *model.ProductSpecification) LayerResult {
	s := layerState{layer: LayerSpecification}

	if len(p.Specifications) == 0 {
		s.warnf("product carries no specifications")
		return s.result()
	}

	if raw, ok := p.Specifications["displacement"]; ok {
		cc, err := strconv.Atoi(strings.TrimSpace(raw))
		switch {
		case err != nil:
			s.warnf("displacement %q is not numeric", raw)
		case cc < 120 || cc > 1200:
			s.errorf("displacement %dcc out of physical range", cc)
		case !v.vocab.knownDisplacement(cc):
			s.warnf("displacement %dcc not a known engine class", cc)
		}
	}

	if raw, ok := p.Specifications["track_length"]; ok {
		length, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		switch {
		case err != nil:
			s.warnf("track_length %q is not numeric", raw)
		case length < v.vocab.TrackLengthRange[0] || length > v.vocab.TrackLengthRange[1]:
			s.errorf("track length %.0f outside %g-%g", length,
				v.vocab.TrackLengthRange[0], v.vocab.TrackLengthRange[1])
		}
	}

	if raw, ok := p.Specifications["starter"]; ok {
		if !v.vocab.knownStarter(raw) {
			s.warnf("starter type %q not recognized", raw)
		}
	}

	if raw, ok := p.Specifications["display"]; ok {
		if !v.vocab.knownDisplay(raw) {
			s.warnf("display %q not recognized", raw)
		}
	}

	return s.result()
}

// validateCrossField checks consistency across fields that are individually
// valid: category/track compatibility and category/price alignment.
func (v *Validator) validateCrossField(ctx context.Context, p *model.ProductSpecification) LayerResult {
	s := layerState{layer: LayerCrossField}

	for _, opt := range p.SpringOptions {
		switch opt.Type {
		case "track", "suspension", "color", "feature":
		default:
			s.warnf("spring option %q has unknown type %q", opt.Code, opt.Type)
		}
	}

	if p.BaseModelID == "" {
		return s.result()
	}
	models, err := v.catalog.FindMatchingBaseModels(ctx, catalog.Filter{BaseModelID: p.BaseModelID})
	if err != nil || len(models) == 0 {
		// The catalog layer already reported this.
		return s.result()
	}
	category := models[0].Category

	if raw, ok := p.Specifications["track_length"]; ok {
		if length, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			switch category {
			case "deep-snow":
				if length < 146 {
					s.warnf("deep-snow model with a %.0f track is unusual", length)
				}
			case "trail":
				if length > 140 {
					s.warnf("trail model with a %.0f track is unusual", length)
				}
			}
		}
	}

	if bounds, ok := v.vocab.CategoryPriceRange[category]; ok && p.Price > 0 {
		switch {
		case p.Price < bounds[0]/2 || p.Price > bounds[1]*2:
			s.errorf("price %.2f is implausible for category %q", p.Price, category)
		case p.Price < bounds[0] || p.Price > bounds[1]:
			s.warnf("price %.2f outside usual range for category %q", p.Price, category)
		}
	}

	return s.result()
}

func firstToken(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	for i, r := range code {
		if r == ' ' || r == '-' || r == '_' {
			return code[:i]
		}
	}
	return code
}
