package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sledworks/catalog-cli/internal/catalog"
	"github.com/sledworks/catalog-cli/internal/model"
)

// draft is the mutable in-flight state of one entry's reconciliation. It is
// exclusively owned by the item's goroutine; stages read and write it
// without further synchronization.
type draft struct {
	entry   model.CatalogEntry
	product *model.ProductSpecification
	base    *model.BaseModelSpecification
	match   model.MatchResult
}

func newDraft(entry model.CatalogEntry) *draft {
	return &draft{
		entry: entry,
		product: &model.ProductSpecification{
			ProductID:      uuid.New().String(),
			ModelCode:      entry.ModelCode,
			Brand:          entry.Brand,
			ModelYear:      entry.ModelYear,
			Price:          entry.Price,
			Specifications: map[string]string{},
			CreatedAt:      time.Now().UTC(),
		},
	}
}

// stageOutcome is what each stage hands back to the driver.
type stageOutcome struct {
	success    bool
	confidence float64
	action     string
	errors     []string
}

func failedStage(action string, confidence float64, errs ...string) stageOutcome {
	return stageOutcome{confidence: confidence, action: action, errors: errs}
}

// stageMatch resolves the entry to a base model. Structured matching runs
// first; when its confidence lands below the stage acceptance threshold the
// semantic fallback is consulted. A fallback suggestion never overrides a
// successful structured match to a different base model, it can only lift
// confidence when the two agree, or fill in when structured matching failed
// outright.
func (p *Pipeline) stageMatch(ctx context.Context, d *draft) stageOutcome {
	structured, err := p.matcher.Match(ctx, d.entry)
	if err != nil {
		return failedStage("match_error", 0, err.Error())
	}

	chosen := structured
	if structured.Confidence < p.cfg.StageAcceptance && p.fallback != nil {
		reason := structured.Reasoning
		if reason == "" {
			reason = fmt.Sprintf("structured confidence %.2f below acceptance", structured.Confidence)
		}
		semantic := p.fallback.Match(ctx, d.entry, reason)

		switch {
		case !structured.Success && semantic.Success:
			chosen = semantic
		case structured.Success && semantic.Success &&
			semantic.BaseModelID == structured.BaseModelID &&
			semantic.Confidence > structured.Confidence:
			chosen.Confidence = semantic.Confidence
			chosen.Reasoning = semantic.Reasoning
		}
	}
	d.match = chosen

	if !chosen.Success {
		reason := chosen.Reasoning
		if reason == "" {
			reason = "no base model matched"
		}
		return failedStage("match_failed", 0, reason)
	}

	models, err := p.catalog.FindMatchingBaseModels(ctx, catalog.Filter{
		Brand:       d.entry.Brand,
		ModelYear:   d.entry.ModelYear,
		BaseModelID: chosen.BaseModelID,
	})
	if err != nil || len(models) == 0 {
		return failedStage("match_lookup_failed", 0,
			fmt.Sprintf("matched base model %s not found in catalog", chosen.BaseModelID))
	}
	d.base = &models[0]
	d.product.BaseModelID = d.base.BaseModelID
	d.product.ModelName = d.base.ModelName

	return stageOutcome{
		success:    true,
		confidence: chosen.Confidence,
		action:     "matched_" + string(chosen.Method),
	}
}

// stageInheritSpecs copies the matched base model's engine specifications
// and category onto the product. Without a match the stage fails and the
// product continues unmatched.
func (p *Pipeline) stageInheritSpecs(_ context.Context, d *draft) stageOutcome {
	if d.base == nil {
		return failedStage("inherit_skipped", 0, "no base model to inherit from")
	}

	for k, v := range d.base.EngineSpecs {
		d.product.Specifications[k] = v
	}
	if d.base.Category != "" {
		d.product.Specifications["category"] = d.base.Category
	}

	conf := 1.0
	var errs []string
	if len(d.base.EngineSpecs) == 0 {
		// The base model row was sparse; an incomplete inheritance is not
		// fatal but should not auto-accept either.
		conf = 0.85
		errs = append(errs, "base model carries no engine specifications")
	}
	return stageOutcome{
		success:    true,
		confidence: conf,
		action:     "inherited_specifications",
		errors:     errs,
	}
}

// stageCustomizations parses configuration tokens out of the model code
// (track length, engine displacement) and overlays them on the inherited
// specifications. Runs even for unmatched products so the raw entry still
// yields whatever the code alone can tell us.
func (p *Pipeline) stageCustomizations(_ context.Context, d *draft) stageOutcome {
	applied := applyCodeCustomizations(d.entry.ModelCode, d.product.Specifications)
	return stageOutcome{
		success:    true,
		confidence: 1.0,
		action:     fmt.Sprintf("applied_%d_customizations", applied),
	}
}

// stageSpringOptions detects seasonal pre-order options from the model code
// against the data-driven option table.
func (p *Pipeline) stageSpringOptions(_ context.Context, d *draft) stageOutcome {
	opts := DetectOptions(d.entry.ModelCode, p.options)
	d.product.SpringOptions = append(d.product.SpringOptions, opts...)
	return stageOutcome{
		success:    true,
		confidence: 1.0,
		action:     fmt.Sprintf("detected_%d_spring_options", len(opts)),
	}
}

// stageValidate runs the multi-layer validator. Its aggregate confidence
// feeds the pipeline aggregate directly, so a hard validation failure caps
// the product below the review threshold.
func (p *Pipeline) stageValidate(ctx context.Context, d *draft) stageOutcome {
	if p.validator == nil {
		return stageOutcome{success: true, confidence: 1.0, action: "validation_skipped"}
	}
	res := p.validator.Validate(ctx, d.product)
	return stageOutcome{
		success:    res.Success,
		confidence: res.Confidence,
		action:     "validated",
		errors:     res.Errors(),
	}
}
