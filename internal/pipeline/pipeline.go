package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sledworks/catalog-cli/internal/audit"
	"github.com/sledworks/catalog-cli/internal/catalog"
	"github.com/sledworks/catalog-cli/internal/model"
	"github.com/sledworks/catalog-cli/internal/store"
	"github.com/sledworks/catalog-cli/internal/validate"
)

// Stage names, in execution order.
const (
	StageBaseModelMatching        = "base_model_matching"
	StageSpecificationInheritance = "specification_inheritance"
	StageCustomizationProcessing  = "customization_processing"
	StageSpringOptionsEnhancement = "spring_options_enhancement"
	StageFinalValidation          = "final_validation"
)

// Matcher resolves a catalog entry to a base model deterministically.
type Matcher interface {
	Match(ctx context.Context, entry model.CatalogEntry) (model.MatchResult, error)
}

// Fallback is the semantic matcher consulted when structured matching
// comes back below the stage acceptance threshold. Its result is already
// catalog-validated by the implementation.
type Fallback interface {
	Match(ctx context.Context, entry model.CatalogEntry, failureReason string) model.MatchResult
}

// UsageSource exposes the accumulated enrichment token/cost totals so
// batch results can report them.
type UsageSource interface {
	Usage() model.TokenUsage
}

// Config holds pipeline tuning parameters.
type Config struct {
	Thresholds model.Thresholds `yaml:"thresholds" mapstructure:"thresholds"`
	// StageAcceptance is the structured-match confidence below which the
	// semantic fallback is consulted. Must be >= the structured matcher's
	// own success threshold.
	StageAcceptance float64 `yaml:"stage_acceptance" mapstructure:"stage_acceptance"`
	MaxConcurrent   int     `yaml:"max_concurrent_processing" mapstructure:"max_concurrent_processing"`
	AuditUser       string  `yaml:"audit_user" mapstructure:"audit_user"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		Thresholds:      model.Thresholds{AutoAccept: 0.9, ManualReview: 0.7},
		StageAcceptance: 0.8,
		MaxConcurrent:   4,
		AuditUser:       "reconciliation-pipeline",
	}
}

// Pipeline runs the fixed reconciliation stage sequence per entry and the
// concurrent batch driver. One Pipeline is safe for concurrent use; each
// in-flight item owns its own draft and the audit trail is internally
// synchronized.
type Pipeline struct {
	cfg       Config
	catalog   catalog.Store
	matcher   Matcher
	fallback  Fallback
	validator *validate.Validator
	store     store.Store
	trail     *audit.Trail
	usage     UsageSource
	options   []OptionRule
}

// New creates a Pipeline. The fallback, store and usage source may be nil;
// the pipeline then runs structured-only, without persistence, or without
// usage totals respectively.
func New(
	cfg Config,
	catalogStore catalog.Store,
	m Matcher,
	fb Fallback,
	v *validate.Validator,
	st store.Store,
	trail *audit.Trail,
	usage UsageSource,
) *Pipeline {
	if cfg.Thresholds.AutoAccept == 0 {
		cfg.Thresholds = DefaultConfig().Thresholds
	}
	if cfg.StageAcceptance == 0 {
		cfg.StageAcceptance = DefaultConfig().StageAcceptance
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.AuditUser == "" {
		cfg.AuditUser = DefaultConfig().AuditUser
	}
	if trail == nil {
		trail = audit.NewTrail(cfg.AuditUser)
	}
	return &Pipeline{
		cfg:       cfg,
		catalog:   catalogStore,
		matcher:   m,
		fallback:  fb,
		validator: v,
		store:     st,
		trail:     trail,
		usage:     usage,
		options:   DefaultOptionRules(),
	}
}

// Trail exposes the audit trail so callers can inspect or persist entries.
func (p *Pipeline) Trail() *audit.Trail {
	return p.trail
}

// Reconcile runs the full stage sequence for one entry. The returned
// product is always non-nil on a nil error, even when its status is
// FAILED; callers decide what to do with low-confidence results.
func (p *Pipeline) Reconcile(ctx context.Context, entry model.CatalogEntry) (*model.ProductSpecification, error) {
	d := newDraft(entry)
	log := zap.L().With(
		zap.String("model_code", entry.ModelCode),
		zap.String("product_id", d.product.ProductID),
	)

	stages := []struct {
		name string
		fn   func(context.Context, *draft) stageOutcome
	}{
		{StageBaseModelMatching, p.stageMatch},
		{StageSpecificationInheritance, p.stageInheritSpecs},
		{StageCustomizationProcessing, p.stageCustomizations},
		{StageSpringOptionsEnhancement, p.stageSpringOptions},
		{StageFinalValidation, p.stageValidate},
	}

	aggregate := 1.0
	for _, s := range stages {
		before := d.product.Snapshot()
		beforeConf := aggregate
		start := time.Now()

		out := s.fn(ctx, d)

		// The aggregate only ever goes down: a stage, failing or not,
		// never raises confidence above what earlier stages established.
		if out.confidence < aggregate {
			aggregate = out.confidence
		}
		if aggregate < 0 {
			aggregate = 0
		}

		d.product.OverallConfidence = aggregate
		d.product.ConfidenceLevel = p.cfg.Thresholds.LevelFor(aggregate)
		d.product.PipelineResults = append(d.product.PipelineResults, model.PipelineStageResult{
			Stage:          s.name,
			Success:        out.success,
			Confidence:     out.confidence,
			Errors:         out.errors,
			ProcessingTime: time.Since(start),
		})

		p.trail.Record(d.product.ProductID, s.name, out.action, before, d.product.Snapshot(), aggregate-beforeConf)

		if !out.success {
			log.Debug("pipeline: stage failed, continuing degraded",
				zap.String("stage", s.name),
				zap.Strings("errors", out.errors),
			)
		}
	}

	log.Info("pipeline: entry reconciled",
		zap.String("base_model_id", d.product.BaseModelID),
		zap.Float64("confidence", d.product.OverallConfidence),
		zap.String("level", string(d.product.ConfidenceLevel)),
	)
	return d.product, nil
}

// Status classifies a reconciled product against the configured thresholds.
func (p *Pipeline) Status(product *model.ProductSpecification) model.ItemStatus {
	return p.cfg.Thresholds.StatusFor(product.OverallConfidence)
}

// ProcessBatch reconciles entries with bounded concurrency. A single item's
// error or panic becomes a per-item failure entry and never aborts the
// batch; every entry is accounted for in the result's tallies.
func (p *Pipeline) ProcessBatch(ctx context.Context, entries []model.CatalogEntry) *model.BatchResult {
	start := time.Now()
	result := &model.BatchResult{
		Items: make([]model.ItemResult, len(entries)),
	}

	zap.L().Info("pipeline: processing batch",
		zap.Int("entries", len(entries)),
		zap.Int("concurrency", p.cfg.MaxConcurrent),
	)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.MaxConcurrent)

	for i, entry := range entries {
		// Abandon not-yet-started items on cancellation; in-flight items
		// run to completion so audit state is never left half-written.
		if ctx.Err() != nil {
			mu.Lock()
			result.Items[i] = model.ItemResult{
				Entry:  entry,
				Status: model.StatusFailed,
				Error:  ctx.Err().Error(),
			}
			result.Errors = append(result.Errors, model.ItemError{ModelCode: entry.ModelCode, Error: ctx.Err().Error()})
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			item := p.processItem(ctx, entry)
			mu.Lock()
			result.Items[i] = item
			if item.Error != "" {
				result.Errors = append(result.Errors, model.ItemError{ModelCode: entry.ModelCode, Error: item.Error})
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range result.Items {
		result.Processed++
		switch item.Status {
		case model.StatusSuccess:
			result.Successful++
		case model.StatusNeedsReview:
			result.NeedsReview++
		default:
			result.Failed++
		}
	}

	result.Elapsed = time.Since(start)
	if p.usage != nil {
		result.Usage = p.usage.Usage()
	}

	zap.L().Info("pipeline: batch complete",
		zap.Int("processed", result.Processed),
		zap.Int("successful", result.Successful),
		zap.Int("needs_review", result.NeedsReview),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", result.Elapsed),
		zap.Int("tokens", result.Usage.Total()),
	)
	return result
}

// processItem runs one entry's stage sequence, converting panics and errors
// into a failed item result, and persists the product when a store is
// configured. Persistence failures are recorded on the item, never
// escalated.
func (p *Pipeline) processItem(ctx context.Context, entry model.CatalogEntry) (item model.ItemResult) {
	item.Entry = entry

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("pipeline: item panicked",
				zap.String("model_code", entry.ModelCode),
				zap.Any("panic", r),
			)
			item = model.ItemResult{
				Entry:  entry,
				Status: model.StatusFailed,
				Error:  fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	product, err := p.Reconcile(ctx, entry)
	if err != nil {
		item.Status = model.StatusFailed
		item.Error = err.Error()
		return item
	}

	item.Product = product
	item.Status = p.Status(product)

	if p.store != nil {
		if _, persistErr := p.store.CreateProduct(ctx, product, p.cfg.AuditUser); persistErr != nil {
			zap.L().Warn("pipeline: persist failed",
				zap.String("model_code", entry.ModelCode),
				zap.Error(persistErr),
			)
			item.Error = "persist: " + persistErr.Error()
		} else if auditErr := p.store.AppendAuditEntries(ctx, p.trail.Entries(product.ProductID)); auditErr != nil {
			zap.L().Warn("pipeline: audit persist failed",
				zap.String("product_id", product.ProductID),
				zap.Error(auditErr),
			)
		}
	}
	return item
}
