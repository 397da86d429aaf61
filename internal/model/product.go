package model

import "time"

// ConfidenceLevel is the coarse bucket derived from a continuous confidence
// score via configured thresholds.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

// ItemStatus is the terminal classification of a reconciled item.
type ItemStatus string

const (
	StatusSuccess     ItemStatus = "SUCCESS"
	StatusNeedsReview ItemStatus = "NEEDS_REVIEW"
	StatusFailed      ItemStatus = "FAILED"
)

// Thresholds holds the two configured confidence cut-offs used for both
// the coarse level and the terminal classification.
// AutoAccept must be greater than ManualReview.
type Thresholds struct {
	AutoAccept   float64 `yaml:"auto_accept" mapstructure:"auto_accept"`
	ManualReview float64 `yaml:"manual_review" mapstructure:"manual_review"`
}

// LevelFor buckets a confidence score. The mapping is deterministic:
// >= AutoAccept is HIGH, >= ManualReview is MEDIUM, everything below LOW.
func (t Thresholds) LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= t.AutoAccept:
		return ConfidenceHigh
	case confidence >= t.ManualReview:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// StatusFor classifies a confidence score against the same thresholds.
func (t Thresholds) StatusFor(confidence float64) ItemStatus {
	switch {
	case confidence >= t.AutoAccept:
		return StatusSuccess
	case confidence >= t.ManualReview:
		return StatusNeedsReview
	default:
		return StatusFailed
	}
}

// SpringOption is a seasonal pre-order customization (track, suspension,
// color, feature) detected on top of a base model.
type SpringOption struct {
	Code       string  `json:"code"`
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	PriceDelta float64 `json:"price_delta,omitempty"`
}

// PipelineStageResult records one stage execution. Immutable once appended
// to a product's PipelineResults; the slice order is execution order.
type PipelineStageResult struct {
	Stage          string        `json:"stage"`
	Success        bool          `json:"success"`
	Confidence     float64       `json:"confidence"`
	Errors         []string      `json:"errors,omitempty"`
	ProcessingTime time.Duration `json:"processing_time_ns"`
}

// ProductSpecification is the fully specified, confidence-scored product
// record the pipeline produces. Owned by the pipeline until handed to the
// persistence collaborator.
type ProductSpecification struct {
	ProductID         string                `json:"product_id"`
	ModelCode         string                `json:"model_code"`
	BaseModelID       string                `json:"base_model_id,omitempty"`
	Brand             string                `json:"brand"`
	ModelName         string                `json:"model_name,omitempty"`
	ModelYear         int                   `json:"model_year"`
	Price             float64               `json:"price"`
	Specifications    map[string]string     `json:"specifications,omitempty"`
	SpringOptions     []SpringOption        `json:"spring_options,omitempty"`
	OverallConfidence float64               `json:"overall_confidence"`
	ConfidenceLevel   ConfidenceLevel       `json:"confidence_level"`
	PipelineResults   []PipelineStageResult `json:"pipeline_results"`
	CreatedAt         time.Time             `json:"created_at"`
	ProcessedBy       string                `json:"processed_by"`
}

// Snapshot returns an opaque map view of the product's mutable fields for
// audit before/after records. The maps inside are copied so later stage
// mutations do not leak into an already-appended audit entry.
func (p *ProductSpecification) Snapshot() map[string]any {
	specs := make(map[string]string, len(p.Specifications))
	for k, v := range p.Specifications {
		specs[k] = v
	}
	options := make([]SpringOption, len(p.SpringOptions))
	copy(options, p.SpringOptions)

	return map[string]any{
		"base_model_id":      p.BaseModelID,
		"model_name":         p.ModelName,
		"specifications":     specs,
		"spring_options":     options,
		"overall_confidence": p.OverallConfidence,
		"confidence_level":   p.ConfidenceLevel,
	}
}
