package model

import "time"

// ItemError records a per-entry failure inside a batch. Failed items are
// tallied here instead of aborting the batch.
type ItemError struct {
	ModelCode string `json:"model_code"`
	Error     string `json:"error"`
}

// ItemResult pairs a reconciled product with its terminal classification.
type ItemResult struct {
	Entry   CatalogEntry          `json:"entry"`
	Product *ProductSpecification `json:"product,omitempty"`
	Status  ItemStatus            `json:"status"`
	Error   string                `json:"error,omitempty"`
}

// BatchResult aggregates a process_batch run. Every entry is accounted for
// in exactly one of Successful/NeedsReview/Failed; no item is silently
// dropped from the tallies.
type BatchResult struct {
	Processed   int           `json:"processed"`
	Successful  int           `json:"successful"`
	NeedsReview int           `json:"needs_review"`
	Failed      int           `json:"failed"`
	Items       []ItemResult  `json:"items"`
	Errors      []ItemError   `json:"errors,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Usage       TokenUsage    `json:"usage"`
}

// Products returns the products of items that reconciled successfully or
// landed in manual review, in item order.
func (b *BatchResult) Products() []*ProductSpecification {
	var out []*ProductSpecification
	for _, item := range b.Items {
		if item.Product != nil && item.Status != StatusFailed {
			out = append(out, item.Product)
		}
	}
	return out
}
