package model

import "time"

// AuditEntry is one immutable before/after record of a product mutation.
// Entries are append-only and never edited or deleted; together they allow
// full forensic reconstruction of how a product reached its final
// confidence.
type AuditEntry struct {
	ProductID        string         `json:"product_id"`
	Stage            string         `json:"stage"`
	Action           string         `json:"action"`
	BeforeData       map[string]any `json:"before_data,omitempty"`
	AfterData        map[string]any `json:"after_data,omitempty"`
	ConfidenceChange float64        `json:"confidence_change"`
	UserID           string         `json:"user_id"`
	Timestamp        time.Time      `json:"timestamp"`
}
