package store

import (
	"context"

	"github.com/sledworks/catalog-cli/internal/model"
)

// Statistics are the processing counters exposed to reporting commands.
type Statistics struct {
	TotalProducts     int     `json:"total_products"`
	HighConfidence    int     `json:"high_confidence"`
	MediumConfidence  int     `json:"medium_confidence"`
	LowConfidence     int     `json:"low_confidence"`
	AverageConfidence float64 `json:"average_confidence"`
	AuditEntries      int     `json:"audit_entries"`
}

// ProductFilter specifies criteria for listing products.
type ProductFilter struct {
	Brand           string                `json:"brand,omitempty"`
	ModelYear       int                   `json:"model_year,omitempty"`
	ConfidenceLevel model.ConfidenceLevel `json:"confidence_level,omitempty"`
	Limit           int                   `json:"limit,omitempty"`
	Offset          int                   `json:"offset,omitempty"`
}

// Store defines the persistence interface for reconciled products and their
// audit history.
type Store interface {
	// Products
	CreateProduct(ctx context.Context, product *model.ProductSpecification, auditUser string) (string, error)
	GetByModelCode(ctx context.Context, modelCode string, modelYear int) (*model.ProductSpecification, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductSpecification, error)

	// Audit
	AppendAuditEntries(ctx context.Context, entries []model.AuditEntry) error
	GetAuditTrail(ctx context.Context, productID string) ([]model.AuditEntry, error)

	// Reporting
	GetProcessingStatistics(ctx context.Context) (*Statistics, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
