package model

// CatalogEntry is a raw line-item lifted from a source price list or dealer
// catalog. It is created by the extraction side and treated as immutable once
// handed to the reconciliation pipeline.
type CatalogEntry struct {
	ModelCode            string  `json:"model_code" csv:"model_code"`
	Brand                string  `json:"brand" csv:"brand"`
	Price                float64 `json:"price" csv:"price"`
	ModelYear            int     `json:"model_year" csv:"model_year"`
	SourceDocumentID     string  `json:"source_document_id" csv:"source_document_id"`
	SourcePage           int     `json:"source_page" csv:"source_page"`
	ExtractionConfidence float64 `json:"extraction_confidence" csv:"extraction_confidence"`
}

// BaseModelSpecification is a canonical catalog record for a model family
// and trim, prior to customer-specific customization. Read-only reference
// data; the pipeline queries it by brand, year and candidate pattern.
type BaseModelSpecification struct {
	BaseModelID       string            `json:"base_model_id"`
	ModelName         string            `json:"model_name"`
	Brand             string            `json:"brand"`
	ModelYear         int               `json:"model_year"`
	Category          string            `json:"category"`
	EngineSpecs       map[string]string `json:"engine_specs,omitempty"`
	SourceCatalog     string            `json:"source_catalog,omitempty"`
	ExtractionQuality float64           `json:"extraction_quality"`
}
