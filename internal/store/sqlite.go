package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sledworks/catalog-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id                 TEXT PRIMARY KEY,
	model_code         TEXT NOT NULL,
	base_model_id      TEXT,
	brand              TEXT NOT NULL,
	model_name         TEXT,
	model_year         INTEGER NOT NULL,
	price              REAL NOT NULL,
	specifications     TEXT,
	spring_options     TEXT,
	overall_confidence REAL NOT NULL,
	confidence_level   TEXT NOT NULL,
	pipeline_results   TEXT,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	processed_by       TEXT
);

CREATE TABLE IF NOT EXISTS audit_log (
	id                TEXT PRIMARY KEY,
	product_id        TEXT NOT NULL,
	stage             TEXT NOT NULL,
	action            TEXT NOT NULL,
	before_data       TEXT,
	after_data        TEXT,
	confidence_change REAL NOT NULL DEFAULT 0,
	user_id           TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_products_model_code ON products(model_code, model_year);
CREATE INDEX IF NOT EXISTS idx_products_brand_year ON products(brand, model_year);
CREATE INDEX IF NOT EXISTS idx_products_confidence ON products(confidence_level);
CREATE INDEX IF NOT EXISTS idx_audit_log_product_id ON audit_log(product_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateProduct(ctx context.Context, p *model.ProductSpecification, auditUser string) (string, error) {
	id := p.ProductID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	processedBy := p.ProcessedBy
	if processedBy == "" {
		processedBy = auditUser
	}

	specsJSON, err := json.Marshal(p.Specifications)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal specifications")
	}
	optionsJSON, err := json.Marshal(p.SpringOptions)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal spring options")
	}
	resultsJSON, err := json.Marshal(p.PipelineResults)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal pipeline results")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO products (id, model_code, base_model_id, brand, model_name, model_year, price,
			specifications, spring_options, overall_confidence, confidence_level, pipeline_results,
			created_at, processed_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.ModelCode, nullable(p.BaseModelID), p.Brand, nullable(p.ModelName), p.ModelYear, p.Price,
		string(specsJSON), string(optionsJSON), p.OverallConfidence, string(p.ConfidenceLevel),
		string(resultsJSON), createdAt, processedBy,
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: insert product %s", p.ModelCode)
	}
	return id, nil
}

func (s *SQLiteStore) GetByModelCode(ctx context.Context, modelCode string, modelYear int) (*model.ProductSpecification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, model_code, base_model_id, brand, model_name, model_year, price,
			specifications, spring_options, overall_confidence, confidence_level, pipeline_results,
			created_at, processed_by
		 FROM products WHERE model_code = ? AND model_year = ?
		 ORDER BY created_at DESC LIMIT 1`,
		modelCode, modelYear,
	)
	p, err := scanProduct(row)
	if isNoRows(err) {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductSpecification, error) {
	query := `SELECT id, model_code, base_model_id, brand, model_name, model_year, price,
		specifications, spring_options, overall_confidence, confidence_level, pipeline_results,
		created_at, processed_by
		FROM products WHERE 1=1`
	var args []any

	if filter.Brand != "" {
		query += ` AND brand = ?`
		args = append(args, filter.Brand)
	}
	if filter.ModelYear != 0 {
		query += ` AND model_year = ?`
		args = append(args, filter.ModelYear)
	}
	if filter.ConfidenceLevel != "" {
		query += ` AND confidence_level = ?`
		args = append(args, string(filter.ConfidenceLevel))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var products []model.ProductSpecification
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: list products iterate")
}

func (s *SQLiteStore) AppendAuditEntries(ctx context.Context, entries []model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin audit tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO audit_log (id, product_id, stage, action, before_data, after_data, confidence_change, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare audit insert")
	}
	defer stmt.Close()

	for _, e := range entries {
		beforeJSON, err := json.Marshal(e.BeforeData)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal before data")
		}
		afterJSON, err := json.Marshal(e.AfterData)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal after data")
		}
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), e.ProductID, e.Stage, e.Action,
			string(beforeJSON), string(afterJSON), e.ConfidenceChange, e.UserID, ts,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert audit entry for %s", e.ProductID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit audit tx")
}

func (s *SQLiteStore) GetAuditTrail(ctx context.Context, productID string) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, stage, action, before_data, after_data, confidence_change, user_id, created_at
		 FROM audit_log WHERE product_id = ? ORDER BY created_at, id`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get audit trail")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var beforeJSON, afterJSON sql.NullString
		var userID sql.NullString
		if err := rows.Scan(&e.ProductID, &e.Stage, &e.Action, &beforeJSON, &afterJSON, &e.ConfidenceChange, &userID, &e.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit entry")
		}
		if beforeJSON.Valid && beforeJSON.String != "null" {
			if err := json.Unmarshal([]byte(beforeJSON.String), &e.BeforeData); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal before data")
			}
		}
		if afterJSON.Valid && afterJSON.String != "null" {
			if err := json.Unmarshal([]byte(afterJSON.String), &e.AfterData); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal after data")
			}
		}
		e.UserID = userID.String
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: audit trail iterate")
}

func (s *SQLiteStore) GetProcessingStatistics(ctx context.Context) (*Statistics, error) {
	var stats Statistics
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN confidence_level = 'HIGH' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN confidence_level = 'MEDIUM' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN confidence_level = 'LOW' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(overall_confidence), 0)
		 FROM products`,
	).Scan(&stats.TotalProducts, &stats.HighConfidence, &stats.MediumConfidence, &stats.LowConfidence, &stats.AverageConfidence)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: product statistics")
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&stats.AuditEntries)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: audit statistics")
	}
	return &stats, nil
}

// helpers

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProduct(row scannable) (*model.ProductSpecification, error) {
	var p model.ProductSpecification
	var baseModelID, modelName, processedBy sql.NullString
	var specsJSON, optionsJSON, resultsJSON sql.NullString

	err := row.Scan(&p.ProductID, &p.ModelCode, &baseModelID, &p.Brand, &modelName, &p.ModelYear, &p.Price,
		&specsJSON, &optionsJSON, &p.OverallConfidence, &p.ConfidenceLevel, &resultsJSON,
		&p.CreatedAt, &processedBy)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, eris.Wrap(err, "store: scan product")
	}

	p.BaseModelID = baseModelID.String
	p.ModelName = modelName.String
	p.ProcessedBy = processedBy.String

	if specsJSON.Valid && specsJSON.String != "null" {
		if err := json.Unmarshal([]byte(specsJSON.String), &p.Specifications); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal specifications")
		}
	}
	if optionsJSON.Valid && optionsJSON.String != "null" {
		if err := json.Unmarshal([]byte(optionsJSON.String), &p.SpringOptions); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal spring options")
		}
	}
	if resultsJSON.Valid && resultsJSON.String != "null" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &p.PipelineResults); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal pipeline results")
		}
	}
	return &p, nil
}
