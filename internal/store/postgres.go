package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sledworks/catalog-cli/internal/db"
	"github.com/sledworks/catalog-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	productColumns = `id, model_code, base_model_id, brand, model_name, model_year, price,
		specifications, spring_options, overall_confidence, confidence_level, pipeline_results,
		created_at, processed_by`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_product": `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
	"get_by_model_code": `SELECT ` + productColumns + ` FROM products
		WHERE model_code = $1 AND model_year = $2 ORDER BY created_at DESC LIMIT 1`,
	"insert_audit": `INSERT INTO audit_log (id, product_id, stage, action, before_data, after_data, confidence_change, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"get_audit_trail": `SELECT product_id, stage, action, before_data, after_data, confidence_change, user_id, created_at
		FROM audit_log WHERE product_id = $1 ORDER BY created_at, id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., bulk catalog imports).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	model_code         TEXT NOT NULL,
	base_model_id      TEXT,
	brand              TEXT NOT NULL,
	model_name         TEXT,
	model_year         INTEGER NOT NULL,
	price              NUMERIC NOT NULL,
	specifications     JSONB,
	spring_options     JSONB,
	overall_confidence DOUBLE PRECISION NOT NULL,
	confidence_level   TEXT NOT NULL,
	pipeline_results   JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_by       TEXT
);

CREATE TABLE IF NOT EXISTS audit_log (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_id        TEXT NOT NULL,
	stage             TEXT NOT NULL,
	action            TEXT NOT NULL,
	before_data       JSONB,
	after_data        JSONB,
	confidence_change DOUBLE PRECISION NOT NULL DEFAULT 0,
	user_id           TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_products_model_code ON products(model_code, model_year);
CREATE INDEX IF NOT EXISTS idx_products_brand_year ON products(brand, model_year);
CREATE INDEX IF NOT EXISTS idx_products_confidence ON products(confidence_level);
CREATE INDEX IF NOT EXISTS idx_audit_log_product_id ON audit_log(product_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p *model.ProductSpecification, auditUser string) (string, error) {
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
		return "", eris.Wrap(err, "postgres: marshal specifications")
	}
	optionsJSON, err := json.Marshal(p.SpringOptions)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal spring options")
	}
	resultsJSON, err := json.Marshal(p.PipelineResults)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal pipeline results")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO products (id, model_code, base_model_id, brand, model_name, model_year, price,
			specifications, spring_options, overall_confidence, confidence_level, pipeline_results,
			created_at, processed_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, p.ModelCode, nullable(p.BaseModelID), p.Brand, nullable(p.ModelName), p.ModelYear, p.Price,
		string(specsJSON), string(optionsJSON), p.OverallConfidence, string(p.ConfidenceLevel),
		string(resultsJSON), createdAt, processedBy,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert product %s", p.ModelCode)
	}
	return id, nil
}

func (s *PostgresStore) GetByModelCode(ctx context.Context, modelCode string, modelYear int) (*model.ProductSpecification, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, model_code, base_model_id, brand, model_name, model_year, price,
			specifications, spring_options, overall_confidence, confidence_level, pipeline_results,
			created_at, processed_by
		 FROM products WHERE model_code = $1 AND model_year = $2
		 ORDER BY created_at DESC LIMIT 1`,
		modelCode, modelYear,
	)
	p, err := scanProduct(row)
	if isNoRows(err) {
		return nil, nil
	}
	return p, err
}

func (s *PostgresStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductSpecification, error) {
	query := `SELECT id, model_code, base_model_id, brand, model_name, model_year, price,
		specifications, spring_options, overall_confidence, confidence_level, pipeline_results,
		created_at, processed_by
		FROM products WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Brand != "" {
		query += ` AND brand = ` + arg(filter.Brand)
	}
	if filter.ModelYear != 0 {
		query += ` AND model_year = ` + arg(filter.ModelYear)
	}
	if filter.ConfidenceLevel != "" {
		query += ` AND confidence_level = ` + arg(string(filter.ConfidenceLevel))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
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
	return products, eris.Wrap(rows.Err(), "postgres: list products iterate")
}

// bulkAuditThreshold is the batch size above which audit appends switch to
// the COPY protocol. The table is append-only so COPY needs no conflict
// handling.
const bulkAuditThreshold = 20

func (s *PostgresStore) AppendAuditEntries(ctx context.Context, entries []model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if len(entries) >= bulkAuditThreshold {
		return s.copyAuditEntries(ctx, entries)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin audit tx")
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		beforeJSON, err := json.Marshal(e.BeforeData)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal before data")
		}
		afterJSON, err := json.Marshal(e.AfterData)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal after data")
		}
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO audit_log (id, product_id, stage, action, before_data, after_data, confidence_change, user_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.New().String(), e.ProductID, e.Stage, e.Action,
			string(beforeJSON), string(afterJSON), e.ConfidenceChange, e.UserID, ts,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert audit entry for %s", e.ProductID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit audit tx")
}

var auditColumns = []string{
	"id", "product_id", "stage", "action", "before_data", "after_data",
	"confidence_change", "user_id", "created_at",
}

func (s *PostgresStore) copyAuditEntries(ctx context.Context, entries []model.AuditEntry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		beforeJSON, err := json.Marshal(e.BeforeData)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal before data")
		}
		afterJSON, err := json.Marshal(e.AfterData)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal after data")
		}
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		rows = append(rows, []any{
			uuid.New().String(), e.ProductID, e.Stage, e.Action,
			string(beforeJSON), string(afterJSON), e.ConfidenceChange, e.UserID, ts,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "audit_log", auditColumns, rows)
	return eris.Wrap(err, "postgres: copy audit entries")
}

func (s *PostgresStore) GetAuditTrail(ctx context.Context, productID string) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT product_id, stage, action, before_data, after_data, confidence_change, user_id, created_at
		 FROM audit_log WHERE product_id = $1 ORDER BY created_at, id`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get audit trail")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var beforeJSON, afterJSON, userID *string
		if err := rows.Scan(&e.ProductID, &e.Stage, &e.Action, &beforeJSON, &afterJSON, &e.ConfidenceChange, &userID, &e.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit entry")
		}
		if beforeJSON != nil && *beforeJSON != "null" {
			if err := json.Unmarshal([]byte(*beforeJSON), &e.BeforeData); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal before data")
			}
		}
		if afterJSON != nil && *afterJSON != "null" {
			if err := json.Unmarshal([]byte(*afterJSON), &e.AfterData); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal after data")
			}
		}
		if userID != nil {
			e.UserID = *userID
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: audit trail iterate")
}

// isNoRows matches the no-result sentinels of both drivers.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (s *PostgresStore) GetProcessingStatistics(ctx context.Context) (*Statistics, error) {
	var stats Statistics
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN confidence_level = 'HIGH' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN confidence_level = 'MEDIUM' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN confidence_level = 'LOW' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(overall_confidence), 0)
		 FROM products`,
	).Scan(&stats.TotalProducts, &stats.HighConfidence, &stats.MediumConfidence, &stats.LowConfidence, &stats.AverageConfidence)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: product statistics")
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&stats.AuditEntries)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: audit statistics")
	}
	return &stats, nil
}
