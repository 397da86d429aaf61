package catalog

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sledworks/catalog-cli/internal/db"
	"github.com/sledworks/catalog-cli/internal/model"
)

// PostgresStore implements Store over a shared postgres catalog. Imports go
// through the bulk upsert path since price catalogs arrive thousands of
// rows at a time.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to the catalog database.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "catalog: ping postgres")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS base_models (
	base_model_id      TEXT PRIMARY KEY,
	model_name         TEXT NOT NULL,
	brand              TEXT NOT NULL,
	model_year         INTEGER NOT NULL,
	category           TEXT NOT NULL DEFAULT '',
	engine_specs       JSONB,
	source_catalog     TEXT NOT NULL DEFAULT '',
	extraction_quality DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_base_models_brand_year ON base_models(brand, model_year);
CREATE INDEX IF NOT EXISTS idx_base_models_name ON base_models(model_name);
`

var baseModelColumns = []string{
	"base_model_id", "model_name", "brand", "model_year",
	"category", "engine_specs", "source_catalog", "extraction_quality",
}

// Migrate creates the catalog schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "catalog: migrate")
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Upsert bulk-writes base models, replacing existing rows with the same id.
func (s *PostgresStore) Upsert(ctx context.Context, models ...model.BaseModelSpecification) error {
	if len(models) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(models))
	for _, m := range models {
		specsJSON, err := json.Marshal(m.EngineSpecs)
		if err != nil {
			return eris.Wrapf(err, "catalog: marshal engine specs %s", m.BaseModelID)
		}
		rows = append(rows, []any{
			m.BaseModelID, m.ModelName, m.Brand, m.ModelYear,
			m.Category, string(specsJSON), m.SourceCatalog, m.ExtractionQuality,
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "base_models",
		Columns:      baseModelColumns,
		ConflictKeys: []string{"base_model_id"},
	}, rows)
	return eris.Wrap(err, "catalog: bulk upsert")
}

// FindMatchingBaseModels returns all base models matching the filter.
func (s *PostgresStore) FindMatchingBaseModels(ctx context.Context, f Filter) ([]model.BaseModelSpecification, error) {
	query := `SELECT base_model_id, model_name, brand, model_year, category, engine_specs, source_catalog, extraction_quality
	          FROM base_models WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.Brand != "" {
		query += ` AND LOWER(brand) = LOWER(` + arg(f.Brand) + `)`
	}
	if f.ModelYear != 0 {
		query += ` AND model_year = ` + arg(f.ModelYear)
	}
	if f.BaseModelID != "" {
		query += ` AND LOWER(base_model_id) = LOWER(` + arg(f.BaseModelID) + `)`
	}
	if f.Pattern != "" {
		like := "%" + strings.ToLower(f.Pattern) + "%"
		p := arg(like)
		query += ` AND (base_model_id ILIKE ` + p + ` OR model_name ILIKE ` + p + `)`
	}
	query += ` ORDER BY base_model_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: query base models")
	}
	defer rows.Close()

	var out []model.BaseModelSpecification
	for rows.Next() {
		var m model.BaseModelSpecification
		var specsJSON *string
		if err := rows.Scan(&m.BaseModelID, &m.ModelName, &m.Brand, &m.ModelYear,
			&m.Category, &specsJSON, &m.SourceCatalog, &m.ExtractionQuality); err != nil {
			return nil, eris.Wrap(err, "catalog: scan base model")
		}
		if specsJSON != nil && *specsJSON != "" {
			if err := json.Unmarshal([]byte(*specsJSON), &m.EngineSpecs); err != nil {
				return nil, eris.Wrapf(err, "catalog: unmarshal engine specs %s", m.BaseModelID)
			}
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "catalog: iterate base models")
}
