package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sledworks/catalog-cli/internal/model"
)

// SQLiteStore implements Store over a local sqlite catalog database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a sqlite catalog at the given path.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "catalog: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS base_models (
	base_model_id      TEXT PRIMARY KEY,
	model_name         TEXT NOT NULL,
	brand              TEXT NOT NULL,
	model_year         INTEGER NOT NULL,
	category           TEXT NOT NULL DEFAULT '',
	engine_specs       TEXT,
	source_catalog     TEXT NOT NULL DEFAULT '',
	extraction_quality REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_base_models_brand_year ON base_models(brand, model_year);
CREATE INDEX IF NOT EXISTS idx_base_models_name ON base_models(model_name);
`

// Migrate creates the catalog schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "catalog: migrate")
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert writes base models, replacing existing rows with the same id.
func (s *SQLiteStore) Upsert(ctx context.Context, models ...model.BaseModelSpecification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "catalog: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, m := range models {
		specsJSON, err := json.Marshal(m.EngineSpecs)
		if err != nil {
			return eris.Wrapf(err, "catalog: marshal engine specs %s", m.BaseModelID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO base_models (base_model_id, model_name, brand, model_year, category, engine_specs, source_catalog, extraction_quality)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(base_model_id) DO UPDATE SET
			   model_name = excluded.model_name,
			   brand = excluded.brand,
			   model_year = excluded.model_year,
			   category = excluded.category,
			   engine_specs = excluded.engine_specs,
			   source_catalog = excluded.source_catalog,
			   extraction_quality = excluded.extraction_quality`,
			m.BaseModelID, m.ModelName, m.Brand, m.ModelYear, m.Category,
			string(specsJSON), m.SourceCatalog, m.ExtractionQuality,
		)
		if err != nil {
			return eris.Wrapf(err, "catalog: upsert %s", m.BaseModelID)
		}
	}

	return eris.Wrap(tx.Commit(), "catalog: commit upsert")
}

// FindMatchingBaseModels returns all base models matching the filter.
func (s *SQLiteStore) FindMatchingBaseModels(ctx context.Context, f Filter) ([]model.BaseModelSpecification, error) {
	query := `SELECT base_model_id, model_name, brand, model_year, category, engine_specs, source_catalog, extraction_quality
	          FROM base_models WHERE 1=1`
	var args []any

	if f.Brand != "" {
		query += ` AND brand = ? COLLATE NOCASE`
		args = append(args, f.Brand)
	}
	if f.ModelYear != 0 {
		query += ` AND model_year = ?`
		args = append(args, f.ModelYear)
	}
	if f.BaseModelID != "" {
		query += ` AND base_model_id = ? COLLATE NOCASE`
		args = append(args, f.BaseModelID)
	}
	if f.Pattern != "" {
		query += ` AND (base_model_id LIKE ? OR model_name LIKE ?)`
		like := "%" + strings.ToLower(f.Pattern) + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY base_model_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: query base models")
	}
	defer rows.Close()

	var out []model.BaseModelSpecification
	for rows.Next() {
		var m model.BaseModelSpecification
		var specsJSON sql.NullString
		if err := rows.Scan(&m.BaseModelID, &m.ModelName, &m.Brand, &m.ModelYear,
			&m.Category, &specsJSON, &m.SourceCatalog, &m.ExtractionQuality); err != nil {
			return nil, eris.Wrap(err, "catalog: scan base model")
		}
		if specsJSON.Valid && specsJSON.String != "" {
			if err := json.Unmarshal([]byte(specsJSON.String), &m.EngineSpecs); err != nil {
				return nil, eris.Wrapf(err, "catalog: unmarshal engine specs %s", m.BaseModelID)
			}
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "catalog: iterate base models")
}
