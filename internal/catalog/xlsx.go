package catalog

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sledworks/catalog-cli/internal/model"
)

// XLSXImportOptions configures a price-list import.
type XLSXImportOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // header rows to skip
	Brand      string // brand to stamp on every imported model
	ModelYear  int    // model year to stamp on every imported model
	Source     string // source catalog label, defaults to the file path
}

// Expected columns, in order: base_model_id, model_name, category, engine,
// displacement, cylinders. Extra columns are ignored.
const minImportColumns = 2

// ImportXLSX reads a manufacturer price-list workbook and converts rows to
// base model specifications. Rows missing an id or name are skipped with a
// warning rather than failing the import. Extraction quality reflects how
// complete the row was.
func ImportXLSX(path string, opts XLSXImportOptions) ([]model.BaseModelSpecification, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open xlsx")
	}

	sheet, err := importSheet(f, opts)
	if err != nil {
		return nil, err
	}

	source := opts.Source
	if source == "" {
		source = path
	}

	var out []model.BaseModelSpecification
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		cells := rowToStrings(row)
		if len(cells) < minImportColumns || strings.TrimSpace(cells[0]) == "" {
			continue
		}

		m := model.BaseModelSpecification{
			BaseModelID:   strings.ToLower(strings.TrimSpace(cells[0])),
			ModelName:     strings.TrimSpace(cells[1]),
			Brand:         opts.Brand,
			ModelYear:     opts.ModelYear,
			SourceCatalog: source,
		}
		if m.ModelName == "" {
			zap.L().Warn("catalog: skipping xlsx row without model name",
				zap.Int("row", i),
				zap.String("base_model_id", m.BaseModelID),
			)
			continue
		}

		filled := 2
		if len(cells) > 2 && strings.TrimSpace(cells[2]) != "" {
			m.Category = strings.TrimSpace(cells[2])
			filled++
		}
		specs := make(map[string]string)
		if len(cells) > 3 && strings.TrimSpace(cells[3]) != "" {
			specs["engine"] = strings.TrimSpace(cells[3])
			filled++
		}
		if len(cells) > 4 && strings.TrimSpace(cells[4]) != "" {
			specs["displacement"] = strings.TrimSpace(cells[4])
			filled++
		}
		if len(cells) > 5 && strings.TrimSpace(cells[5]) != "" {
			if _, err := strconv.Atoi(strings.TrimSpace(cells[5])); err == nil {
				specs["cylinders"] = strings.TrimSpace(cells[5])
				filled++
			}
		}
		if len(specs) > 0 {
			m.EngineSpecs = specs
		}

		// Complete rows score higher; two filled columns is the floor.
		m.ExtractionQuality = float64(filled) / 6.0

		out = append(out, m)
	}

	zap.L().Info("catalog: xlsx import parsed",
		zap.String("path", path),
		zap.Int("models", len(out)),
	)
	return out, nil
}

func importSheet(f *xlsx.File, opts XLSXImportOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("catalog: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("catalog: sheet index %d out of range (%d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
