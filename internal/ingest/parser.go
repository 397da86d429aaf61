package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sledworks/catalog-cli/internal/model"
)

// CSVParser parses pages whose text is delimiter-separated line items with
// a header row, the format the page-extraction tooling emits.
type CSVParser struct {
	// Comma overrides the field delimiter; zero means ','.
	Comma rune
}

// Parse decodes a page into catalog entries. Source document id, page
// number and a default extraction confidence are stamped onto each entry;
// rows missing a model code are dropped.
func (p *CSVParser) Parse(_ context.Context, page Page) ([]model.CatalogEntry, error) {
	reader := csv.NewReader(strings.NewReader(page.Text))
	if p.Comma != 0 {
		reader.Comma = p.Comma
	}
	reader.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, eris.Wrap(err, "ingest: csv header")
	}

	var entries []model.CatalogEntry
	for {
		var entry model.CatalogEntry
		if err := dec.Decode(&entry); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrap(err, "ingest: csv row")
		}
		if strings.TrimSpace(entry.ModelCode) == "" {
			continue
		}
		entry.SourceDocumentID = page.DocumentID
		entry.SourcePage = page.Number
		if entry.ExtractionConfidence == 0 {
			entry.ExtractionConfidence = 0.9
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
