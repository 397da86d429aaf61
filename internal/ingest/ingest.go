package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sledworks/catalog-cli/internal/model"
	"github.com/sledworks/catalog-cli/internal/registry"
)

// Page is one page of source document text. The runner is agnostic to how
// the text was produced (OCR, PDF extraction, plain files).
type Page struct {
	DocumentID string
	Number     int
	Text       string
}

// PageSource supplies document pages in order. Next returns false when the
// source is exhausted; a non-nil error aborts the document.
type PageSource interface {
	// TotalPages is the page count for resumption bookkeeping. Sources
	// that cannot know it up front return 0.
	TotalPages() int
	Next() (Page, bool, error)
}

// EntryParser turns one page of text into catalog entries. Parsers return
// an empty slice, not an error, for pages with no line items on them.
type EntryParser interface {
	Parse(ctx context.Context, page Page) ([]model.CatalogEntry, error)
}

// Runner drives resumable extraction: it skips pages the registry already
// has, parses the rest, and records every completed page write-through so
// an interrupted run never repeats metered work.
type Runner struct {
	registry *registry.Registry
	parser   EntryParser
}

// NewRunner creates a Runner over the given registry and parser.
func NewRunner(reg *registry.Registry, parser EntryParser) *Runner {
	return &Runner{registry: reg, parser: parser}
}

// RunStats summarizes one document extraction pass.
type RunStats struct {
	PagesSeen    int `json:"pages_seen"`
	PagesSkipped int `json:"pages_skipped"`
	PagesFailed  int `json:"pages_failed"`
	Entries      int `json:"entries"`
}

// Run consumes a source to exhaustion. Already-processed pages are skipped
// without invoking the parser; a page-level parse error is recorded and the
// run continues with the next page. Cancellation stops before the next page
// and leaves the registry consistent with all completed work.
func (r *Runner) Run(ctx context.Context, source PageSource) (RunStats, []model.CatalogEntry, error) {
	var (
		stats   RunStats
		entries []model.CatalogEntry
		started bool
	)

	for {
		if err := ctx.Err(); err != nil {
			return stats, entries, eris.Wrap(err, "ingest: cancelled")
		}

		page, ok, err := source.Next()
		if err != nil {
			return stats, entries, eris.Wrap(err, "ingest: page source")
		}
		if !ok {
			return stats, entries, nil
		}
		stats.PagesSeen++

		if !started {
			r.registry.StartDocument(page.DocumentID, source.TotalPages())
			started = true
		}

		log := zap.L().With(
			zap.String("document", page.DocumentID),
			zap.Int("page", page.Number),
		)

		if r.registry.IsPageProcessed(page.DocumentID, page.Number) {
			stats.PagesSkipped++
			log.Debug("ingest: page already processed, skipping")
			continue
		}

		parsed, err := r.parser.Parse(ctx, page)
		if err != nil {
			stats.PagesFailed++
			log.Warn("ingest: page parse failed", zap.Error(err))
			continue
		}

		for _, entry := range parsed {
			r.registry.PutArticle(entry.ModelCode, entry)
			if entry.Brand != "" {
				r.registry.AddIndexEntry("by_brand", entry.Brand, entry.ModelCode)
			}
			r.registry.RecordScope(entry.Brand, entry.ModelYear)
		}
		entries = append(entries, parsed...)
		stats.Entries += len(parsed)

		if err := r.registry.MarkPageCompleted(page.DocumentID, page.Number, len(parsed)); err != nil {
			// The page's articles are already in memory; a persist hiccup
			// here only costs a re-parse after a crash.
			log.Warn("ingest: failed to persist page completion", zap.Error(err))
		}
	}
}

// SliceSource is a PageSource over an in-memory page list.
type SliceSource struct {
	pages []Page
	pos   int
}

// NewSliceSource creates a SliceSource.
func NewSliceSource(pages []Page) *SliceSource {
	return &SliceSource{pages: pages}
}

func (s *SliceSource) TotalPages() int {
	return len(s.pages)
}

func (s *SliceSource) Next() (Page, bool, error) {
	if s.pos >= len(s.pages) {
		return Page{}, false, nil
	}
	p := s.pages[s.pos]
	s.pos++
	return p, true, nil
}
