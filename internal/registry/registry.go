package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sledworks/catalog-cli/internal/model"
)

// Document processing states.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// DocumentProgress tracks extraction progress for one source document.
// CompletedPages only ever grows.
type DocumentProgress struct {
	TotalPages     int    `json:"total_pages"`
	CompletedPages []int  `json:"completed_pages"`
	ArticleCount   int    `json:"article_count"`
	Status         string `json:"status"`
}

func (d *DocumentProgress) hasPage(page int) bool {
	for _, p := range d.CompletedPages {
		if p == page {
			return true
		}
	}
	return false
}

// Metadata describes a registry build.
type Metadata struct {
	BuildTimestamp     time.Time                    `json:"build_timestamp"`
	BrandsProcessed    []string                     `json:"brands_processed"`
	YearsProcessed     []int                        `json:"years_processed"`
	ProcessingProgress map[string]*DocumentProgress `json:"processing_progress"`
}

// Article is one extracted line-item record, keyed by article code. Same-code
// conflicts between runs are last-write-wins.
type Article struct {
	Code      string             `json:"code"`
	Entry     model.CatalogEntry `json:"entry"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// File is the on-disk registry document.
type File struct {
	Metadata      Metadata                       `json:"metadata"`
	Articles      map[string]Article             `json:"articles"`
	LookupIndexes map[string]map[string][]string `json:"lookup_indexes"`
}

func newFile() File {
	return File{
		Metadata: Metadata{
			BuildTimestamp:     time.Now().UTC(),
			ProcessingProgress: make(map[string]*DocumentProgress),
		},
		Articles:      make(map[string]Article),
		LookupIndexes: make(map[string]map[string][]string),
	}
}

// Registry is the crash-safe record of extraction progress and results.
// Completed work is persisted write-through so an interrupted run never
// repeats already-metered pages, and every persist merges against the
// on-disk state so multiple resumed runs can share one file. Safe for
// concurrent use.
type Registry struct {
	mu   sync.Mutex
	path string
	data File
}

// Load opens the registry at path, creating a fresh one when the file does
// not exist. A corrupt file is logged and replaced with a fresh registry
// rather than aborting the run; newly computed data is never discarded for
// the sake of old corrupt state.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, data: newFile()}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "registry: read file")
	}

	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		zap.L().Warn("registry: corrupt registry file, starting fresh",
			zap.String("path", path),
			zap.Error(err),
		)
		return r, nil
	}
	normalize(&f)
	r.data = f
	return r, nil
}

// Path returns the backing file path.
func (r *Registry) Path() string {
	return r.path
}

// IsPageProcessed reports whether a page of a document already yielded
// results. Pure query.
func (r *Registry) IsPageProcessed(docID string, page int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prog, ok := r.data.Metadata.ProcessingProgress[docID]
	return ok && prog.hasPage(page)
}

// DocumentStatus returns the progress record for a document, or nil.
func (r *Registry) DocumentStatus(docID string) *DocumentProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	prog, ok := r.data.Metadata.ProcessingProgress[docID]
	if !ok {
		return nil
	}
	cp := *prog
	cp.CompletedPages = append([]int(nil), prog.CompletedPages...)
	return &cp
}

// StartDocument records the page count for a document without marking any
// page complete.
func (r *Registry) StartDocument(docID string, totalPages int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prog := r.progressLocked(docID)
	if totalPages > prog.TotalPages {
		prog.TotalPages = totalPages
	}
}

// MarkPageCompleted records one finished page and persists immediately, so a
// crash right after never loses the fact. Re-marking an already-completed
// page is a no-op that still succeeds.
func (r *Registry) MarkPageCompleted(docID string, page, articlesOnPage int) error {
	r.mu.Lock()
	prog := r.progressLocked(docID)
	if !prog.hasPage(page) {
		prog.CompletedPages = append(prog.CompletedPages, page)
		sort.Ints(prog.CompletedPages)
		prog.ArticleCount += articlesOnPage
	}
	if prog.TotalPages > 0 && len(prog.CompletedPages) >= prog.TotalPages {
		prog.Status = StatusCompleted
	}
	r.mu.Unlock()

	return r.Persist()
}

// PutArticle records an extracted article, last-write-wins on the code.
func (r *Registry) PutArticle(code string, entry model.CatalogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.Articles[code] = Article{
		Code:      code,
		Entry:     entry,
		UpdatedAt: time.Now().UTC(),
	}
}

// AddIndexEntry unions an article code into a lookup index key.
func (r *Registry) AddIndexEntry(index, key, articleCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.data.LookupIndexes[index]
	if idx == nil {
		idx = make(map[string][]string)
		r.data.LookupIndexes[index] = idx
	}
	idx[key] = unionStrings(idx[key], []string{articleCode})
}

// RecordScope unions a brand and year into the registry metadata. Either
// side may be absent; price-list rows without a model year still record
// their brand.
func (r *Registry) RecordScope(brand string, year int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if brand != "" {
		r.data.Metadata.BrandsProcessed = unionStrings(r.data.Metadata.BrandsProcessed, []string{brand})
	}
	if year != 0 {
		r.data.Metadata.YearsProcessed = unionInts(r.data.Metadata.YearsProcessed, []int{year})
	}
}

// Scope returns the brands and model years recorded so far.
func (r *Registry) Scope() (brands []string, years []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.data.Metadata.BrandsProcessed...),
		append([]int(nil), r.data.Metadata.YearsProcessed...)
}

// Articles returns a copy of the article map.
func (r *Registry) Articles() map[string]Article {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Article, len(r.data.Articles))
	for k, v := range r.data.Articles {
		out[k] = v
	}
	return out
}

// Lookup returns the article codes unioned under an index key.
func (r *Registry) Lookup(index, key string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.data.LookupIndexes[index][key]...)
}

// Persist merges the in-memory state against the current on-disk file and
// writes the result atomically. The merge preserves on-disk entries absent
// from memory, unions lookup indexes and completed pages, and resolves
// same-code article conflicts last-write-wins, so concurrent resumed runs
// sharing the file never clobber each other's results.
func (r *Registry) Persist() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged := r.data
	if raw, err := os.ReadFile(r.path); err == nil {
		var disk File
		if err := json.Unmarshal(raw, &disk); err != nil {
			zap.L().Warn("registry: on-disk file corrupt at persist, overwriting",
				zap.String("path", r.path),
				zap.Error(err),
			)
		} else {
			normalize(&disk)
			merged = Merge(disk, r.data)
		}
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return eris.Wrap(err, "registry: marshal")
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "registry: create directory")
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "registry: write temp file")
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return eris.Wrap(err, "registry: rename temp file")
	}

	r.data = merged
	return nil
}

// Merge combines two registry files. Articles from b win same-code
// conflicts, lookup indexes and completed pages are unioned, and documents
// or index keys present in only one side are preserved. On disjoint article
// sets the operation is commutative.
func Merge(a, b File) File {
	out := newFile()
	out.Metadata.BuildTimestamp = laterTime(a.Metadata.BuildTimestamp, b.Metadata.BuildTimestamp)
	out.Metadata.BrandsProcessed = unionStrings(a.Metadata.BrandsProcessed, b.Metadata.BrandsProcessed)
	out.Metadata.YearsProcessed = unionInts(a.Metadata.YearsProcessed, b.Metadata.YearsProcessed)

	for doc, prog := range a.Metadata.ProcessingProgress {
		cp := *prog
		cp.CompletedPages = append([]int(nil), prog.CompletedPages...)
		out.Metadata.ProcessingProgress[doc] = &cp
	}
	for doc, prog := range b.Metadata.ProcessingProgress {
		existing, ok := out.Metadata.ProcessingProgress[doc]
		if !ok {
			cp := *prog
			cp.CompletedPages = append([]int(nil), prog.CompletedPages...)
			out.Metadata.ProcessingProgress[doc] = &cp
			continue
		}
		existing.CompletedPages = unionInts(existing.CompletedPages, prog.CompletedPages)
		if prog.TotalPages > existing.TotalPages {
			existing.TotalPages = prog.TotalPages
		}
		if prog.ArticleCount > existing.ArticleCount {
			existing.ArticleCount = prog.ArticleCount
		}
		if existing.Status == StatusCompleted || prog.Status == StatusCompleted {
			existing.Status = StatusCompleted
		}
	}

	for code, art := range a.Articles {
		out.Articles[code] = art
	}
	for code, art := range b.Articles {
		out.Articles[code] = art
	}

	for index, keys := range a.LookupIndexes {
		m := make(map[string][]string, len(keys))
		for k, v := range keys {
			m[k] = append([]string(nil), v...)
		}
		out.LookupIndexes[index] = m
	}
	for index, keys := range b.LookupIndexes {
		m, ok := out.LookupIndexes[index]
		if !ok {
			m = make(map[string][]string, len(keys))
			out.LookupIndexes[index] = m
		}
		for k, v := range keys {
			m[k] = unionStrings(m[k], v)
		}
	}

	return out
}

func (r *Registry) progressLocked(docID string) *DocumentProgress {
	prog, ok := r.data.Metadata.ProcessingProgress[docID]
	if !ok {
		prog = &DocumentProgress{Status: StatusInProgress}
		r.data.Metadata.ProcessingProgress[docID] = prog
	}
	return prog
}

func normalize(f *File) {
	if f.Metadata.ProcessingProgress == nil {
		f.Metadata.ProcessingProgress = make(map[string]*DocumentProgress)
	}
	if f.Articles == nil {
		f.Articles = make(map[string]Article)
	}
	if f.LookupIndexes == nil {
		f.LookupIndexes = make(map[string]map[string][]string)
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func unionInts(a, b []int) []int {
	seen := make(map[int]struct{}, len(a)+len(b))
	var out []int
	for _, list := range [][]int{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

func laterTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
