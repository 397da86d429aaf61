package audit

import (
	"sync"
	"time"

	"github.com/sledworks/catalog-cli/internal/model"
)

// Trail is an append-only record of every stage mutation, keyed by product
// id. Entries are never edited or deleted; reading back the full list for a
// product reconstructs how it reached its final confidence. Safe for
// concurrent use.
type Trail struct {
	mu      sync.RWMutex
	entries map[string][]model.AuditEntry
	userID  string
}

// NewTrail creates an empty Trail. Entries appended without an explicit user
// are attributed to userID.
func NewTrail(userID string) *Trail {
	return &Trail{
		entries: make(map[string][]model.AuditEntry),
		userID:  userID,
	}
}

// Record appends one entry for a stage mutation. Before and after are opaque
// snapshots owned by the trail after the call; callers must pass copies if
// they intend to keep mutating them.
func (t *Trail) Record(productID, stage, action string, before, after map[string]any, confidenceChange float64) {
	entry := model.AuditEntry{
		ProductID:        productID,
		Stage:            stage,
		Action:           action,
		BeforeData:       before,
		AfterData:        after,
		ConfidenceChange: confidenceChange,
		UserID:           t.userID,
		Timestamp:        time.Now().UTC(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[productID] = append(t.entries[productID], entry)
}

// Entries returns the append-order history for a product. The returned slice
// is a copy; the trail itself stays immutable.
func (t *Trail) Entries(productID string) []model.AuditEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	src := t.entries[productID]
	out := make([]model.AuditEntry, len(src))
	copy(out, src)
	return out
}

// All returns every entry across all products, grouped by product id.
func (t *Trail) All() map[string][]model.AuditEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]model.AuditEntry, len(t.entries))
	for id, list := range t.entries {
		cp := make([]model.AuditEntry, len(list))
		copy(cp, list)
		out[id] = cp
	}
	return out
}

// Len reports the total number of entries in the trail.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, list := range t.entries {
		n += len(list)
	}
	return n
}
