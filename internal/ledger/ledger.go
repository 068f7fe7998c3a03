// Package ledger holds caption text that arrived before its image.
//
// A caption file whose NameKey matches no known image is staged here and
// taken when an image with the same key is ingested, in the same batch or a
// later one. The ledger lives for the process only; confirmed captions are
// stored on the image record.
package ledger

import (
	"sort"
	"sync"
)

// Pending is one staged caption.
type Pending struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Ledger maps NameKeys to pending caption text. At most one entry exists per
// key; staging an existing key overwrites it. All methods are goroutine-safe.
type Ledger struct {
	mu      sync.Mutex
	pending map[string]string
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{pending: make(map[string]string)}
}

// Stage records text for key, replacing any earlier pending text.
// It reports whether an earlier entry was replaced.
func (l *Ledger) Stage(key, text string) (replaced bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, replaced = l.pending[key]
	l.pending[key] = text
	return replaced
}

// Take removes and returns the pending text for key. ok is false when
// nothing is pending, which is not an error.
func (l *Ledger) Take(key string) (text string, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	text, ok = l.pending[key]
	if ok {
		delete(l.pending, key)
	}
	return text, ok
}

// Clear drops every pending entry.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.pending)
}

// Len returns the number of pending entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Snapshot returns a copy of the pending entries sorted by key.
func (l *Ledger) Snapshot() []Pending {
	l.mu.Lock()
	out := make([]Pending, 0, len(l.pending))
	for k, v := range l.pending {
		out = append(out, Pending{Key: k, Text: v})
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Registry hands out one ledger per project.
type Registry struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ledgers: make(map[string]*Ledger)}
}

// For returns the ledger for projectID, creating it on first use.
func (r *Registry) For(projectID string) *Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[projectID]
	if !ok {
		l = New()
		r.ledgers[projectID] = l
	}
	return l
}

// Drop clears and forgets the ledger for projectID.
func (r *Registry) Drop(projectID string) {
	r.mu.Lock()
	l, ok := r.ledgers[projectID]
	delete(r.ledgers, projectID)
	r.mu.Unlock()
	if ok {
		l.Clear()
	}
}
