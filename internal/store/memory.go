package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory. Records are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*Project
	images   map[string]map[string]*ImageRecord // projectID → imageID → record
	tokens   map[string]map[string]struct{}     // projectID → token set

	lastCreated int64
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*Project),
		images:   make(map[string]map[string]*ImageRecord),
		tokens:   make(map[string]map[string]struct{}),
	}
}

// --- Projects ---

func (m *MemoryStore) PutProject(_ context.Context, p *Project) error {
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().UnixMilli()
	}
	c := *p
	m.mu.Lock()
	m.projects[p.ID] = &c
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetProject(_ context.Context, projectID string) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (m *MemoryStore) ListProjects(_ context.Context) ([]*Project, error) {
	m.mu.RLock()
	out := make([]*Project, 0, len(m.projects))
	for _, p := range m.projects {
		c := *p
		out = append(out, &c)
	}
	m.mu.RUnlock()

	sortProjects(out)
	return out, nil
}

func (m *MemoryStore) DeleteProject(_ context.Context, projectID string) error {
	m.mu.Lock()
	delete(m.projects, projectID)
	m.mu.Unlock()
	return nil
}

// --- Images ---

func (m *MemoryStore) PutImage(_ context.Context, rec *ImageRecord) error {
	if rec.ID == "" || rec.ProjectID == "" {
		return fmt.Errorf("put image: id and project id are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.CreatedAt == 0 {
		// Strictly increasing so records created within the same
		// millisecond keep insertion order.
		now := time.Now().UnixMilli()
		if now <= m.lastCreated {
			now = m.lastCreated + 1
		}
		m.lastCreated = now
		rec.CreatedAt = now
	}
	byID, ok := m.images[rec.ProjectID]
	if !ok {
		byID = make(map[string]*ImageRecord)
		m.images[rec.ProjectID] = byID
	}
	byID[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) GetImage(_ context.Context, projectID, imageID string) (*ImageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.images[projectID][imageID]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) ListImages(_ context.Context, projectID string) ([]*ImageRecord, error) {
	m.mu.RLock()
	out := make([]*ImageRecord, 0, len(m.images[projectID]))
	for _, rec := range m.images[projectID] {
		out = append(out, rec.Clone())
	}
	m.mu.RUnlock()

	sortImages(out)
	return out, nil
}

func (m *MemoryStore) UpdateCaption(_ context.Context, projectID, imageID, caption string) error {
	return m.update(projectID, imageID, func(r *ImageRecord) { r.Caption = caption })
}

func (m *MemoryStore) UpdateLocation(_ context.Context, projectID, imageID, name, storageKey string) error {
	return m.update(projectID, imageID, func(r *ImageRecord) {
		r.OriginalName = name
		r.StorageKey = storageKey
	})
}

func (m *MemoryStore) SetDigest(_ context.Context, projectID, imageID, digest string) error {
	return m.update(projectID, imageID, func(r *ImageRecord) { r.ContentDigest = digest })
}

func (m *MemoryStore) DeleteImage(_ context.Context, projectID, imageID string) error {
	m.mu.Lock()
	delete(m.images[projectID], imageID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) update(projectID, imageID string, fn func(*ImageRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.images[projectID][imageID]
	if !ok {
		return fmt.Errorf("image %s/%s: %w", projectID, imageID, ErrNotFound)
	}
	fn(rec)
	return nil
}

// --- Tokens ---

func (m *MemoryStore) PutTokens(_ context.Context, projectID string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.tokens[projectID]
	if !ok {
		set = make(map[string]struct{})
		m.tokens[projectID] = set
	}
	for _, v := range values {
		set[v] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) ListTokens(_ context.Context, projectID string) ([]string, error) {
	m.mu.RLock()
	out := make([]string, 0, len(m.tokens[projectID]))
	for v := range m.tokens[projectID] {
		out = append(out, v)
	}
	m.mu.RUnlock()

	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) DeleteToken(_ context.Context, projectID, value string) error {
	m.mu.Lock()
	delete(m.tokens[projectID], value)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteTokens(_ context.Context, projectID string) error {
	m.mu.Lock()
	delete(m.tokens, projectID)
	m.mu.Unlock()
	return nil
}

// --- Ordering helpers shared with DynamoStore ---

// sortProjects orders projects newest first, ties broken by ID.
func sortProjects(ps []*Project) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].CreatedAt != ps[j].CreatedAt {
			return ps[i].CreatedAt > ps[j].CreatedAt
		}
		return ps[i].ID < ps[j].ID
	})
}

// sortImages orders images oldest first, ties broken by ID.
func sortImages(recs []*ImageRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt != recs[j].CreatedAt {
			return recs[i].CreatedAt < recs[j].CreatedAt
		}
		return recs[i].ID < recs[j].ID
	})
}
