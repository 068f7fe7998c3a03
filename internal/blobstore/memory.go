package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps objects in a map. Useful for tests and throwaway runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject

	// FailPut, when set, is consulted before every Put and Move; a non-nil
	// return aborts the call. Tests use it to inject storage faults.
	FailPut func(key string) error

	// FailRemove, when set, is consulted before every Remove.
	FailRemove func(keys []string) error
}

type memObject struct {
	data        []byte
	contentType string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject)}
}

func (m *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if m.FailPut != nil {
		if err := m.FailPut(key); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("put %s: read: %w", key, err)
	}
	m.mu.Lock()
	m.objects[key] = memObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStore) Move(_ context.Context, from, to string) error {
	if err := ValidateKey(to); err != nil {
		return err
	}
	if m.FailPut != nil {
		if err := m.FailPut(to); err != nil {
			return fmt.Errorf("move %s: %w", from, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[from]
	if !ok {
		return fmt.Errorf("move %s: %w", from, ErrNotFound)
	}
	delete(m.objects, from)
	m.objects[to] = obj
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, keys []string) error {
	if m.FailRemove != nil {
		if err := m.FailRemove(keys); err != nil {
			return err
		}
	}
	m.mu.Lock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	m.mu.Unlock()
	return nil
}

// Keys returns every stored key with the given prefix, sorted.
func (m *MemoryStore) Keys(prefix string) []string {
	m.mu.RLock()
	var out []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// ContentType returns the content type recorded for key.
func (m *MemoryStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].contentType
}
