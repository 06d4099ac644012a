// SPDX-License-Identifier: MIT

package masters

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Index is the inventory of saved master frames. Implementations must be
// safe for concurrent use; the pipeline saves from several detector workers
// at once.
type Index interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, typ Type, key string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// NewIndex constructs an index for the given backend ("memory" or "sqlite").
func NewIndex(backend, dbPath string) (Index, error) {
	switch backend {
	case "memory":
		return NewMemoryIndex(), nil
	case "sqlite":
		return OpenSQLiteIndex(dbPath)
	default:
		return nil, fmt.Errorf("unknown masters backend %q", backend)
	}
}

// MemoryIndex keeps the inventory in process memory. Suitable for one-shot
// runs where masters are rebuilt every time.
type MemoryIndex struct {
	mu   sync.RWMutex
	recs map[string]Record
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{recs: make(map[string]Record)}
}

func indexKey(typ Type, key string) string {
	return string(typ) + "/" + key
}

// Put stores or replaces a record.
func (m *MemoryIndex) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[indexKey(rec.Type, rec.Key)] = rec
	return nil
}

// Get looks up a record, returning ErrNotFound on a miss.
func (m *MemoryIndex) Get(_ context.Context, typ Type, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[indexKey(typ, key)]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s %s", ErrNotFound, typ, key)
	}
	return rec, nil
}

// List returns all records sorted by type then key.
func (m *MemoryIndex) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// Close is a no-op for the memory backend.
func (m *MemoryIndex) Close() error { return nil }
