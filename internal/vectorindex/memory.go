package vectorindex

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"docllama/models"
)

// MemoryIndex keeps entries in process memory. It is safe for concurrent use.
type MemoryIndex struct {
	mu        sync.RWMutex
	entries   map[string]Entry
	dimension int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]Entry)}
}

func (m *MemoryIndex) Upsert(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(entries)
}

func (m *MemoryIndex) upsertLocked(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	dim, err := validateBatch(entries, m.dimension)
	if err != nil {
		return err
	}
	m.dimension = dim
	for _, e := range entries {
		m.entries[e.ID] = cloneEntry(e)
	}
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, vector []float32, k int) ([]Match, error) {
	if err := validateQuery(vector, k); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return []Match{}, nil
	}
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index holds %d", models.ErrIndex, len(vector), m.dimension)
	}

	matches := make([]Match, 0, len(m.entries))
	for _, e := range m.entries {
		d := cosineDistance(vector, e.Vector)
		matches = append(matches, Match{ID: e.ID, Text: e.Text, Metadata: e.Metadata, Distance: &d})
	}
	return rank(matches, k), nil
}

func (m *MemoryIndex) Prune(_ context.Context, file string, keep []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(file, keep), nil
}

func (m *MemoryIndex) pruneLocked(file string, keep []string) int {
	set := keepSet(keep)
	removed := 0
	for id, e := range m.entries {
		if e.Metadata.File != file {
			continue
		}
		if _, ok := set[id]; ok {
			continue
		}
		delete(m.entries, id)
		removed++
	}
	if len(m.entries) == 0 {
		m.dimension = 0
	}
	return removed
}

func (m *MemoryIndex) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *MemoryIndex) Close(context.Context) error {
	return nil
}

// snapshotLocked and restoreLocked let the file index undo a write it failed to persist.
func (m *MemoryIndex) snapshotLocked() (map[string]Entry, int) {
	return maps.Clone(m.entries), m.dimension
}

func (m *MemoryIndex) restoreLocked(entries map[string]Entry, dim int) {
	m.entries = entries
	m.dimension = dim
}

func cloneEntry(e Entry) Entry {
	e.Vector = append([]float32(nil), e.Vector...)
	return e
}
