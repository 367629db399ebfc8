package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"docllama/models"
)

// FileIndex is a MemoryIndex persisted as a JSON snapshot after every write.
// A write that cannot be persisted is rolled back in memory.
type FileIndex struct {
	mem  *MemoryIndex
	path string
}

func NewFileIndex(path string) (*FileIndex, error) {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: ensure directory %q: %w", models.ErrIndex, dir, err)
	}
	f := &FileIndex{mem: NewMemoryIndex(), path: path}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileIndex) Upsert(_ context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	f.mem.mu.Lock()
	defer f.mem.mu.Unlock()

	prev, prevDim := f.mem.snapshotLocked()
	if err := f.mem.upsertLocked(entries); err != nil {
		return err
	}
	if err := f.persistLocked(); err != nil {
		f.mem.restoreLocked(prev, prevDim)
		return err
	}
	return nil
}

func (f *FileIndex) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	return f.mem.Query(ctx, vector, k)
}

func (f *FileIndex) Prune(_ context.Context, file string, keep []string) (int, error) {
	f.mem.mu.Lock()
	defer f.mem.mu.Unlock()

	prev, prevDim := f.mem.snapshotLocked()
	removed := f.mem.pruneLocked(file, keep)
	if removed == 0 {
		return 0, nil
	}
	if err := f.persistLocked(); err != nil {
		f.mem.restoreLocked(prev, prevDim)
		return 0, err
	}
	return removed, nil
}

func (f *FileIndex) Count(ctx context.Context) (int, error) {
	return f.mem.Count(ctx)
}

func (f *FileIndex) Close(context.Context) error {
	return nil
}

type snapshot struct {
	Dimension int             `json:"dimension"`
	Entries   []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	ID       string               `json:"id"`
	Text     string               `json:"text"`
	Vector   []float32            `json:"vector"`
	Metadata models.ChunkMetadata `json:"metadata"`
}

func (f *FileIndex) load() error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %q: %w", models.ErrIndex, f.path, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: decode %q: %w", models.ErrIndex, f.path, err)
	}

	entries := make([]Entry, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		entries = append(entries, Entry{ID: e.ID, Text: e.Text, Vector: e.Vector, Metadata: e.Metadata})
	}
	f.mem.mu.Lock()
	defer f.mem.mu.Unlock()
	f.mem.dimension = snap.Dimension
	return f.mem.upsertLocked(entries)
}

func (f *FileIndex) persistLocked() error {
	snap := snapshot{
		Dimension: f.mem.dimension,
		Entries:   make([]snapshotEntry, 0, len(f.mem.entries)),
	}
	for _, e := range f.mem.entries {
		snap.Entries = append(snap.Entries, snapshotEntry{ID: e.ID, Text: e.Text, Vector: e.Vector, Metadata: e.Metadata})
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].ID < snap.Entries[j].ID })

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", models.ErrIndex, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: write snapshot: %w", models.ErrIndex, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write snapshot: %w", models.ErrIndex, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: write snapshot: %w", models.ErrIndex, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("%w: commit snapshot: %w", models.ErrIndex, err)
	}
	return nil
}
