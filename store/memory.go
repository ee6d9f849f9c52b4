package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/vektordb/vektor/model"
)

// Memory is an in-memory Store. It honors the full Store contract,
// including monotonic never-reused internal ids, but durability: everything
// is lost when the process exits. Intended for tests and ephemeral
// workloads.
type Memory struct {
	mu     sync.RWMutex
	nextID model.InternalID
	byKey  map[string]model.Record
	byID   map[model.InternalID]string
}

// Compile-time check.
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nextID: 1,
		byKey:  make(map[string]model.Record),
		byID:   make(map[model.InternalID]string),
	}
}

// Create implements Store.
func (m *Memory) Create(_ context.Context, externalID string, vector []float32, meta model.Metadata) (model.InternalID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byKey[externalID]; ok {
		return 0, ErrDuplicateKey
	}

	id := m.nextID
	m.nextID++

	m.byKey[externalID] = model.Record{
		InternalID: id,
		ExternalID: externalID,
		Vector:     slices.Clone(vector),
		Metadata:   meta.Clone(),
	}
	m.byID[id] = externalID

	return id, nil
}

// Update implements Store.
func (m *Memory) Update(_ context.Context, externalID string, vector []float32, meta model.Metadata) (model.InternalID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byKey[externalID]
	if !ok {
		return 0, ErrNotFound
	}

	if vector != nil {
		rec.Vector = slices.Clone(vector)
	}
	if meta != nil {
		rec.Metadata = meta.Clone()
	}
	m.byKey[externalID] = rec

	return rec.InternalID, nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, externalID string) (model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byKey[externalID]
	if !ok {
		return model.Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// GetByInternalID implements Store.
func (m *Memory) GetByInternalID(_ context.Context, id model.InternalID) (model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.byID[id]
	if !ok {
		return model.Record{}, ErrNotFound
	}
	return cloneRecord(m.byKey[key]), nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, externalID string) (model.InternalID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byKey[externalID]
	if !ok {
		return 0, ErrNotFound
	}

	delete(m.byKey, externalID)
	delete(m.byID, rec.InternalID)

	return rec.InternalID, nil
}

// Scan implements Store.
func (m *Memory) Scan(_ context.Context, fn func(model.Record) error) error {
	m.mu.RLock()
	records := make([]model.Record, 0, len(m.byKey))
	for _, rec := range m.byKey {
		records = append(records, cloneRecord(rec))
	}
	m.mu.RUnlock()

	slices.SortFunc(records, func(a, b model.Record) int {
		return cmp.Compare(a.InternalID, b.InternalID)
	})

	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Count implements Store.
func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey), nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}

func cloneRecord(rec model.Record) model.Record {
	rec.Vector = slices.Clone(rec.Vector)
	rec.Metadata = rec.Metadata.Clone()
	return rec
}
