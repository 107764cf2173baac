package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps records in a map. Contents are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]TransactionRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]TransactionRecord)}
}

func (m *MemoryStore) Insert(ctx context.Context, record *TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[record.ID]; exists {
		return fmt.Errorf("record %s already exists", record.ID)
	}
	m.records[record.ID] = *record
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, record *TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[record.ID]; !exists {
		return fmt.Errorf("record %s not found", record.ID)
	}
	m.records[record.ID] = *record
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[id]
	if !exists {
		return nil, fmt.Errorf("record %s not found", id)
	}
	return &record, nil
}

func (m *MemoryStore) ListUnconfirmed(ctx context.Context, limit int) ([]*TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*TransactionRecord
	for _, record := range m.records {
		if record.Status.Terminal() {
			continue
		}
		copied := record
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
