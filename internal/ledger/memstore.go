package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps the snapshot in process. Used for dry runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	snap  *Snapshot
	saves int
	// SaveErr, when set, is returned by every Save.
	SaveErr error
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(context.Context) (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return Snapshot{}, false, nil
	}
	return cloneSnapshot(*m.snap), true, nil
}

func (m *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	c := cloneSnapshot(snap)
	m.snap = &c
	m.saves++
	return nil
}

// Saves counts successful saves.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
