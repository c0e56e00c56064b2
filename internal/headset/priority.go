package headset

import (
	"context"
	"sync"
)

// PriorityStore persists per-device connection priority.
//
// Priority outlives connections and registry records. Implementations must
// be safe for concurrent use.
type PriorityStore interface {
	// Get returns the stored priority, or PriorityUndefined if never set.
	Get(ctx context.Context, id DeviceID) (Priority, error)

	// Set stores the priority for id. Failures are returned, not retried.
	Set(ctx context.Context, id DeviceID, p Priority) error
}

// MemoryPriorityStore is an in-process PriorityStore.
type MemoryPriorityStore struct {
	mu         sync.RWMutex
	priorities map[DeviceID]Priority
}

// NewMemoryPriorityStore creates an empty in-memory store.
func NewMemoryPriorityStore() *MemoryPriorityStore {
	return &MemoryPriorityStore{priorities: make(map[DeviceID]Priority)}
}

// Get implements PriorityStore.
func (m *MemoryPriorityStore) Get(_ context.Context, id DeviceID) (Priority, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.priorities[id]; ok {
		return p, nil
	}
	return PriorityUndefined, nil
}

// Set implements PriorityStore.
func (m *MemoryPriorityStore) Set(_ context.Context, id DeviceID, p Priority) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priorities[id] = p
	return nil
}
