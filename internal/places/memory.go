package places

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpvelasco/placedrop/internal/model"
)

// ErrNotFound is returned when an id does not exist in the collection.
var ErrNotFound = errors.New("place not found")

// MemoryStore is an in-memory Repository used by tests and local
// development. Guarded by an RWMutex; snapshots handed out are copies.
type MemoryStore struct {
	mu     sync.RWMutex
	list   []model.Place
	byID   map[string]int
	events *hub
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]int),
		events: newHub(),
	}
}

// Create validates and appends a place, then pushes a fresh snapshot to all
// subscribers.
func (m *MemoryStore) Create(ctx context.Context, draft Draft) (string, error) {
	if err := draft.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	id := uuid.NewString()
	m.byID[id] = len(m.list)
	m.list = append(m.list, model.Place{
		ID:          id,
		Name:        draft.Name,
		Description: draft.Description,
		Latitude:    draft.Latitude,
		Longitude:   draft.Longitude,
		MediaURL:    draft.MediaURL,
		CreatedAt:   time.Now().UTC(),
	})
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	m.events.broadcast(snapshot)
	return id, nil
}

// All returns a copy of the collection in arrival order.
func (m *MemoryStore) All(ctx context.Context) ([]model.Place, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(), nil
}

// Subscribe opens a live stream seeded with the current snapshot.
func (m *MemoryStore) Subscribe(ctx context.Context) (*Subscription, error) {
	sub := m.events.add()
	m.mu.RLock()
	snapshot := m.snapshotLocked()
	m.mu.RUnlock()
	m.events.send(sub, snapshot)
	return sub, nil
}

// SetAddress records the enriched address and pushes a fresh snapshot.
func (m *MemoryStore) SetAddress(ctx context.Context, id, address string) error {
	m.mu.Lock()
	idx, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.list[idx].Address = address
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	m.events.broadcast(snapshot)
	return nil
}

// Remove deletes a place, mirroring an external collection removal. The core
// only ever observes deletions, so this exists for tests and tooling.
func (m *MemoryStore) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	idx, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.list = append(m.list[:idx], m.list[idx+1:]...)
	delete(m.byID, id)
	for i := idx; i < len(m.list); i++ {
		m.byID[m.list[i].ID] = i
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	m.events.broadcast(snapshot)
	return nil
}

func (m *MemoryStore) snapshotLocked() []model.Place {
	out := make([]model.Place, len(m.list))
	copy(out, m.list)
	return out
}
