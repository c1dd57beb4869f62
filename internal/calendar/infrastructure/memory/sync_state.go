package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
)

// SyncStateRepository keeps sync states in memory.
type SyncStateRepository struct {
	mu     sync.Mutex
	states map[string]domain.SyncStateSnapshot
}

// NewSyncStateRepository creates an empty repository.
func NewSyncStateRepository() *SyncStateRepository {
	return &SyncStateRepository{states: make(map[string]domain.SyncStateSnapshot)}
}

func (r *SyncStateRepository) Save(_ context.Context, state *domain.SyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.SourceID()] = state.Snapshot()
	return nil
}

func (r *SyncStateRepository) FindBySource(_ context.Context, sourceID string) (*domain.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.states[sourceID]
	if !ok {
		return nil, nil
	}
	return domain.RehydrateSyncState(snap), nil
}

func (r *SyncStateRepository) FindAll(context.Context) ([]*domain.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]*domain.SyncState, 0, len(r.states))
	for _, id := range slices.Sorted(maps.Keys(r.states)) {
		states = append(states, domain.RehydrateSyncState(r.states[id]))
	}
	return states, nil
}

func (r *SyncStateRepository) DeleteAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.states)
	return nil
}
