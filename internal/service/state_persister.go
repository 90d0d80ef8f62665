package service

import (
	"fmt"
	"sync"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/state"
)

// StatePersister serializes read-modify-write cycles on state.json so the
// role and membership services never overwrite each other's sections.
type StatePersister struct {
	store *state.FileStateStore
	mu    sync.Mutex
}

// NewStatePersister wraps store. A nil store makes Update a no-op, for
// runs that keep rules in memory only.
func NewStatePersister(store *state.FileStateStore) *StatePersister {
	return &StatePersister{store: store}
}

// Update loads the current state, applies fn and saves the result. Nothing
// is written when fn fails.
func (p *StatePersister) Update(fn func(*state.AppState) error) error {
	if p == nil || p.store == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	appState, err := p.store.Load()
	if err != nil {
		return fmt.Errorf("load state for persistence: %w", err)
	}
	if err := fn(appState); err != nil {
		return err
	}
	if err := p.store.Save(appState); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
