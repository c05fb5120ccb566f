package universe

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dotcommander/continuity/internal/narrative"
)

// MemoryBackend keeps universes in process memory. State is lost on exit.
type MemoryBackend struct {
	mu        sync.RWMutex
	universes map[string]*narrative.NarrativeUniverse
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{universes: make(map[string]*narrative.NarrativeUniverse)}
}

func (m *MemoryBackend) Load(ctx context.Context, id string) (*narrative.NarrativeUniverse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.universes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return u.Clone(), nil
}

func (m *MemoryBackend) Save(ctx context.Context, u *narrative.NarrativeUniverse) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.universes[u.ID] = u.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) IDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.universes)), nil
}

func (m *MemoryBackend) Close() error { return nil }
