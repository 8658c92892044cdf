package persistence

import (
	"context"
	"sync"

	"github.com/tsudo/taskrelay/pkg/api"
)

// InMemoryStore is a goroutine-safe InstanceStore backed by a map.
// It is not durable and is intended for tests and local development.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*api.Instance
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		instances: make(map[string]*api.Instance),
	}
}

// Ensure InMemoryStore implements the interface.
var _ InstanceStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) CreateInstance(ctx context.Context, inst *api.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; ok {
		return ErrInstanceExists
	}

	// Store a copy so callers cannot mutate store state behind the lock.
	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *InMemoryStore) GetInstance(ctx context.Context, id string) (*api.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}

	return inst.Clone(), nil
}

func (s *InMemoryStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*api.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Instance

	for _, inst := range s.instances {
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		result = append(result, inst.Clone())
	}

	return result, nil
}

func (s *InMemoryStore) Transition(ctx context.Context, from api.Status, inst *api.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.instances[inst.ID]
	if !ok {
		return ErrInstanceNotFound
	}
	if stored.Status != from {
		return ErrConflict
	}

	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *InMemoryStore) RecordAttempt(ctx context.Context, id string, attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.instances[id]
	if !ok {
		return ErrInstanceNotFound
	}
	if stored.Status != api.StatusRunning {
		return ErrConflict
	}

	stored.Attempt = attempt
	return nil
}
