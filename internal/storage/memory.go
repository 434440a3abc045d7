package storage

import (
	"errors"
	"sync"

	"github.com/OKaluzny/voting-dapp/pkg/models"
)

// MemoryOperationStore is an in-memory OperationStore.
type MemoryOperationStore struct {
	mu    sync.RWMutex
	ops   map[string]models.PendingOperation
	order []string
}

func NewMemoryOperationStore() *MemoryOperationStore {
	return &MemoryOperationStore{ops: make(map[string]models.PendingOperation)}
}

func (s *MemoryOperationStore) Put(op models.PendingOperation) error {
	if op.ID == "" {
		return errors.New("operation id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[op.ID]; !ok {
		s.order = append(s.order, op.ID)
	}
	s.ops[op.ID] = op
	return nil
}

func (s *MemoryOperationStore) Get(id string) (*models.PendingOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[id]
	if !ok {
		return nil, nil
	}
	return &op, nil
}

func (s *MemoryOperationStore) List() ([]models.PendingOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.PendingOperation, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.ops[id])
	}
	return result, nil
}

func (s *MemoryOperationStore) Unresolved() ([]models.PendingOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []models.PendingOperation
	for _, id := range s.order {
		if op := s.ops[id]; op.Status == models.StatusUnknown {
			result = append(result, op)
		}
	}
	return result, nil
}
