package store

import (
	"context"
	"sync"
)

// MemoryStore keeps the "persisted" map in process. It backs tests and the memory
// backend, which trades durability for zero setup.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]int64
	saves    int
	failWith error
}

func NewMemoryStore(seed map[string]int64) *MemoryStore {
	return &MemoryStore{balances: copyBalances(seed)}
}

func (s *MemoryStore) Load(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	return copyBalances(s.balances), nil
}

func (s *MemoryStore) Save(_ context.Context, balances map[string]int64) error {
	if err := validateBalances(balances); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.balances = copyBalances(balances)
	s.saves++
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Saves reports how many successful saves the store has received.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// FailWith makes subsequent Load and Save calls return err. Pass nil to recover.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}
