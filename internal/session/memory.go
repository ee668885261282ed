package session

import (
	"context"
	"sync"

	"github.com/stridehq/sportiva-adapter/pkg/model"
)

// MemoryStore is an in-process session store used in tests and for
// short-lived one-shot runs where persistence is not needed.
type MemoryStore struct {
	mu   sync.RWMutex
	pair model.TokenPair
	set  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Tokens(ctx context.Context) (model.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return model.TokenPair{}, ErrNoSession
	}
	return s.pair, nil
}

func (s *MemoryStore) Save(ctx context.Context, pair model.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	s.set = true
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = model.TokenPair{}
	s.set = false
	return nil
}
