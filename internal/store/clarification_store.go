package store

import (
	"context"
	"sync"
)

// ClarificationStore remembers which normalized queries have already been
// asked a clarification, so the same query is clarified at most once and a
// confirmed resubmission proceeds instead of re-asking. Process-lifetime
// only.
type ClarificationStore interface {
	MarkAsked(ctx context.Context, normalizedQuery string) error
	WasAsked(ctx context.Context, normalizedQuery string) (bool, error)
	MarkConfirmed(ctx context.Context, normalizedQuery string) error
	WasConfirmed(ctx context.Context, normalizedQuery string) (bool, error)
}

type inMemoryClarificationStore struct {
	asked     map[string]bool
	confirmed map[string]bool
	mu        sync.RWMutex
}

func NewInMemoryClarificationStore() ClarificationStore {
	return &inMemoryClarificationStore{
		asked:     make(map[string]bool),
		confirmed: make(map[string]bool),
	}
}

func (s *inMemoryClarificationStore) MarkAsked(ctx context.Context, q string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked[q] = true
	return nil
}

func (s *inMemoryClarificationStore) WasAsked(ctx context.Context, q string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.asked[q], nil
}

func (s *inMemoryClarificationStore) MarkConfirmed(ctx context.Context, q string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed[q] = true
	return nil
}

func (s *inMemoryClarificationStore) WasConfirmed(ctx context.Context, q string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.confirmed[q], nil
}
