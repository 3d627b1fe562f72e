package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultMaxPerCall bounds how many turns the in-memory store keeps per call.
const defaultMaxPerCall = 200

// InMemoryStore keeps turns in process for local runs.
type InMemoryStore struct {
	mu         sync.RWMutex
	maxPerCall int
	turns      map[string][]Turn
}

func NewInMemoryStore(maxPerCall int) *InMemoryStore {
	if maxPerCall <= 0 {
		maxPerCall = defaultMaxPerCall
	}
	return &InMemoryStore{maxPerCall: maxPerCall, turns: make(map[string][]Turn)}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, turn Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	arr := append(s.turns[turn.CallSID], turn)
	if len(arr) > s.maxPerCall {
		arr = arr[len(arr)-s.maxPerCall:]
	}
	s.turns[turn.CallSID] = arr
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, callSID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[callSID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Turn, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

// Forget drops every turn of callSID.
func (s *InMemoryStore) Forget(callSID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, callSID)
}

func (s *InMemoryStore) Close() error { return nil }
