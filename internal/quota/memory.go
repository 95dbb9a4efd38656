package quota

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/pythia/backend/internal/contracts"
)

// MemoryStore is a process-local QuotaStore for tests and single-node dev
// runs. Redis가 비활성화된 환경용
type MemoryStore struct {
	mu   sync.Mutex
	sets map[string]map[string]bool // userID:windowKey → instrument set
}

// NewMemoryStore creates an in-memory quota store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string]map[string]bool)}
}

func memKey(userID, windowKey string) string {
	return userID + ":" + windowKey
}

// Record mirrors the Redis script semantics under one lock
func (s *MemoryStore) Record(_ context.Context, userID, windowKey, instrumentKey string, limit int, _ time.Duration) (contracts.QuotaUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memKey(userID, windowKey)
	set := s.sets[key]
	if set == nil {
		set = make(map[string]bool)
		s.sets[key] = set
	}

	if set[instrumentKey] {
		return contracts.QuotaUsage{AlreadyPresent: true, Used: len(set)}, nil
	}
	if len(set) >= limit {
		return contracts.QuotaUsage{Used: len(set)}, nil
	}

	set[instrumentKey] = true
	return contracts.QuotaUsage{Counted: true, Used: len(set)}, nil
}

// Peek returns usage without modification
func (s *MemoryStore) Peek(_ context.Context, userID, windowKey, instrumentKey string) (contracts.QuotaUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.sets[memKey(userID, windowKey)]
	return contracts.QuotaUsage{
		AlreadyPresent: set[instrumentKey],
		Used:           len(set),
	}, nil
}
