package store

import (
	"context"
	"sync"
	"time"

	"github.com/veranda-labs/canvass/internal/geo"
)

// MemoryPositionStoreConfig describes the inputs for the in-process live
// position store.
type MemoryPositionStoreConfig struct {
	TTL   time.Duration
	Clock func() time.Time
}

// MemoryPositionStore holds live positions in process memory. It is the
// single-instance fallback when redis is not configured; records age out
// after the freshness TTL just as redis keys would.
type MemoryPositionStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	clock     func() time.Time
	positions map[string]memoryPositionEntry
}

type memoryPositionEntry struct {
	position  geo.RepPosition
	expiresAt time.Time
}

// NewMemoryPositionStore constructs an empty in-process position store.
func NewMemoryPositionStore(cfg MemoryPositionStoreConfig) (*MemoryPositionStore, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &MemoryPositionStore{
		ttl:       ttl,
		clock:     clock,
		positions: make(map[string]memoryPositionEntry),
	}, nil
}

// MergePosition upserts the rep's latest position and refreshes its TTL.
func (s *MemoryPositionStore) MergePosition(_ context.Context, position geo.RepPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[position.RepID] = memoryPositionEntry{
		position:  position,
		expiresAt: s.clock().Add(s.ttl),
	}
	return nil
}

// ListPositions returns the unexpired live position records.
func (s *MemoryPositionStore) ListPositions(_ context.Context) ([]geo.RepPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	positions := make([]geo.RepPosition, 0, len(s.positions))
	for repID, entry := range s.positions {
		if now.After(entry.expiresAt) {
			delete(s.positions, repID)
			continue
		}
		positions = append(positions, entry.position)
	}
	return positions, nil
}
