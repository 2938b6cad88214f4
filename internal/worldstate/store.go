package worldstate

import (
	"sync"

	"github.com/rahul/commander/internal/action"
	"github.com/rahul/commander/internal/cache"
)

// Provider is what the planner needs to know about the world.
type Provider interface {
	CompactSnapshot() string
	Fingerprint() cache.Fingerprint
	Position() (action.Position, bool)
}

// Store holds the latest snapshot. It is updated by the bridge and read by
// planners from other goroutines.
type Store struct {
	mu          sync.RWMutex
	snap        Snapshot
	has         bool
	lastFailure string
	budget      int
	count       TokenCounter
}

type StoreOption func(*Store)

func WithTokenBudget(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.budget = n
		}
	}
}

func WithTokenCounter(c TokenCounter) StoreOption {
	return func(s *Store) { s.count = c }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{budget: DefaultTokenBudget, count: CountTokens}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update replaces the current snapshot.
func (s *Store) Update(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.has = true
}

// SetBackendStatus patches the backend fields without a full snapshot.
func (s *Store) SetBackendStatus(available, pathing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Backend = &BackendStatus{Available: available, Pathing: pathing}
}

// SetLastFailure records a failure reason to show in the next snapshot.
func (s *Store) SetLastFailure(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFailure = reason
}

func (s *Store) ClearLastFailure() { s.SetLastFailure("") }

func (s *Store) Snapshot() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	if s.lastFailure != "" {
		snap.LastFailure = s.lastFailure
	}
	return snap, s.has
}

func (s *Store) CompactSnapshot() string {
	snap, ok := s.Snapshot()
	if !ok {
		if snap.LastFailure != "" {
			return "Not in world\nLastErr: " + truncateRunes(snap.LastFailure, maxFailureRunes)
		}
		return "Not in world"
	}
	return snap.Compact(s.budget, s.count)
}

func (s *Store) Fingerprint() cache.Fingerprint {
	snap, ok := s.Snapshot()
	if !ok {
		return cache.Fingerprint{}
	}
	return snap.Fingerprint()
}

func (s *Store) Position() (action.Position, bool) {
	snap, ok := s.Snapshot()
	return snap.Position, ok
}
