package observability

import (
	"sync"
	"time"
)

// StatusBoard is the live state shown on the terminal status line.
type StatusBoard struct {
	mu            sync.RWMutex
	state         string
	activeTask    string
	backendUp     bool
	lastHeartbeat time.Time
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{
		state:         "IDLE",
		lastHeartbeat: time.Now(),
	}
}

// SetStatus updates the engine state and the task being worked on.
func (s *StatusBoard) SetStatus(state, task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.activeTask = task
}

func (s *StatusBoard) SetBackend(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backendUp = up
}

// GetStatus retrieves a copy of the current status.
func (s *StatusBoard) GetStatus() (state, task string, backendUp bool, lastHB time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.activeTask, s.backendUp, s.lastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func (s *StatusBoard) Heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = time.Now()
}
