package backend

import (
	"fmt"
	"strings"
	"sync"
)

// Sim is an in-memory backend for dry runs and tests. Every accepted
// driven command stays "pathing" for a fixed number of IsPathing polls.
type Sim struct {
	mu        sync.Mutex
	available bool
	busyPolls int
	remaining int
	commands  []string
	stops     int
	reject    map[string]int
	slot      int
}

type SimOption func(*Sim)

// WithBusyPolls sets how many IsPathing polls a command stays active.
func WithBusyPolls(n int) SimOption {
	return func(s *Sim) { s.busyPolls = max(n, 0) }
}

func NewSim(opts ...SimOption) *Sim {
	s := &Sim{available: true, busyPolls: 2, reject: map[string]int{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sim) SetAvailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = v
}

// Reject makes the next n commands starting with verb fail. n < 0 rejects
// forever.
func (s *Sim) Reject(verb string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject[verb] = n
}

// Commands returns every accepted command in order.
func (s *Sim) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *Sim) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func (s *Sim) Slot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot
}

func (s *Sim) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

func (s *Sim) IsPathing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remaining > 0 {
		s.remaining--
		return true
	}
	return false
}

func (s *Sim) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.remaining = 0
	s.commands = append(s.commands, "stop")
}

func (s *Sim) MoveTo(x, y, z int) bool {
	return s.drive(fmt.Sprintf("goto %d %d %d", x, y, z))
}

func (s *Sim) MoveToXZ(x, z int) bool {
	return s.drive(fmt.Sprintf("goto %d %d", x, z))
}

func (s *Sim) MoveToLandmark(id string) bool { return s.drive("goto " + id) }
func (s *Sim) FollowEntity(id string) bool   { return s.drive("follow entity " + id) }
func (s *Sim) FollowPlayer(name string) bool { return s.drive("follow player " + name) }

func (s *Sim) Harvest(id string, count int) bool {
	return s.drive(fmt.Sprintf("mine %d %s", count, id))
}

func (s *Sim) Patrol(x, z, distance int) bool {
	return s.drive(fmt.Sprintf("explore %d %d %d", x, z, distance))
}

func (s *Sim) Cultivate(rng int) bool {
	return s.drive(fmt.Sprintf("farm %d", rng))
}

func (s *Sim) SelectSlot(slot int) bool {
	if !s.accept(fmt.Sprintf("select %d", slot)) {
		return false
	}
	s.mu.Lock()
	s.slot = slot
	s.mu.Unlock()
	return true
}

func (s *Sim) SelectItem(id string) bool { return s.accept("select " + id) }

func (s *Sim) DropItem(id string, count int) bool {
	return s.accept(fmt.Sprintf("drop %s %d", id, count))
}

func (s *Sim) drive(cmd string) bool {
	if !s.accept(cmd) {
		return false
	}
	s.mu.Lock()
	s.remaining = s.busyPolls
	s.mu.Unlock()
	return true
}

func (s *Sim) accept(cmd string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return false
	}
	verb, _, _ := strings.Cut(cmd, " ")
	if n, ok := s.reject[verb]; ok && n != 0 {
		if n > 0 {
			s.reject[verb] = n - 1
		}
		return false
	}
	s.commands = append(s.commands, cmd)
	return true
}
