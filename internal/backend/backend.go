// Package backend drives the in-game automation layer (Baritone) that does
// the actual pathfinding, mining and following.
package backend

import "errors"

// ErrNotConnected is returned by sinks that have no live connection.
var ErrNotConnected = errors.New("backend not connected")

// Backend is the automation capability set. Mutating calls report whether
// the command was accepted, never whether it finished; completion is
// observed by polling IsPathing.
type Backend interface {
	IsAvailable() bool
	IsPathing() bool
	Stop()
	MoveTo(x, y, z int) bool
	MoveToXZ(x, z int) bool
	MoveToLandmark(id string) bool
	Harvest(id string, count int) bool
	FollowEntity(id string) bool
	FollowPlayer(name string) bool
	// Patrol explores outward from (x, z). distance is a hint that not
	// every backend honours.
	Patrol(x, z, distance int) bool
	Cultivate(rng int) bool
}

// Inventory is implemented by backends that can also change the held item
// and drop stacks.
type Inventory interface {
	SelectSlot(slot int) bool
	SelectItem(id string) bool
	DropItem(id string, count int) bool
}
