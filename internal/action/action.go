package action

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Kind is the wire name of an action type.
type Kind string

const (
	KindGoto    Kind = "goto"
	KindMine    Kind = "mine"
	KindExplore Kind = "explore"
	KindFollow  Kind = "follow"
	KindFarm    Kind = "farm"
	KindStop    Kind = "stop"
	KindAsk     Kind = "ask"
	KindWait    Kind = "wait"
	KindEquip   Kind = "equip"
	KindDrop    Kind = "drop"
)

const (
	DefaultCount           = 1
	DefaultHarvestCount    = 64
	DefaultExploreDistance = 100
	DefaultWaitSeconds     = 5
	DefaultNamespace       = "minecraft"
)

var ErrInvalidAction = errors.New("invalid action")

// Action is one unit of work for the automation backend.
type Action interface {
	Kind() Kind
	Validate() error
	String() string
}

// Position is a world position as reported by the agent.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Block returns the position rounded to block coordinates.
func (p Position) Block() (int, int, int) {
	return int(math.Round(p.X)), int(math.Round(p.Y)), int(math.Round(p.Z))
}

// MoveTo walks to explicit coordinates. Y is optional.
type MoveTo struct {
	X int
	Y *int
	Z int
}

func (MoveTo) Kind() Kind      { return KindGoto }
func (MoveTo) Validate() error { return nil }
func (a MoveTo) String() string {
	if a.Y != nil {
		return fmt.Sprintf("goto %d %d %d", a.X, *a.Y, a.Z)
	}
	return fmt.Sprintf("goto %d %d", a.X, a.Z)
}

// MoveToLandmark walks to the nearest block or structure with the given id.
type MoveToLandmark struct {
	LandmarkID string
}

func (MoveToLandmark) Kind() Kind { return KindGoto }
func (a MoveToLandmark) Validate() error {
	if strings.TrimSpace(a.LandmarkID) == "" {
		return fmt.Errorf("%w: goto requires coordinates or a block id", ErrInvalidAction)
	}
	return nil
}
func (a MoveToLandmark) String() string { return "goto " + a.LandmarkID }

// Harvest mines Count blocks of ResourceID.
type Harvest struct {
	ResourceID string
	Count      int
}

func (Harvest) Kind() Kind { return KindMine }
func (a Harvest) Validate() error {
	if strings.TrimSpace(a.ResourceID) == "" {
		return fmt.Errorf("%w: mine requires a block id", ErrInvalidAction)
	}
	if a.Count <= 0 {
		return fmt.Errorf("%w: mine count must be positive", ErrInvalidAction)
	}
	return nil
}
func (a Harvest) String() string { return fmt.Sprintf("mine %dx %s", a.Count, a.ResourceID) }

// Patrol explores outward from the current position.
type Patrol struct {
	Distance int
}

func (Patrol) Kind() Kind       { return KindExplore }
func (Patrol) Validate() error  { return nil }
func (a Patrol) String() string { return fmt.Sprintf("explore %d", a.Distance) }

// FollowTarget follows a player name or an entity type id (namespaced).
type FollowTarget struct {
	TargetID string
}

func (FollowTarget) Kind() Kind { return KindFollow }
func (a FollowTarget) Validate() error {
	if strings.TrimSpace(a.TargetID) == "" {
		return fmt.Errorf("%w: follow requires a target", ErrInvalidAction)
	}
	return nil
}
func (a FollowTarget) String() string { return "follow " + a.TargetID }

// IsEntity reports whether the target names an entity type rather than a player.
func (a FollowTarget) IsEntity() bool { return strings.Contains(a.TargetID, ":") }

// Cultivate harvests and replants crops. Range 0 means unbounded.
type Cultivate struct {
	Range int
}

func (Cultivate) Kind() Kind      { return KindFarm }
func (Cultivate) Validate() error { return nil }
func (a Cultivate) String() string {
	if a.Range > 0 {
		return fmt.Sprintf("farm %d", a.Range)
	}
	return "farm"
}

type Halt struct{}

func (Halt) Kind() Kind      { return KindStop }
func (Halt) Validate() error { return nil }
func (Halt) String() string  { return "stop" }

// AskClarification pauses the run until the player answers.
type AskClarification struct {
	Question string
}

func (AskClarification) Kind() Kind       { return KindAsk }
func (AskClarification) Validate() error  { return nil }
func (a AskClarification) String() string { return "ask " + a.Question }

type WaitSeconds struct {
	Seconds int
}

func (WaitSeconds) Kind() Kind { return KindWait }
func (a WaitSeconds) Validate() error {
	if a.Seconds <= 0 {
		return fmt.Errorf("%w: wait must be positive", ErrInvalidAction)
	}
	return nil
}
func (a WaitSeconds) String() string { return fmt.Sprintf("wait %ds", a.Seconds) }

// Equip selects a hotbar slot (0-8) or an item by id.
type Equip struct {
	Slot   *int
	ItemID string
}

func (Equip) Kind() Kind { return KindEquip }
func (a Equip) Validate() error {
	if a.Slot != nil {
		if *a.Slot < 0 || *a.Slot > 8 {
			return fmt.Errorf("%w: equip slot %d out of range 0-8", ErrInvalidAction, *a.Slot)
		}
		return nil
	}
	if strings.TrimSpace(a.ItemID) == "" {
		return fmt.Errorf("%w: equip requires a slot or an item", ErrInvalidAction)
	}
	return nil
}
func (a Equip) String() string {
	if a.Slot != nil {
		return fmt.Sprintf("equip slot %d", *a.Slot)
	}
	return "equip " + a.ItemID
}

type Drop struct {
	ItemID string
	Count  int
}

func (Drop) Kind() Kind { return KindDrop }
func (a Drop) Validate() error {
	if strings.TrimSpace(a.ItemID) == "" {
		return fmt.Errorf("%w: drop requires an item", ErrInvalidAction)
	}
	return nil
}
func (a Drop) String() string { return fmt.Sprintf("drop %dx %s", a.Count, a.ItemID) }

// NormalizeID adds the default namespace to bare identifiers.
func NormalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return ""
	}
	if !strings.Contains(id, ":") {
		return DefaultNamespace + ":" + strings.ReplaceAll(id, " ", "_")
	}
	return id
}

// Subject returns the identifier an action operates on, if any.
func Subject(a Action) string {
	switch v := a.(type) {
	case MoveToLandmark:
		return v.LandmarkID
	case Harvest:
		return v.ResourceID
	case FollowTarget:
		return v.TargetID
	case Equip:
		return v.ItemID
	case Drop:
		return v.ItemID
	}
	return ""
}

// Driven reports whether completion of a is observed by polling the backend.
func Driven(a Action) bool {
	switch a.Kind() {
	case KindGoto, KindMine, KindExplore, KindFollow, KindFarm:
		return true
	}
	return false
}

// IntPtr is a helper for optional coordinates and slots.
func IntPtr(v int) *int { return &v }
