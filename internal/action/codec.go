package action

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// wireAction is the flat JSON shape shared with the planning prompts.
type wireAction struct {
	Type     Kind     `json:"type"`
	X        *flexInt `json:"x,omitempty"`
	Y        *flexInt `json:"y,omitempty"`
	Z        *flexInt `json:"z,omitempty"`
	Block    string   `json:"block,omitempty"`
	Count    *flexInt `json:"count,omitempty"`
	Distance *flexInt `json:"distance,omitempty"`
	Target   string   `json:"target,omitempty"`
	Question string   `json:"question,omitempty"`
	Range    *flexInt `json:"range,omitempty"`
	Seconds  *flexInt `json:"seconds,omitempty"`
	Slot     *flexInt `json:"slot,omitempty"`
	Item     string   `json:"item,omitempty"`
}

type wirePlan struct {
	Actions []wireAction `json:"actions"`
	Reason  string       `json:"reason,omitempty"`
	Summary string       `json:"chat_summary"`
}

// flexInt accepts JSON numbers (rounded) and numeric strings. Models are
// not consistent about either.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*f = flexInt(math.Round(v))
	return nil
}

func fi(v int) *flexInt {
	f := flexInt(v)
	return &f
}

func intOr(f *flexInt, def int) int {
	if f == nil {
		return def
	}
	return int(*f)
}

// MarshalJSON writes the plan in the {actions, reason, chat_summary} shape.
func (p Plan) MarshalJSON() ([]byte, error) {
	w := wirePlan{Reason: p.Reason, Summary: p.Summary, Actions: make([]wireAction, 0, len(p.Actions))}
	for _, a := range p.Actions {
		w.Actions = append(w.Actions, encodeAction(a))
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes and validates a plan. Unknown action types and
// actions missing required fields are errors wrapping ErrInvalidAction.
func (p *Plan) UnmarshalJSON(b []byte) error {
	var w wirePlan
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := Plan{Reason: strings.TrimSpace(w.Reason), Summary: strings.TrimSpace(w.Summary)}
	for i, wa := range w.Actions {
		a, err := decodeAction(wa)
		if err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
		out.Actions = append(out.Actions, a)
	}
	*p = out
	return nil
}

// Decode parses a plan from raw JSON.
func Decode(raw string) (Plan, error) {
	var p Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Plan{}, err
	}
	return p, nil
}

func encodeAction(a Action) wireAction {
	w := wireAction{Type: a.Kind()}
	switch v := a.(type) {
	case MoveTo:
		w.X, w.Z = fi(v.X), fi(v.Z)
		if v.Y != nil {
			w.Y = fi(*v.Y)
		}
	case MoveToLandmark:
		w.Block = v.LandmarkID
	case Harvest:
		w.Block, w.Count = v.ResourceID, fi(v.Count)
	case Patrol:
		w.Distance = fi(v.Distance)
	case FollowTarget:
		w.Target = v.TargetID
	case Cultivate:
		if v.Range > 0 {
			w.Range = fi(v.Range)
		}
	case AskClarification:
		w.Question = v.Question
	case WaitSeconds:
		w.Seconds = fi(v.Seconds)
	case Equip:
		if v.Slot != nil {
			w.Slot = fi(*v.Slot)
		}
		w.Item = v.ItemID
	case Drop:
		w.Item, w.Count = v.ItemID, fi(v.Count)
	}
	return w
}

func decodeAction(w wireAction) (Action, error) {
	var a Action
	switch Kind(strings.ToLower(strings.TrimSpace(string(w.Type)))) {
	case KindGoto:
		if w.X != nil && w.Z != nil {
			m := MoveTo{X: int(*w.X), Z: int(*w.Z)}
			if w.Y != nil {
				m.Y = IntPtr(int(*w.Y))
			}
			a = m
		} else {
			a = MoveToLandmark{LandmarkID: NormalizeID(w.Block)}
		}
	case KindMine:
		a = Harvest{ResourceID: NormalizeID(w.Block), Count: intOr(w.Count, DefaultHarvestCount)}
	case KindExplore:
		d := intOr(w.Distance, DefaultExploreDistance)
		if d <= 0 {
			d = DefaultExploreDistance
		}
		a = Patrol{Distance: d}
	case KindFollow:
		a = FollowTarget{TargetID: strings.TrimSpace(w.Target)}
	case KindFarm:
		a = Cultivate{Range: max(intOr(w.Range, 0), 0)}
	case KindStop:
		a = Halt{}
	case KindAsk:
		q := strings.TrimSpace(w.Question)
		if q == "" {
			q = "Can you clarify?"
		}
		a = AskClarification{Question: q}
	case KindWait:
		s := intOr(w.Seconds, intOr(w.Count, DefaultWaitSeconds))
		if s <= 0 {
			s = DefaultWaitSeconds
		}
		a = WaitSeconds{Seconds: s}
	case KindEquip:
		e := Equip{ItemID: NormalizeID(w.Item)}
		if w.Slot != nil {
			e.Slot = IntPtr(int(*w.Slot))
		}
		a = e
	case KindDrop:
		a = Drop{ItemID: NormalizeID(w.Item), Count: max(intOr(w.Count, DefaultCount), 1)}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAction, w.Type)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}
