package action

import (
	"strings"
)

// MaxActions bounds the length of any plan handed to the executor.
const MaxActions = 8

// Plan is an ordered list of actions plus a short summary for the player.
type Plan struct {
	Actions []Action
	Summary string
	Reason  string
}

// Single builds a one-action plan.
func Single(a Action, summary string) Plan {
	return Plan{Actions: []Action{a}, Summary: summary}
}

// Ack builds an acknowledgement plan that carries no actions.
func Ack(summary string) Plan {
	return Plan{Summary: summary}
}

// IsValid reports whether the plan has actions and a summary.
func (p Plan) IsValid() bool {
	return len(p.Actions) > 0 && strings.TrimSpace(p.Summary) != ""
}

// HasClarification reports whether any action asks the player a question.
func (p Plan) HasClarification() bool {
	for _, a := range p.Actions {
		if a.Kind() == KindAsk {
			return true
		}
	}
	return false
}

// Validate checks every action and returns the first violation.
func (p Plan) Validate() error {
	for _, a := range p.Actions {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Truncate returns a copy of the plan with at most max actions and whether
// anything was dropped.
func (p Plan) Truncate(max int) (Plan, bool) {
	if max <= 0 || len(p.Actions) <= max {
		return p, false
	}
	out := p.Clone()
	out.Actions = out.Actions[:max]
	return out, true
}

// Clone copies the action slice. Actions are values so a shallow copy is
// enough except for optional pointer fields.
func (p Plan) Clone() Plan {
	out := Plan{Summary: p.Summary, Reason: p.Reason}
	if p.Actions == nil {
		return out
	}
	out.Actions = make([]Action, len(p.Actions))
	for i, a := range p.Actions {
		out.Actions[i] = cloneAction(a)
	}
	return out
}

func cloneAction(a Action) Action {
	switch v := a.(type) {
	case MoveTo:
		if v.Y != nil {
			v.Y = IntPtr(*v.Y)
		}
		return v
	case Equip:
		if v.Slot != nil {
			v.Slot = IntPtr(*v.Slot)
		}
		return v
	}
	return a
}

// String renders the plan as a compact, human-readable line.
func (p Plan) String() string {
	parts := make([]string, 0, len(p.Actions))
	for _, a := range p.Actions {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " -> ")
}
