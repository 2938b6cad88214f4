package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/commander/internal/action"
)

// Intent is the coarse classification produced by Stage A.
type Intent string

const (
	IntentMove      Intent = "move"
	IntentHarvest   Intent = "harvest"
	IntentFollow    Intent = "follow"
	IntentPatrol    Intent = "patrol"
	IntentCultivate Intent = "cultivate"
	IntentHalt      Intent = "halt"
	IntentCraft     Intent = "craft"
	IntentConstruct Intent = "construct"
	IntentAttack    Intent = "attack"
	IntentUnknown   Intent = "unknown"
)

// Models answer with the action vocabulary as often as with ours.
var intentAliases = map[string]Intent{
	"move":      IntentMove,
	"goto":      IntentMove,
	"go":        IntentMove,
	"harvest":   IntentHarvest,
	"mine":      IntentHarvest,
	"follow":    IntentFollow,
	"patrol":    IntentPatrol,
	"explore":   IntentPatrol,
	"cultivate": IntentCultivate,
	"farm":      IntentCultivate,
	"halt":      IntentHalt,
	"stop":      IntentHalt,
	"craft":     IntentCraft,
	"construct": IntentConstruct,
	"build":     IntentConstruct,
	"attack":    IntentAttack,
	"kill":      IntentAttack,
}

// ParseIntent maps a model-supplied intent onto the fixed enum.
func ParseIntent(s string) Intent {
	if in, ok := intentAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return in
	}
	return IntentUnknown
}

func (i *Intent) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*i = ParseIntent(s)
	return nil
}

// Target is the optional coarse subject of a Stage A intent.
type Target struct {
	Type string `json:"type,omitempty"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	X    *int   `json:"x,omitempty"`
	Y    *int   `json:"y,omitempty"`
	Z    *int   `json:"z,omitempty"`
}

func (t *Target) HasCoordinates() bool {
	return t != nil && t.X != nil && t.Z != nil
}

// StageAResult is the quick classification of one instruction. It lives
// only for the duration of a planning call.
type StageAResult struct {
	Intent        Intent  `json:"intent"`
	Confidence    float64 `json:"confidence"`
	Target        *Target `json:"target,omitempty"`
	Count         *int    `json:"count,omitempty"`
	NeedsPlanning bool    `json:"needs_planning"`
	Reason        string  `json:"reason,omitempty"`
}

// HighConfidence reports whether Stage A may skip full planning.
func (r StageAResult) HighConfidence(threshold float64) bool {
	return r.Confidence >= threshold && !r.NeedsPlanning
}

func (r StageAResult) String() string {
	return fmt.Sprintf("intent=%s conf=%.2f needs_planning=%t", r.Intent, r.Confidence, r.NeedsPlanning)
}

// stageAWire tolerates models that put placeholders or strings where
// numbers belong.
type stageAWire struct {
	Intent        Intent          `json:"intent"`
	Confidence    json.Number     `json:"confidence"`
	Target        *targetWire     `json:"target"`
	Count         json.RawMessage `json:"count"`
	NeedsPlanning json.RawMessage `json:"needs_planning"`
	Reason        string          `json:"reason"`
}

type targetWire struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Name string          `json:"name"`
	X    json.RawMessage `json:"x"`
	Y    json.RawMessage `json:"y"`
	Z    json.RawMessage `json:"z"`
}

// ParseStageA extracts and decodes a Stage A answer.
func ParseStageA(text string) (StageAResult, error) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return StageAResult{}, fmt.Errorf("%w: no JSON object in stage A response", ErrMalformedResponse)
	}
	var w stageAWire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return StageAResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if w.Intent == "" {
		return StageAResult{}, fmt.Errorf("%w: stage A response has no intent", ErrMalformedResponse)
	}

	res := StageAResult{Intent: w.Intent, Reason: strings.TrimSpace(w.Reason)}
	if c, err := w.Confidence.Float64(); err == nil {
		res.Confidence = min(max(c, 0), 1)
	}
	res.Count = optInt(w.Count)
	res.NeedsPlanning = optBool(w.NeedsPlanning)
	if w.Target != nil {
		res.Target = &Target{
			Type: strings.TrimSpace(w.Target.Type),
			ID:   strings.TrimSpace(w.Target.ID),
			Name: strings.TrimSpace(w.Target.Name),
			X:    optInt(w.Target.X),
			Y:    optInt(w.Target.Y),
			Z:    optInt(w.Target.Z),
		}
	}
	return res, nil
}

func optInt(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return action.IntPtr(int(f))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var n int
		if _, err := fmt.Sscan(strings.TrimSpace(s), &n); err == nil {
			return action.IntPtr(n)
		}
	}
	return nil
}

func optBool(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.EqualFold(strings.TrimSpace(s), "true")
	}
	return false
}

// Translate turns a Stage A result into a one-action plan. ok is false for
// intents that need full planning or lack a usable target.
func Translate(r StageAResult) (action.Plan, bool) {
	var (
		a       action.Action
		summary string
	)
	t := r.Target
	switch r.Intent {
	case IntentMove:
		switch {
		case t.HasCoordinates():
			a = action.MoveTo{X: *t.X, Y: t.Y, Z: *t.Z}
			summary = "Going to target"
		case t != nil && t.ID != "":
			a = action.MoveToLandmark{LandmarkID: action.NormalizeID(t.ID)}
			summary = "Going to " + action.NormalizeID(t.ID)
		default:
			return action.Plan{}, false
		}
	case IntentHarvest:
		if t == nil || t.ID == "" {
			return action.Plan{}, false
		}
		count := action.DefaultHarvestCount
		if r.Count != nil && *r.Count > 0 {
			count = *r.Count
		}
		a = action.Harvest{ResourceID: action.NormalizeID(t.ID), Count: count}
		summary = fmt.Sprintf("Mining %d blocks", count)
	case IntentFollow:
		if t == nil {
			return action.Plan{}, false
		}
		target := t.Name
		if target == "" {
			target = t.ID
		}
		if target == "" {
			return action.Plan{}, false
		}
		a = action.FollowTarget{TargetID: target}
		summary = "Following " + target
	case IntentPatrol:
		a = action.Patrol{Distance: action.DefaultExploreDistance}
		summary = "Exploring the area"
	case IntentCultivate:
		c := action.Cultivate{}
		if r.Count != nil && *r.Count > 0 {
			c.Range = *r.Count
		}
		a = c
		summary = "Farming crops"
	case IntentHalt:
		a = action.Halt{}
		summary = "Stopping"
	default:
		return action.Plan{}, false
	}
	if a.Validate() != nil {
		return action.Plan{}, false
	}
	p := action.Single(a, summary)
	p.Reason = r.Reason
	return p, true
}
