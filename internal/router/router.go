// Package router turns common phrasings into plans without calling a model.
package router

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rahul/commander/internal/action"
)

// Control tells the caller that the instruction was an engine control word.
type Control int

const (
	ControlNone Control = iota
	ControlStop
	ControlPause
	ControlResume
)

func (c Control) String() string {
	switch c {
	case ControlStop:
		return "stop"
	case ControlPause:
		return "pause"
	case ControlResume:
		return "resume"
	default:
		return "none"
	}
}

// Result is the outcome of a routing attempt. Handled=false means the caller
// must fall through to the cache and planner.
type Result struct {
	Handled bool
	Plan    action.Plan
	Trace   string
	Control Control
}

var (
	gotoCoordsPattern = regexp.MustCompile(`(?i)^(?:go\s*(?:to)?|goto|walk\s*(?:to)?|move\s*(?:to)?|travel\s*(?:to)?)\s+(-?\d+)\s+(?:(-?\d+)\s+)?(-?\d+)$`)
	minePattern       = regexp.MustCompile(`(?i)^(?:mine|dig|get|collect|gather|harvest)\s+(?:(\d+)\s+)?(.+)$`)
	followPattern     = regexp.MustCompile(`(?i)^(?:follow|chase|track)\s+(?:player\s+)?(.+)$`)
	gotoBlockPattern  = regexp.MustCompile(`(?i)^(?:go\s*(?:to)?|goto|find|locate)\s+(?:(?:the\s+)?nearest\s+)?(.+)$`)
	farmPattern       = regexp.MustCompile(`(?i)^farm(?:\s+(\d+))?(?:\s+blocks?)?$`)
	explorePattern    = regexp.MustCompile(`(?i)^explore(?:\s+(\d+))?$`)
)

var comeHere = map[string]bool{
	"come here":  true,
	"come":       true,
	"come to me": true,
	"here":       true,
}

// Router is the deterministic fast path in front of the planner.
type Router struct {
	aliases *AliasTable
}

// New creates a router. A nil alias table uses the built-in aliases.
func New(aliases *AliasTable) *Router {
	if aliases == nil {
		aliases = NewAliasTable()
	}
	return &Router{aliases: aliases}
}

// Aliases exposes the alias table used for name resolution.
func (r *Router) Aliases() *AliasTable { return r.aliases }

// ControlWord classifies an exact control word.
func ControlWord(instruction string) Control {
	switch strings.ToLower(Normalize(instruction)) {
	case "stop", "cancel":
		return ControlStop
	case "pause":
		return ControlPause
	case "resume", "continue":
		return ControlResume
	}
	return ControlNone
}

// Normalize collapses whitespace and strips trailing punctuation.
func Normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ".!?")
}

// TryRoute matches instruction against the fixed patterns in order. here is
// the acting agent's live position; without it the "come here" family falls
// through.
func (r *Router) TryRoute(instruction string, here *action.Position) Result {
	text := Normalize(instruction)
	lower := strings.ToLower(text)
	if lower == "" {
		return Result{}
	}

	switch c := ControlWord(lower); c {
	case ControlStop:
		return handled(action.Single(action.Halt{}, "Stopping all actions."), "stop", c)
	case ControlPause:
		return handled(action.Single(action.Halt{}, "Pausing."), "pause", c)
	case ControlResume:
		return handled(action.Ack("Resuming..."), "resume", c)
	}

	if comeHere[lower] && here != nil {
		x, y, z := here.Block()
		return handled(gotoPlan(x, action.IntPtr(y), z), fmt.Sprintf("come here -> goto %d %d %d", x, y, z), ControlNone)
	}

	if m := gotoCoordsPattern.FindStringSubmatch(text); m != nil {
		x, _ := strconv.Atoi(m[1])
		z, _ := strconv.Atoi(m[3])
		var y *int
		if m[2] != "" {
			v, _ := strconv.Atoi(m[2])
			y = &v
		}
		p := gotoPlan(x, y, z)
		return handled(p, p.Actions[0].String(), ControlNone)
	}

	if m := minePattern.FindStringSubmatch(text); m != nil {
		count := action.DefaultHarvestCount
		if m[1] != "" {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				count = n
			}
		}
		if id, ok := r.aliases.Resolve(m[2]); ok {
			a := action.Harvest{ResourceID: id, Count: count}
			return handled(action.Single(a, fmt.Sprintf("Mining %dx %s", count, id)), a.String(), ControlNone)
		}
	}

	if m := followPattern.FindStringSubmatch(text); m != nil {
		target := strings.TrimSpace(m[1])
		a := action.FollowTarget{TargetID: target}
		return handled(action.Single(a, "Following "+target), a.String(), ControlNone)
	}

	if m := gotoBlockPattern.FindStringSubmatch(text); m != nil {
		if id, ok := r.aliases.Resolve(m[1]); ok {
			a := action.MoveToLandmark{LandmarkID: id}
			return handled(action.Single(a, "Going to nearest "+id), a.String(), ControlNone)
		}
	}

	if m := farmPattern.FindStringSubmatch(text); m != nil {
		rng, _ := strconv.Atoi(m[1])
		summary := "Farming nearby crops"
		if rng > 0 {
			summary = fmt.Sprintf("Farming within %d blocks", rng)
		}
		a := action.Cultivate{Range: rng}
		return handled(action.Single(a, summary), a.String(), ControlNone)
	}

	if m := explorePattern.FindStringSubmatch(text); m != nil {
		dist := action.DefaultExploreDistance
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			dist = n
		}
		a := action.Patrol{Distance: dist}
		return handled(action.Single(a, "Exploring the area"), a.String(), ControlNone)
	}

	return Result{}
}

func gotoPlan(x int, y *int, z int) action.Plan {
	summary := fmt.Sprintf("Going to X=%d Z=%d", x, z)
	if y != nil {
		summary = fmt.Sprintf("Going to %d, %d, %d", x, *y, z)
	}
	return action.Single(action.MoveTo{X: x, Y: y, Z: z}, summary)
}

func handled(p action.Plan, trace string, c Control) Result {
	return Result{Handled: true, Plan: p, Trace: "router: " + trace, Control: c}
}
