package governance

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rahul/commander/internal/action"
	"github.com/rahul/commander/internal/observability"
	"github.com/rahul/commander/pkg/config"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of an action to be evaluated.
type Request struct {
	Action action.Action
	ChatID string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates actions against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// safePatterns are hazards the agent should never path into or dig out.
var safePatterns = []string{`(?i)lava`, `(?i)\btnt\b|:tnt$`, `(?i)(^|:)fire$`, `(?i)magma`}

// DefaultPolicyEngine denies by action kind and by regexes over the action's
// subject identifier.
type DefaultPolicyEngine struct {
	DeniedKinds map[action.Kind]bool
	DeniedRegex []*regexp.Regexp
	logger      *observability.Logger
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedKinds: make(map[action.Kind]bool),
		DeniedRegex: make([]*regexp.Regexp, 0),
	}
}

// FromConfig builds the engine from the safety section. Safe mode adds the
// built-in hazard patterns.
func FromConfig(cfg config.SafetyConfig, logger *observability.Logger) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	e.logger = logger
	for _, k := range cfg.DeniedActions {
		e.DenyKind(action.Kind(k))
	}
	patterns := cfg.DeniedPatterns
	if cfg.SafeMode {
		patterns = append(append([]string(nil), safePatterns...), patterns...)
	}
	for _, p := range patterns {
		if err := e.DenySubject(p); err != nil {
			return nil, fmt.Errorf("safety pattern %q: %w", p, err)
		}
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyKind(k action.Kind) {
	e.DeniedKinds[k] = true
}

func (e *DefaultPolicyEngine) DenySubject(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	res := e.evaluate(req)
	if req.Action != nil {
		e.logger.LogPolicy(req.ChatID, req.Action.String(), string(res.Effect), res.Reason)
	}
	return res, nil
}

func (e *DefaultPolicyEngine) evaluate(req Request) Result {
	if req.Action == nil {
		return Result{Effect: EffectDeny, Reason: "No action"}
	}
	if e.DeniedKinds[req.Action.Kind()] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Action '%s' is restricted by system policy", req.Action.Kind()),
		}
	}

	if subject := action.Subject(req.Action); subject != "" {
		for _, re := range e.DeniedRegex {
			if re.MatchString(subject) {
				return Result{
					Effect: EffectDeny,
					Reason: fmt.Sprintf("Target %s matches restricted pattern: %s", subject, re.String()),
				}
			}
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}
}

// Filter drops denied actions from p and returns the denials. The summary
// is kept.
func Filter(ctx context.Context, pe PolicyEngine, chatID string, p action.Plan) (action.Plan, []Result, error) {
	out := action.Plan{Summary: p.Summary, Reason: p.Reason, Actions: make([]action.Action, 0, len(p.Actions))}
	var denied []Result
	for _, a := range p.Actions {
		res, err := pe.Evaluate(ctx, Request{Action: a, ChatID: chatID})
		if err != nil {
			return action.Plan{}, nil, err
		}
		if res.Effect == EffectDeny {
			denied = append(denied, res)
			continue
		}
		out.Actions = append(out.Actions, a)
	}
	return out, denied, nil
}
