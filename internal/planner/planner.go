// Package planner turns an instruction into a plan: pattern router first,
// then the result cache, then a cheap Stage A classification and finally
// full Stage B planning.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/commander/internal/action"
	"github.com/rahul/commander/internal/cache"
	"github.com/rahul/commander/internal/llm"
	"github.com/rahul/commander/internal/observability"
	"github.com/rahul/commander/internal/router"
	"github.com/rahul/commander/internal/worldstate"
	"github.com/rahul/commander/pkg/config"
	"golang.org/x/sync/singleflight"
)

// Source names the stage that produced a plan.
type Source string

const (
	SourceRouter Source = "router"
	SourceCache  Source = "cache"
	SourceStageA Source = "stage_a"
	SourceStageB Source = "stage_b"
)

var (
	ErrPlanning          = errors.New("planning failed")
	ErrMalformedResponse = errors.New("malformed model response")
)

// PlanningError is returned when no stage produced a usable plan. It
// matches ErrPlanning and whatever caused the last stage to fail, so
// errors.Is(err, llm.ErrUnreachable) separates infrastructure problems from
// bad model output.
type PlanningError struct {
	Stage string
	Err   error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed at stage %s: %v", e.Stage, e.Err)
}

func (e *PlanningError) Unwrap() []error { return []error{ErrPlanning, e.Err} }

// Result is a produced plan plus how it was obtained.
type Result struct {
	Plan      action.Plan
	Source    Source
	Trace     string
	Control   router.Control
	Truncated bool
	StageA    *StageAResult
}

// TruncateFunc is told when a plan had to be cut to the action limit.
type TruncateFunc func(instruction string, planned, kept int)

type Planner struct {
	stages     config.Stages
	maxActions int
	threshold  float64

	router  *router.Router
	cache   *cache.Cache
	gateway llm.Gateway
	state   worldstate.Provider
	prompts *PromptSet
	logger  *observability.Logger

	onTruncate TruncateFunc
	group      singleflight.Group
}

type Option func(*Planner)

func WithPrompts(ps *PromptSet) Option {
	return func(p *Planner) {
		if ps != nil {
			p.prompts = ps
		}
	}
}

func WithLogger(l *observability.Logger) Option {
	return func(p *Planner) { p.logger = l }
}

// WithTruncateHook replaces the default warning log on truncation.
func WithTruncateHook(fn TruncateFunc) Option {
	return func(p *Planner) { p.onTruncate = fn }
}

func New(cfg *config.Config, r *router.Router, c *cache.Cache, gw llm.Gateway, state worldstate.Provider, opts ...Option) *Planner {
	p := &Planner{
		stages:     cfg.Stages(),
		maxActions: cfg.Planner.MaxActions,
		threshold:  cfg.Planner.ConfidenceThreshold,
		router:     r,
		cache:      c,
		gateway:    gw,
		state:      state,
		prompts:    DefaultPrompts(),
	}
	if p.maxActions <= 0 {
		p.maxActions = action.MaxActions
	}
	if p.threshold <= 0 {
		p.threshold = 0.75
	}
	if p.router == nil {
		p.router = router.New(router.NewAliasTable())
	}
	if p.cache == nil {
		p.cache = cache.New()
	}
	if p.state == nil {
		p.state = worldstate.NewStore()
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.onTruncate == nil {
		p.onTruncate = func(instruction string, planned, kept int) {
			p.logger.LogWarning(fmt.Sprintf("Plan truncated to %d actions", kept), map[string]any{
				"instruction": instruction,
				"planned":     planned,
			})
		}
	}
	return p
}

// Plan resolves instruction through router, cache, Stage A and Stage B in
// that order.
func (p *Planner) Plan(ctx context.Context, instruction string) (Result, error) {
	chatID := observability.ChatID(ctx)

	var here *action.Position
	if pos, ok := p.state.Position(); ok {
		here = &pos
	}
	if rr := p.router.TryRoute(instruction, here); rr.Handled {
		p.logger.LogRoute(chatID, instruction, rr.Trace)
		return Result{Plan: rr.Plan, Source: SourceRouter, Trace: rr.Trace, Control: rr.Control}, nil
	}

	fp := p.state.Fingerprint()
	if plan, ok := p.cache.Get(instruction, fp); ok {
		p.logger.LogCache(instruction, true)
		return Result{Plan: plan, Source: SourceCache, Trace: "cache hit"}, nil
	}
	p.logger.LogCache(instruction, false)

	// The shared call outlives any single caller; each stage carries its
	// own timeout. A cancelled caller stops waiting without failing the
	// others.
	flight := context.WithoutCancel(ctx)
	ch := p.group.DoChan(cache.Key(instruction, fp), func() (any, error) {
		return p.plan(flight, instruction, fp)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		res := r.Val.(Result)
		if r.Shared {
			res.Plan = res.Plan.Clone()
		}
		return res, nil
	}
}

func (p *Planner) plan(ctx context.Context, instruction string, fp cache.Fingerprint) (Result, error) {
	state := p.state.CompactSnapshot()

	stageA, err := p.runStageA(ctx, instruction, state)
	if err != nil {
		p.logger.Warnf("stage A skipped: %v", err)
	}
	if stageA != nil && stageA.HighConfidence(p.threshold) {
		if plan, ok := Translate(*stageA); ok {
			p.cache.Put(instruction, fp, plan)
			return Result{Plan: plan, Source: SourceStageA, Trace: "stage A: " + stageA.String(), StageA: stageA}, nil
		}
	}

	plan, err := p.runStageB(ctx, PromptData{State: state, Instruction: instruction, MaxActions: p.maxActions})
	if err != nil {
		return Result{}, err
	}
	res := p.finish(instruction, plan)
	res.StageA = stageA
	p.cache.Put(instruction, fp, res.Plan)
	return res, nil
}

// PlanWithAnswer re-plans an instruction after the player answered a
// clarification question. Router and cache are skipped and the result is
// not cached since it depends on the answer.
func (p *Planner) PlanWithAnswer(ctx context.Context, instruction, question, answer string) (Result, error) {
	plan, err := p.runStageB(ctx, PromptData{
		State:       p.state.CompactSnapshot(),
		Instruction: instruction,
		MaxActions:  p.maxActions,
		Question:    question,
		Answer:      strings.TrimSpace(answer),
	})
	if err != nil {
		return Result{}, err
	}
	return p.finish(instruction, plan), nil
}

func (p *Planner) finish(instruction string, plan action.Plan) Result {
	res := Result{Source: SourceStageB, Trace: fmt.Sprintf("stage B: %d actions", len(plan.Actions))}
	planned := len(plan.Actions)
	res.Plan, res.Truncated = plan.Truncate(p.maxActions)
	if res.Truncated {
		p.onTruncate(instruction, planned, len(res.Plan.Actions))
	}
	return res
}

func (p *Planner) runStageA(ctx context.Context, instruction, state string) (*StageAResult, error) {
	prompt, err := p.prompts.StageA(PromptData{State: state, Instruction: instruction, MaxActions: p.maxActions})
	if err != nil {
		return nil, err
	}
	text, err := p.gateway.Generate(ctx, llm.GenerateRequest{
		Model:       p.stages.StageAModel,
		Prompt:      prompt,
		Temperature: p.stages.StageATemperature,
		Timeout:     p.stages.StageATimeout,
	})
	if err != nil {
		return nil, err
	}
	res, err := ParseStageA(text)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (p *Planner) runStageB(ctx context.Context, data PromptData) (action.Plan, error) {
	prompt, err := p.prompts.StageB(data)
	if err != nil {
		return action.Plan{}, &PlanningError{Stage: "B", Err: err}
	}
	text, err := p.gateway.Generate(ctx, llm.GenerateRequest{
		Model:       p.stages.StageBModel,
		Prompt:      prompt,
		Temperature: p.stages.StageBTemperature,
		Timeout:     p.stages.StageBTimeout,
	})
	if err != nil {
		return action.Plan{}, &PlanningError{Stage: "B", Err: err}
	}

	raw, ok := ExtractJSON(text)
	if !ok {
		return action.Plan{}, &PlanningError{Stage: "B", Err: fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)}
	}
	plan, err := action.Decode(raw)
	if err != nil {
		return action.Plan{}, &PlanningError{Stage: "B", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if !plan.IsValid() {
		return action.Plan{}, &PlanningError{Stage: "B", Err: fmt.Errorf("%w: plan needs actions and a chat_summary", ErrMalformedResponse)}
	}
	return plan, nil
}

// Available reports whether the inference service answers.
func (p *Planner) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.gateway.Available(ctx)
}

func (p *Planner) CacheStats() cache.Stats { return p.cache.Stats() }
func (p *Planner) ClearCache()             { p.cache.Clear() }

// Forget drops a cached plan that turned out not to work.
func (p *Planner) Forget(instruction string) {
	p.cache.MarkFailed(instruction, p.state.Fingerprint())
}

func (p *Planner) Stages() config.Stages { return p.stages }
