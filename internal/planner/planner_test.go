package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rahul/commander/internal/action"
	"github.com/rahul/commander/internal/cache"
	"github.com/rahul/commander/internal/llm"
	"github.com/rahul/commander/internal/router"
	"github.com/rahul/commander/internal/worldstate"
	"github.com/rahul/commander/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted func(prompt string) (string, error)

type fakeGateway struct {
	mu      sync.Mutex
	stageA  scripted
	stageB  scripted
	cfg     config.Stages
	calls   map[string]int
	prompts map[string][]string
}

func newFakeGateway(stageA, stageB scripted) *fakeGateway {
	return &fakeGateway{
		stageA:  stageA,
		stageB:  stageB,
		cfg:     config.Default().Stages(),
		calls:   map[string]int{},
		prompts: map[string][]string{},
	}
}

func (g *fakeGateway) Available(ctx context.Context) bool { return true }

func (g *fakeGateway) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	g.mu.Lock()
	stage := "B"
	fn := g.stageB
	if req.Model == g.cfg.StageAModel && req.Temperature == g.cfg.StageATemperature && strings.Contains(req.Prompt, "command parser") {
		stage = "A"
		fn = g.stageA
	}
	g.calls[stage]++
	g.prompts[stage] = append(g.prompts[stage], req.Prompt)
	g.mu.Unlock()
	if fn == nil {
		return "", errors.New("unexpected call")
	}
	return fn(req.Prompt)
}

func (g *fakeGateway) count(stage string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[stage]
}

func reply(text string) scripted {
	return func(string) (string, error) { return text, nil }
}

func fail(err error) scripted {
	return func(string) (string, error) { return "", err }
}

func newTestPlanner(gw llm.Gateway, opts ...Option) (*Planner, *worldstate.Store) {
	state := worldstate.NewStore(worldstate.WithTokenCounter(worldstate.ApproxTokens))
	state.Update(worldstate.Snapshot{
		Dimension: "minecraft:overworld",
		Position:  action.Position{X: 1, Y: 64, Z: 1},
		Health:    20,
		Food:      20,
		Inventory: []worldstate.Item{{ID: "minecraft:iron_pickaxe", Count: 1}},
	})
	p := New(config.Default(), router.New(router.NewAliasTable()), cache.New(), gw, state, opts...)
	return p, state
}

const stopPlan = `{"actions":[{"type":"stop"}],"chat_summary":"ok"}`

func TestPlanRouterShortCircuit(t *testing.T) {
	gw := newFakeGateway(nil, nil)
	p, _ := newTestPlanner(gw)

	res, err := p.Plan(context.Background(), "mine 10 diamonds")
	require.NoError(t, err)
	assert.Equal(t, SourceRouter, res.Source)
	assert.Equal(t, action.Harvest{ResourceID: "minecraft:diamond_ore", Count: 10}, res.Plan.Actions[0])
	assert.Zero(t, gw.count("A"))
	assert.Zero(t, gw.count("B"))

	res, err = p.Plan(context.Background(), "stop")
	require.NoError(t, err)
	assert.Equal(t, "router: stop", res.Trace)
}

func TestPlanStageAShortcut(t *testing.T) {
	gw := newFakeGateway(
		reply(`{"intent":"goto","confidence":0.9,"target":{"type":"location","x":10,"y":64,"z":-5},"needs_planning":false,"reason":"coords"}`),
		nil,
	)
	p, _ := newTestPlanner(gw)

	res, err := p.Plan(context.Background(), "head over to where the village was")
	require.NoError(t, err)
	assert.Equal(t, SourceStageA, res.Source)
	require.Len(t, res.Plan.Actions, 1)
	assert.Equal(t, action.MoveTo{X: 10, Y: action.IntPtr(64), Z: -5}, res.Plan.Actions[0])
	assert.Equal(t, 1, gw.count("A"))
	assert.Zero(t, gw.count("B"))
	require.NotNil(t, res.StageA)
	assert.Equal(t, IntentMove, res.StageA.Intent)
}

func TestPlanStageAFallsThroughToStageB(t *testing.T) {
	cases := map[string]scripted{
		"low confidence": reply(`{"intent":"goto","confidence":0.4,"target":{"x":10,"z":-5},"needs_planning":false}`),
		"needs planning": reply(`{"intent":"goto","confidence":0.95,"target":{"x":10,"z":-5},"needs_planning":true}`),
		"untranslatable": reply(`{"intent":"craft","confidence":0.95,"needs_planning":false}`),
		"garbage":        reply("I am not sure what you mean"),
		"unreachable":    fail(&llm.ServiceError{Model: "m", Unreachable: true, Err: errors.New("connection refused")}),
	}
	for name, stageA := range cases {
		t.Run(name, func(t *testing.T) {
			gw := newFakeGateway(stageA, reply(stopPlan))
			p, _ := newTestPlanner(gw)

			res, err := p.Plan(context.Background(), "do the thing we talked about")
			require.NoError(t, err)
			assert.Equal(t, SourceStageB, res.Source)
			assert.Equal(t, action.Halt{}, res.Plan.Actions[0])
			assert.Equal(t, 1, gw.count("B"))
		})
	}
}

func TestPlanWritesThroughToCache(t *testing.T) {
	gw := newFakeGateway(reply("nope"), reply(stopPlan))
	p, _ := newTestPlanner(gw)

	_, err := p.Plan(context.Background(), "please calm down")
	require.NoError(t, err)
	res, err := p.Plan(context.Background(), "Please   calm down")
	require.NoError(t, err)

	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, 1, gw.count("B"))
	assert.Equal(t, 1, p.CacheStats().Live)

	p.Forget("please calm down")
	_, err = p.Plan(context.Background(), "please calm down")
	require.NoError(t, err)
	assert.Equal(t, 2, gw.count("B"))
}

func TestPlanClarificationIsNotCached(t *testing.T) {
	gw := newFakeGateway(reply("nope"), reply(`{"actions":[{"type":"ask","question":"Which chest?"}],"chat_summary":"Need more info"}`))
	p, _ := newTestPlanner(gw)

	for i := 0; i < 2; i++ {
		res, err := p.Plan(context.Background(), "bring me the stuff")
		require.NoError(t, err)
		assert.True(t, res.Plan.HasClarification())
	}
	assert.Equal(t, 2, gw.count("B"))
	assert.Zero(t, p.CacheStats().Live)
}

func TestPlanTruncatesOnce(t *testing.T) {
	var actions []string
	for i := 0; i < 12; i++ {
		actions = append(actions, fmt.Sprintf(`{"type":"goto","x":%d,"z":0}`, i))
	}
	body := `Here you go: {"actions":[` + strings.Join(actions, ",") + `],"chat_summary":"tour"}`

	var signals int
	gw := newFakeGateway(reply("nope"), reply(body))
	p, _ := newTestPlanner(gw, WithTruncateHook(func(instruction string, planned, kept int) {
		signals++
		assert.Equal(t, 12, planned)
		assert.Equal(t, 8, kept)
	}))

	res, err := p.Plan(context.Background(), "walk a big loop around the base")
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Plan.Actions, action.MaxActions)
	assert.Equal(t, 1, signals)
}

func TestPlanStageBErrors(t *testing.T) {
	t.Run("malformed", func(t *testing.T) {
		gw := newFakeGateway(reply("nope"), reply("I cannot help with that."))
		p, _ := newTestPlanner(gw)

		_, err := p.Plan(context.Background(), "do something clever")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPlanning)
		assert.ErrorIs(t, err, ErrMalformedResponse)
		assert.NotErrorIs(t, err, llm.ErrUnreachable)
	})

	t.Run("invalid plan", func(t *testing.T) {
		gw := newFakeGateway(reply("nope"), reply(`{"actions":[],"chat_summary":"nothing"}`))
		p, _ := newTestPlanner(gw)

		_, err := p.Plan(context.Background(), "do something clever")
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("unknown action", func(t *testing.T) {
		gw := newFakeGateway(reply("nope"), reply(`{"actions":[{"type":"teleport"}],"chat_summary":"zap"}`))
		p, _ := newTestPlanner(gw)

		_, err := p.Plan(context.Background(), "do something clever")
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("unreachable", func(t *testing.T) {
		down := &llm.ServiceError{Model: "m", Unreachable: true, Err: errors.New("connection refused")}
		gw := newFakeGateway(fail(down), fail(down))
		p, _ := newTestPlanner(gw)

		_, err := p.Plan(context.Background(), "do something clever")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPlanning)
		assert.ErrorIs(t, err, llm.ErrUnreachable)
		var pe *PlanningError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "B", pe.Stage)
	})
}

func TestPlanWithAnswer(t *testing.T) {
	gw := newFakeGateway(nil, reply(`{"actions":[{"type":"goto","block":"chest"}],"chat_summary":"Going to the chest"}`))
	p, _ := newTestPlanner(gw)

	res, err := p.PlanWithAnswer(context.Background(), "bring me the stuff", "Which chest?", " the big one ")
	require.NoError(t, err)
	assert.Equal(t, action.MoveToLandmark{LandmarkID: "minecraft:chest"}, res.Plan.Actions[0])
	require.Len(t, gw.prompts["B"], 1)
	assert.Contains(t, gw.prompts["B"][0], "PLAYER ANSWERED: the big one")
	assert.NotContains(t, gw.prompts["B"][0], `"type":"ask"`)
	assert.Zero(t, p.CacheStats().Live)
}

func TestPlanPromptCarriesState(t *testing.T) {
	gw := newFakeGateway(reply("nope"), reply(stopPlan))
	p, state := newTestPlanner(gw)
	state.SetLastFailure("path blocked")

	_, err := p.Plan(context.Background(), "try again differently")
	require.NoError(t, err)
	assert.Contains(t, gw.prompts["A"][0], "Dim:overworld Pos:1,64,1")
	assert.Contains(t, gw.prompts["B"][0], "LastErr: path blocked")
	assert.Contains(t, gw.prompts["B"][0], "Maximum 8 actions per plan")
}

// gatedGateway holds every call until release is closed or the call's
// context is done.
type gatedGateway struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (g *gatedGateway) Available(ctx context.Context) bool { return true }

func (g *gatedGateway) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if strings.Contains(req.Prompt, "command parser") {
		return "nope", nil
	}
	return stopPlan, nil
}

func (g *gatedGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestPlanCancelledCallerDoesNotFailOthers(t *testing.T) {
	gw := &gatedGateway{release: make(chan struct{})}
	p, _ := newTestPlanner(gw)
	const instruction = "do the thing we talked about"

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Plan(first, instruction)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return gw.count() == 1 }, time.Second, time.Millisecond)

	type outcome struct {
		res Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := p.Plan(context.Background(), instruction)
		second <- outcome{res, err}
	}()

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(gw.release)
	select {
	case out := <-second:
		require.NoError(t, out.err)
		assert.Equal(t, SourceStageB, out.res.Source)
		assert.Equal(t, action.Halt{}, out.res.Plan.Actions[0])
	case <-time.After(time.Second):
		t.Fatal("second caller never got a plan")
	}
}
